package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Category groups posts by name. Renaming or deleting a category does not
// touch posts that cite it.
type Category struct {
	ID          int64     `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Color       string    `json:"color"`
	Icon        string    `json:"icon"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CategoryPatch carries the fields of a category create or update.
type CategoryPatch struct {
	Slug        *string
	Name        *string
	Description *string
	Color       *string
	Icon        *string
}

func (p *CategoryPatch) fields() []struct {
	column string
	dst    **string
} {
	return []struct {
		column string
		dst    **string
	}{
		{"slug", &p.Slug},
		{"name", &p.Name},
		{"description", &p.Description},
		{"color", &p.Color},
		{"icon", &p.Icon},
	}
}

// UnmarshalJSON decodes a category payload.
func (p *CategoryPatch) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	for _, s := range p.fields() {
		if err := f.str(s.column, s.dst); err != nil {
			return err
		}
	}
	return nil
}

func (p CategoryPatch) assignments() assignments {
	var sets assignments
	for _, s := range p.fields() {
		if *s.dst != nil {
			sets.add(s.column, **s.dst)
		}
	}
	return sets
}

const categoryColumns = `id, slug, name, description, color, icon, created_at, updated_at`

func scanCategory(s rowScanner) (Category, error) {
	var (
		c                        Category
		description, color, icon sql.NullString
		created, updated         string
	)
	if err := s.Scan(&c.ID, &c.Slug, &c.Name, &description, &color, &icon, &created, &updated); err != nil {
		return Category{}, err
	}
	c.Description = nullString(description)
	c.Color = nullString(color)
	c.Icon = nullString(icon)
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return c, nil
}

// Categories is the repository for the categories table.
type Categories struct {
	m *Manager
}

// CategoryDuplicates is the duplicate policy for categories.
const CategoryDuplicates = FailOnDuplicate

// NewCategories returns the categories repository.
func NewCategories(m *Manager) *Categories {
	return &Categories{m: m}
}

// GetAll returns every category in creation order.
func (r *Categories) GetAll(ctx context.Context) ([]Category, error) {
	cats, err := queryAll(ctx, r.m, scanCategory, `SELECT `+categoryColumns+` FROM categories ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "listing categories")
	}
	return cats, nil
}

// GetBySlug returns the category or nil.
func (r *Categories) GetBySlug(ctx context.Context, slug string) (*Category, error) {
	c, err := queryOne(ctx, r.m, scanCategory, `SELECT `+categoryColumns+` FROM categories WHERE slug = ?`, strings.TrimSpace(slug))
	if err != nil {
		return nil, eris.Wrapf(err, "fetching category %s", slug)
	}
	return c, nil
}

// Create inserts a category; slug and name are required.
func (r *Categories) Create(ctx context.Context, in CategoryPatch) (*Category, error) {
	slug, err := requireSlug("category", in.Slug)
	if err != nil {
		return nil, err
	}
	if err := requireText("category", "name", in.Name); err != nil {
		return nil, err
	}
	in.Slug = &slug
	sets := in.assignments()
	ts := formatTime(r.m.now())
	sets.add("created_at", ts)
	sets.add("updated_at", ts)
	if _, err := r.m.insert(ctx, "categories", CategoryDuplicates, sets, "category", slug); err != nil {
		return nil, err
	}
	return r.GetBySlug(ctx, slug)
}

// Update patches the category and returns it, or nil when absent.
func (r *Categories) Update(ctx context.Context, slug string, patch CategoryPatch) (*Category, error) {
	target := strings.TrimSpace(slug)
	if patch.Slug != nil {
		s, err := requireSlug("category", patch.Slug)
		if err != nil {
			return nil, err
		}
		patch.Slug = &s
		target = s
	}
	if err := rejectBlank("category", "name", patch.Name); err != nil {
		return nil, err
	}
	found, err := r.m.update(ctx, "categories", "slug", strings.TrimSpace(slug), patch.assignments(), "category")
	if err != nil || !found {
		return nil, err
	}
	return r.GetBySlug(ctx, target)
}

// Delete removes the category without touching posts.
func (r *Categories) Delete(ctx context.Context, slug string) (bool, error) {
	return r.m.remove(ctx, "categories", "slug", strings.TrimSpace(slug), "category")
}
