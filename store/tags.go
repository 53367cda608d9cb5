package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Tag is a named label. Posts cite tags by name; a tag row does not
// constrain which names posts may use.
type Tag struct {
	ID        int64     `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TagPatch carries the fields of a tag create or update.
type TagPatch struct {
	Slug *string
	Name *string
}

// TagNamed builds a patch for name with a slug derived from it.
func TagNamed(name string) TagPatch {
	name = strings.TrimSpace(name)
	return TagPatch{Slug: Ptr(Slugify(name)), Name: &name}
}

// UnmarshalJSON decodes a tag payload.
func (p *TagPatch) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	if err := f.str("slug", &p.Slug); err != nil {
		return err
	}
	return f.str("name", &p.Name)
}

func (p TagPatch) assignments() assignments {
	var sets assignments
	if p.Slug != nil {
		sets.add("slug", *p.Slug)
	}
	if p.Name != nil {
		sets.add("name", *p.Name)
	}
	return sets
}

// normalize fills a missing slug from the name and validates both.
func (p TagPatch) normalize() (TagPatch, error) {
	if err := requireText("tag", "name", p.Name); err != nil {
		return p, err
	}
	name := strings.TrimSpace(*p.Name)
	p.Name = &name
	if p.Slug == nil || strings.TrimSpace(*p.Slug) == "" {
		p.Slug = Ptr(Slugify(name))
	}
	slug, err := requireSlug("tag", p.Slug)
	if err != nil {
		return p, err
	}
	p.Slug = &slug
	return p, nil
}

const tagColumns = `id, slug, name, created_at, updated_at`

func scanTag(s rowScanner) (Tag, error) {
	var (
		t                Tag
		created, updated string
	)
	if err := s.Scan(&t.ID, &t.Slug, &t.Name, &created, &updated); err != nil {
		return Tag{}, err
	}
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return t, nil
}

// Tags is the repository for the tags table.
type Tags struct {
	m *Manager
}

// TagDuplicates makes tag creation idempotent.
const TagDuplicates = IgnoreDuplicate

// NewTags returns the tags repository.
func NewTags(m *Manager) *Tags {
	return &Tags{m: m}
}

// GetAll returns every tag ordered by name.
func (r *Tags) GetAll(ctx context.Context) ([]Tag, error) {
	tags, err := queryAll(ctx, r.m, scanTag, `SELECT `+tagColumns+` FROM tags ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, eris.Wrap(err, "listing tags")
	}
	return tags, nil
}

// GetBySlug returns the tag or nil.
func (r *Tags) GetBySlug(ctx context.Context, slug string) (*Tag, error) {
	t, err := queryOne(ctx, r.m, scanTag, `SELECT `+tagColumns+` FROM tags WHERE slug = ?`, strings.TrimSpace(slug))
	if err != nil {
		return nil, eris.Wrapf(err, "fetching tag %s", slug)
	}
	return t, nil
}

// Create inserts the tag unless its slug exists, and returns the stored
// row either way.
func (r *Tags) Create(ctx context.Context, in TagPatch) (*Tag, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	sets := in.assignments()
	ts := formatTime(r.m.now())
	sets.add("created_at", ts)
	sets.add("updated_at", ts)
	if _, err := r.m.insert(ctx, "tags", TagDuplicates, sets, "tag", *in.Slug); err != nil {
		return nil, err
	}
	return r.GetBySlug(ctx, *in.Slug)
}

// CreateMany inserts all tags in one transaction, skipping existing slugs,
// and returns how many rows were added.
func (r *Tags) CreateMany(ctx context.Context, in []TagPatch) (int, error) {
	patches := make([]TagPatch, 0, len(in))
	for _, p := range in {
		n, err := p.normalize()
		if err != nil {
			return 0, err
		}
		patches = append(patches, n)
	}
	if len(patches) == 0 {
		return 0, nil
	}
	ts := formatTime(r.m.now())
	added, err := ExecuteWithRetry(ctx, r.m, func(ctx context.Context, db *sql.DB) (int, error) {
		added := 0
		err := withTx(ctx, db, func(tx *sql.Tx) error {
			for _, p := range patches {
				sets := p.assignments()
				sets.add("created_at", ts)
				sets.add("updated_at", ts)
				query, args := insertSQL(TagDuplicates.verb(), "tags", sets)
				res, err := tx.ExecContext(ctx, query, args...)
				if err != nil {
					return err
				}
				if n, _ := res.RowsAffected(); n > 0 {
					added++
				}
			}
			return nil
		})
		return added, err
	})
	if err != nil {
		return 0, eris.Wrap(err, "creating tags")
	}
	return added, nil
}

// Update patches the tag and returns it, or nil when absent.
func (r *Tags) Update(ctx context.Context, slug string, patch TagPatch) (*Tag, error) {
	target := strings.TrimSpace(slug)
	if patch.Slug != nil {
		s, err := requireSlug("tag", patch.Slug)
		if err != nil {
			return nil, err
		}
		patch.Slug = &s
		target = s
	}
	if err := rejectBlank("tag", "name", patch.Name); err != nil {
		return nil, err
	}
	found, err := r.m.update(ctx, "tags", "slug", strings.TrimSpace(slug), patch.assignments(), "tag")
	if err != nil || !found {
		return nil, err
	}
	return r.GetBySlug(ctx, target)
}

// Delete removes the tag. Posts citing its name are unchanged.
func (r *Tags) Delete(ctx context.Context, slug string) (bool, error) {
	return r.m.remove(ctx, "tags", "slug", strings.TrimSpace(slug), "tag")
}

// Search matches q against tag names and slugs, ignoring case.
func (r *Tags) Search(ctx context.Context, q string) ([]Tag, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return r.GetAll(ctx)
	}
	pattern := likePattern(q)
	tags, err := queryAll(ctx, r.m, scanTag,
		`SELECT `+tagColumns+` FROM tags WHERE lower(name) LIKE ? ESCAPE '\' OR slug LIKE ? ESCAPE '\' ORDER BY name COLLATE NOCASE`,
		pattern, pattern)
	if err != nil {
		return nil, eris.Wrap(err, "searching tags")
	}
	return tags, nil
}
