package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Author is a writer profile. Posts copy the author's name rather than
// referencing this row.
type Author struct {
	ID        int64     `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Bio       string    `json:"bio"`
	Avatar    string    `json:"avatar"`
	Email     string    `json:"email"`
	Twitter   string    `json:"twitter"`
	LinkedIn  string    `json:"linkedin"`
	GitHub    string    `json:"github"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AuthorPatch carries the fields of an author create or update.
type AuthorPatch struct {
	Slug     *string
	Name     *string
	Bio      *string
	Avatar   *string
	Email    *string
	Twitter  *string
	LinkedIn *string
	GitHub   *string
}

func (p *AuthorPatch) fields() []struct {
	column string
	dst    **string
} {
	return []struct {
		column string
		dst    **string
	}{
		{"slug", &p.Slug},
		{"name", &p.Name},
		{"bio", &p.Bio},
		{"avatar", &p.Avatar},
		{"email", &p.Email},
		{"twitter", &p.Twitter},
		{"linkedin", &p.LinkedIn},
		{"github", &p.GitHub},
	}
}

// UnmarshalJSON decodes an author payload.
func (p *AuthorPatch) UnmarshalJSON(data []byte) error {
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

func (p AuthorPatch) assignments() assignments {
	var sets assignments
	for _, s := range p.fields() {
		if *s.dst != nil {
			sets.add(s.column, **s.dst)
		}
	}
	return sets
}

const authorColumns = `id, slug, name, bio, avatar, email, twitter, linkedin, github, created_at, updated_at`

func scanAuthor(s rowScanner) (Author, error) {
	var (
		a                                             Author
		bio, avatar, email, twitter, linkedin, github sql.NullString
		created, updated                              string
	)
	if err := s.Scan(&a.ID, &a.Slug, &a.Name, &bio, &avatar, &email, &twitter, &linkedin, &github, &created, &updated); err != nil {
		return Author{}, err
	}
	a.Bio = nullString(bio)
	a.Avatar = nullString(avatar)
	a.Email = nullString(email)
	a.Twitter = nullString(twitter)
	a.LinkedIn = nullString(linkedin)
	a.GitHub = nullString(github)
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	return a, nil
}

// Authors is the repository for the authors table.
type Authors struct {
	m *Manager
}

// AuthorDuplicates is the duplicate policy for authors.
const AuthorDuplicates = FailOnDuplicate

// NewAuthors returns the authors repository.
func NewAuthors(m *Manager) *Authors {
	return &Authors{m: m}
}

// GetAll returns all authors ordered by name.
func (r *Authors) GetAll(ctx context.Context) ([]Author, error) {
	authors, err := queryAll(ctx, r.m, scanAuthor, `SELECT `+authorColumns+` FROM authors ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, eris.Wrap(err, "listing authors")
	}
	return authors, nil
}

// GetBySlug returns the author or nil.
func (r *Authors) GetBySlug(ctx context.Context, slug string) (*Author, error) {
	a, err := queryOne(ctx, r.m, scanAuthor, `SELECT `+authorColumns+` FROM authors WHERE slug = ?`, strings.TrimSpace(slug))
	if err != nil {
		return nil, eris.Wrapf(err, "fetching author %s", slug)
	}
	return a, nil
}

// Create inserts an author; slug and name are required.
func (r *Authors) Create(ctx context.Context, in AuthorPatch) (*Author, error) {
	slug, err := requireSlug("author", in.Slug)
	if err != nil {
		return nil, err
	}
	if err := requireText("author", "name", in.Name); err != nil {
		return nil, err
	}
	in.Slug = &slug
	sets := in.assignments()
	ts := formatTime(r.m.now())
	sets.add("created_at", ts)
	sets.add("updated_at", ts)
	if _, err := r.m.insert(ctx, "authors", AuthorDuplicates, sets, "author", slug); err != nil {
		return nil, err
	}
	return r.GetBySlug(ctx, slug)
}

// Update patches the author and returns it, or nil when absent.
func (r *Authors) Update(ctx context.Context, slug string, patch AuthorPatch) (*Author, error) {
	target := strings.TrimSpace(slug)
	if patch.Slug != nil {
		s, err := requireSlug("author", patch.Slug)
		if err != nil {
			return nil, err
		}
		patch.Slug = &s
		target = s
	}
	if err := rejectBlank("author", "name", patch.Name); err != nil {
		return nil, err
	}
	found, err := r.m.update(ctx, "authors", "slug", strings.TrimSpace(slug), patch.assignments(), "author")
	if err != nil || !found {
		return nil, err
	}
	return r.GetBySlug(ctx, target)
}

// Delete removes the author. Posts keep their copied author name.
func (r *Authors) Delete(ctx context.Context, slug string) (bool, error) {
	return r.m.remove(ctx, "authors", "slug", strings.TrimSpace(slug), "author")
}
