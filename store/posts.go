package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Post is a blog article as returned to callers. Author and Category are
// display names copied onto the post, not references.
type Post struct {
	ID          int64     `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Excerpt     string    `json:"excerpt"`
	Date        string    `json:"date"`
	Author      string    `json:"author"`
	AuthorImage string    `json:"authorImage"`
	CoverImage  string    `json:"coverImage"`
	Category    string    `json:"category"`
	Tags        []string  `json:"tags"`
	Draft       bool      `json:"draft"`
	Featured    bool      `json:"featured"`
	ReadingTime string    `json:"readingTime"`
	Views       int64     `json:"views"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PostPatch carries the fields of a create or update. Nil fields are left
// alone on update and defaulted on create.
type PostPatch struct {
	Slug        *string
	Title       *string
	Content     *string
	Excerpt     *string
	Date        *string
	Author      *string
	AuthorImage *string
	CoverImage  *string
	Category    *string
	Tags        *[]string
	Draft       *bool
	Featured    *bool
	ReadingTime *string
}

// UnmarshalJSON accepts both author_image and authorImage style keys.
func (p *PostPatch) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	strs := []struct {
		column string
		dst    **string
	}{
		{"slug", &p.Slug},
		{"title", &p.Title},
		{"content", &p.Content},
		{"excerpt", &p.Excerpt},
		{"date", &p.Date},
		{"author", &p.Author},
		{"author_image", &p.AuthorImage},
		{"cover_image", &p.CoverImage},
		{"category", &p.Category},
		{"reading_time", &p.ReadingTime},
	}
	for _, s := range strs {
		if err := f.str(s.column, s.dst); err != nil {
			return err
		}
	}
	if err := f.stringList("tags", &p.Tags); err != nil {
		return err
	}
	if err := f.boolean("draft", &p.Draft); err != nil {
		return err
	}
	return f.boolean("featured", &p.Featured)
}

func (p PostPatch) assignments() assignments {
	var sets assignments
	strs := []struct {
		column string
		v      *string
	}{
		{"slug", p.Slug},
		{"title", p.Title},
		{"content", p.Content},
		{"excerpt", p.Excerpt},
		{"date", p.Date},
		{"author", p.Author},
		{"author_image", p.AuthorImage},
		{"cover_image", p.CoverImage},
		{"category", p.Category},
		{"reading_time", p.ReadingTime},
	}
	for _, s := range strs {
		if s.v != nil {
			sets.add(s.column, *s.v)
		}
	}
	if p.Tags != nil {
		sets.add("tags", encodeTags(*p.Tags))
	}
	if p.Draft != nil {
		sets.add("draft", boolInt(*p.Draft))
	}
	if p.Featured != nil {
		sets.add("featured", boolInt(*p.Featured))
	}
	return sets
}

const postColumns = `id, slug, title, content, excerpt, date, author, author_image, cover_image, category, tags, draft, featured, reading_time, views, created_at, updated_at`

const postRecency = ` ORDER BY date DESC, created_at DESC, id DESC`

func scanPost(s rowScanner) (Post, error) {
	var (
		p                                                  Post
		excerpt, author, authorImage, coverImage, category sql.NullString
		tags, readingTime                                  sql.NullString
		draft, featured                                    int64
		created, updated                                   string
	)
	err := s.Scan(&p.ID, &p.Slug, &p.Title, &p.Content, &excerpt, &p.Date, &author, &authorImage,
		&coverImage, &category, &tags, &draft, &featured, &readingTime, &p.Views, &created, &updated)
	if err != nil {
		return Post{}, err
	}
	p.Excerpt = nullString(excerpt)
	p.Author = nullString(author)
	p.AuthorImage = nullString(authorImage)
	p.CoverImage = nullString(coverImage)
	p.Category = nullString(category)
	p.Tags = decodeTags(tags)
	p.Draft = draft != 0
	p.Featured = featured != 0
	p.ReadingTime = nullString(readingTime)
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return p, nil
}

// Posts is the repository for the posts table.
type Posts struct {
	m *Manager
}

// PostDuplicates is the duplicate policy for posts.
const PostDuplicates = FailOnDuplicate

// NewPosts returns the posts repository.
func NewPosts(m *Manager) *Posts {
	return &Posts{m: m}
}

func (r *Posts) list(ctx context.Context, where string, args ...any) ([]Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts`
	if where != "" {
		query += ` WHERE ` + where
	}
	posts, err := queryAll(ctx, r.m, scanPost, query+postRecency, args...)
	if err != nil {
		return nil, eris.Wrap(err, "listing posts")
	}
	return posts, nil
}

// GetAll returns every post, drafts included, newest first.
func (r *Posts) GetAll(ctx context.Context) ([]Post, error) {
	return r.list(ctx, "")
}

// GetPublished returns non-draft posts, newest first.
func (r *Posts) GetPublished(ctx context.Context) ([]Post, error) {
	return r.list(ctx, "draft = 0")
}

// GetBySlug returns the post or nil when it does not exist.
func (r *Posts) GetBySlug(ctx context.Context, slug string) (*Post, error) {
	p, err := queryOne(ctx, r.m, scanPost, `SELECT `+postColumns+` FROM posts WHERE slug = ?`, strings.TrimSpace(slug))
	if err != nil {
		return nil, eris.Wrapf(err, "fetching post %s", slug)
	}
	return p, nil
}

// Search matches q case-insensitively against title, excerpt, content,
// category and tags of published posts.
func (r *Posts) Search(ctx context.Context, q string) ([]Post, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return r.GetPublished(ctx)
	}
	pattern := likePattern(q)
	return r.list(ctx, `draft = 0 AND (
		lower(title) LIKE ? ESCAPE '\' OR
		lower(excerpt) LIKE ? ESCAPE '\' OR
		lower(content) LIKE ? ESCAPE '\' OR
		lower(category) LIKE ? ESCAPE '\' OR
		lower(tags) LIKE ? ESCAPE '\')`,
		pattern, pattern, pattern, pattern, pattern)
}

// GetByCategory returns published posts whose category name matches,
// ignoring case.
func (r *Posts) GetByCategory(ctx context.Context, category string) ([]Post, error) {
	return r.list(ctx, `draft = 0 AND lower(category) = lower(?)`, strings.TrimSpace(category))
}

// GetByTag returns published posts citing tag, ignoring case.
func (r *Posts) GetByTag(ctx context.Context, tag string) ([]Post, error) {
	needle, err := json.Marshal(strings.ToLower(strings.TrimSpace(tag)))
	if err != nil {
		return nil, eris.Wrap(err, "encoding tag")
	}
	return r.list(ctx, `draft = 0 AND instr(lower(tags), ?) > 0`, string(needle))
}

// GetFeatured returns published featured posts. limit <= 0 means all.
func (r *Posts) GetFeatured(ctx context.Context, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = -1
	}
	posts, err := queryAll(ctx, r.m, scanPost,
		`SELECT `+postColumns+` FROM posts WHERE draft = 0 AND featured = 1`+postRecency+` LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "listing featured posts")
	}
	return posts, nil
}

// Create inserts a post. Slug, title and content are required; date
// defaults to today and tags to an empty list. A taken slug yields
// ErrDuplicateSlug.
func (r *Posts) Create(ctx context.Context, in PostPatch) (*Post, error) {
	slug, err := requireSlug("post", in.Slug)
	if err != nil {
		return nil, err
	}
	if err := requireText("post", "title", in.Title); err != nil {
		return nil, err
	}
	if err := requireText("post", "content", in.Content); err != nil {
		return nil, err
	}
	in.Slug = &slug

	now := r.m.now()
	sets := in.assignments()
	if in.Date == nil || strings.TrimSpace(*in.Date) == "" {
		sets = without(sets, "date")
		sets.add("date", now.Format("2006-01-02"))
	}
	if !sets.has("tags") {
		sets.add("tags", "[]")
	}
	ts := formatTime(now)
	sets.add("created_at", ts)
	sets.add("updated_at", ts)

	if _, err := r.m.insert(ctx, "posts", PostDuplicates, sets, "post", slug); err != nil {
		return nil, err
	}
	return r.GetBySlug(ctx, slug)
}

// Update applies patch to the post with the given slug and returns the
// result, or nil when no such post exists. updated_at is always re-stamped.
func (r *Posts) Update(ctx context.Context, slug string, patch PostPatch) (*Post, error) {
	target := strings.TrimSpace(slug)
	if patch.Slug != nil {
		s, err := requireSlug("post", patch.Slug)
		if err != nil {
			return nil, err
		}
		patch.Slug = &s
		target = s
	}
	if err := rejectBlank("post", "title", patch.Title); err != nil {
		return nil, err
	}
	if err := rejectBlank("post", "content", patch.Content); err != nil {
		return nil, err
	}
	found, err := r.m.update(ctx, "posts", "slug", strings.TrimSpace(slug), patch.assignments(), "post")
	if err != nil || !found {
		return nil, err
	}
	return r.GetBySlug(ctx, target)
}

// Delete removes the post and reports whether it existed.
func (r *Posts) Delete(ctx context.Context, slug string) (bool, error) {
	return r.m.remove(ctx, "posts", "slug", strings.TrimSpace(slug), "post")
}

// IncrementViews adds one to the view counter in a single statement and
// returns the new count. ok is false when the slug does not exist.
func (r *Posts) IncrementViews(ctx context.Context, slug string) (views int64, ok bool, err error) {
	views, err = ExecuteWithRetry(ctx, r.m, func(ctx context.Context, db *sql.DB) (int64, error) {
		var v int64
		err := db.QueryRowContext(ctx, `UPDATE posts SET views = views + 1 WHERE slug = ? RETURNING views`, strings.TrimSpace(slug)).Scan(&v)
		return v, err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "incrementing views of %s", slug)
	}
	return views, true, nil
}

func without(sets assignments, column string) assignments {
	out := sets[:0:0]
	for _, s := range sets {
		if s.column != column {
			out = append(out, s)
		}
	}
	return out
}
