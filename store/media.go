package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Media is an uploaded file's metadata. The file itself lives on disk at
// Path and is served from URL; deleting the row does not remove it.
type Media struct {
	ID           int64     `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	Path         string    `json:"path"`
	URL          string    `json:"url"`
	MimeType     string    `json:"mimeType"`
	Size         int64     `json:"size"`
	Width        *int64    `json:"width"`
	Height       *int64    `json:"height"`
	AltText      *string   `json:"altText"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// MediaPatch carries the fields of a media create or update. AltText set to
// an invalid NullableString clears the column.
type MediaPatch struct {
	Filename     *string
	OriginalName *string
	Path         *string
	URL          *string
	MimeType     *string
	Size         *int64
	Width        *int64
	Height       *int64
	AltText      *NullableString
}

// UnmarshalJSON decodes a media payload.
func (p *MediaPatch) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	strs := []struct {
		column string
		dst    **string
	}{
		{"filename", &p.Filename},
		{"original_name", &p.OriginalName},
		{"path", &p.Path},
		{"url", &p.URL},
		{"mime_type", &p.MimeType},
	}
	for _, s := range strs {
		if err := f.str(s.column, s.dst); err != nil {
			return err
		}
	}
	ints := []struct {
		column string
		dst    **int64
	}{
		{"size", &p.Size},
		{"width", &p.Width},
		{"height", &p.Height},
	}
	for _, n := range ints {
		if err := f.integer(n.column, n.dst); err != nil {
			return err
		}
	}
	return f.nullableStr("alt_text", &p.AltText)
}

func (p MediaPatch) assignments() assignments {
	var sets assignments
	strs := []struct {
		column string
		v      *string
	}{
		{"filename", p.Filename},
		{"original_name", p.OriginalName},
		{"path", p.Path},
		{"url", p.URL},
		{"mime_type", p.MimeType},
	}
	for _, s := range strs {
		if s.v != nil {
			sets.add(s.column, *s.v)
		}
	}
	ints := []struct {
		column string
		v      *int64
	}{
		{"size", p.Size},
		{"width", p.Width},
		{"height", p.Height},
	}
	for _, n := range ints {
		if n.v != nil {
			sets.add(n.column, *n.v)
		}
	}
	if p.AltText != nil {
		sets.add("alt_text", p.AltText.arg())
	}
	return sets
}

const mediaColumns = `id, filename, original_name, path, url, mime_type, size, width, height, alt_text, created_at, updated_at`

const mediaRecency = ` ORDER BY created_at DESC, id DESC`

func scanMedia(s rowScanner) (Media, error) {
	var (
		md               Media
		width, height    sql.NullInt64
		alt              sql.NullString
		created, updated string
	)
	err := s.Scan(&md.ID, &md.Filename, &md.OriginalName, &md.Path, &md.URL, &md.MimeType, &md.Size,
		&width, &height, &alt, &created, &updated)
	if err != nil {
		return Media{}, err
	}
	if width.Valid {
		md.Width = &width.Int64
	}
	if height.Valid {
		md.Height = &height.Int64
	}
	if alt.Valid {
		md.AltText = &alt.String
	}
	md.CreatedAt = parseTime(created)
	md.UpdatedAt = parseTime(updated)
	return md, nil
}

// MediaLibrary is the repository for the media table.
type MediaLibrary struct {
	m *Manager
}

// MediaDuplicates is the duplicate policy for media filenames.
const MediaDuplicates = FailOnDuplicate

// NewMediaLibrary returns the media repository.
func NewMediaLibrary(m *Manager) *MediaLibrary {
	return &MediaLibrary{m: m}
}

// GetAll returns every media row, newest first.
func (r *MediaLibrary) GetAll(ctx context.Context) ([]Media, error) {
	items, err := queryAll(ctx, r.m, scanMedia, `SELECT `+mediaColumns+` FROM media`+mediaRecency)
	if err != nil {
		return nil, eris.Wrap(err, "listing media")
	}
	return items, nil
}

// GetByID returns the row or nil.
func (r *MediaLibrary) GetByID(ctx context.Context, id int64) (*Media, error) {
	md, err := queryOne(ctx, r.m, scanMedia, `SELECT `+mediaColumns+` FROM media WHERE id = ?`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "fetching media %d", id)
	}
	return md, nil
}

// GetByFilename returns the row stored under filename or nil.
func (r *MediaLibrary) GetByFilename(ctx context.Context, filename string) (*Media, error) {
	md, err := queryOne(ctx, r.m, scanMedia, `SELECT `+mediaColumns+` FROM media WHERE filename = ?`, filename)
	if err != nil {
		return nil, eris.Wrapf(err, "fetching media %s", filename)
	}
	return md, nil
}

// Create records an uploaded file. Filename, path, url and mime type are
// required; original name defaults to the filename.
func (r *MediaLibrary) Create(ctx context.Context, in MediaPatch) (*Media, error) {
	for _, f := range []struct {
		name string
		v    *string
	}{
		{"filename", in.Filename},
		{"path", in.Path},
		{"url", in.URL},
		{"mime type", in.MimeType},
	} {
		if err := requireText("media", f.name, f.v); err != nil {
			return nil, err
		}
	}
	if in.OriginalName == nil || strings.TrimSpace(*in.OriginalName) == "" {
		in.OriginalName = in.Filename
	}
	if in.Size != nil && *in.Size < 0 {
		return nil, validationError("media size cannot be negative")
	}
	sets := in.assignments()
	ts := formatTime(r.m.now())
	sets.add("created_at", ts)
	sets.add("updated_at", ts)

	query, args := insertSQL(MediaDuplicates.verb(), "media", sets)
	id, err := ExecuteWithRetry(ctx, r.m, func(ctx context.Context, db *sql.DB) (int64, error) {
		res, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, eris.Wrapf(ErrDuplicateSlug, "media %q already exists", *in.Filename)
		}
		return nil, eris.Wrapf(err, "creating media %s", *in.Filename)
	}
	return r.GetByID(ctx, id)
}

// Update patches the row and returns it, or nil when absent.
func (r *MediaLibrary) Update(ctx context.Context, id int64, patch MediaPatch) (*Media, error) {
	if err := rejectBlank("media", "filename", patch.Filename); err != nil {
		return nil, err
	}
	found, err := r.m.update(ctx, "media", "id", id, patch.assignments(), "media")
	if err != nil || !found {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Delete removes the row only; the caller owns the file.
func (r *MediaLibrary) Delete(ctx context.Context, id int64) (bool, error) {
	return r.m.remove(ctx, "media", "id", id, "media")
}

// Count returns the number of media rows.
func (r *MediaLibrary) Count(ctx context.Context) (int64, error) {
	n, err := ExecuteWithRetry(ctx, r.m, func(ctx context.Context, db *sql.DB) (int64, error) {
		var n int64
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media`).Scan(&n)
		return n, err
	})
	if err != nil {
		return 0, eris.Wrap(err, "counting media")
	}
	return n, nil
}

// Search matches q against filename, original name and alt text, newest
// first.
func (r *MediaLibrary) Search(ctx context.Context, q string) ([]Media, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return r.GetAll(ctx)
	}
	pattern := likePattern(q)
	items, err := queryAll(ctx, r.m, scanMedia,
		`SELECT `+mediaColumns+` FROM media WHERE
			lower(filename) LIKE ? ESCAPE '\' OR
			lower(original_name) LIKE ? ESCAPE '\' OR
			lower(alt_text) LIKE ? ESCAPE '\'`+mediaRecency,
		pattern, pattern, pattern)
	if err != nil {
		return nil, eris.Wrap(err, "searching media")
	}
	return items, nil
}
