package store

import (
	"regexp"
	"strings"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Slugify converts a title to a URL-safe slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	prev := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prev = false
		default:
			if !prev && b.Len() > 0 {
				b.WriteByte('-')
				prev = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// ValidSlug reports whether s is already in canonical slug form.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

// DuplicatePolicy states what Create does when the unique key exists.
type DuplicatePolicy int

const (
	// FailOnDuplicate surfaces ErrDuplicateSlug to the caller.
	FailOnDuplicate DuplicatePolicy = iota
	// IgnoreDuplicate leaves the existing row untouched and succeeds.
	IgnoreDuplicate
)

func (p DuplicatePolicy) verb() string {
	if p == IgnoreDuplicate {
		return "INSERT OR IGNORE"
	}
	return "INSERT"
}

// Ptr returns a pointer to v, for building patches in code.
func Ptr[T any](v T) *T {
	return &v
}

func requireSlug(entity string, slug *string) (string, error) {
	if slug == nil || strings.TrimSpace(*slug) == "" {
		return "", validationError("%s slug is required", entity)
	}
	s := strings.TrimSpace(*slug)
	if !ValidSlug(s) {
		return "", validationError("%s slug %q must be lowercase letters, digits and dashes", entity, s)
	}
	return s, nil
}

func requireText(entity, field string, v *string) error {
	if v == nil || strings.TrimSpace(*v) == "" {
		return validationError("%s %s is required", entity, field)
	}
	return nil
}

func rejectBlank(entity, field string, v *string) error {
	if v != nil && strings.TrimSpace(*v) == "" {
		return validationError("%s %s cannot be empty", entity, field)
	}
	return nil
}
