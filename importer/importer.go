// Package importer loads markdown files with YAML front matter into the
// post store.
package importer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"github.com/eringen/agencycms/store"
)

// Report lists what happened to each file of an import run.
type Report struct {
	Imported []string
	Skipped  []string
	Failed   map[string]string
}

// Importer writes parsed documents through the repositories.
type Importer struct {
	posts *store.Posts
	tags  *store.Tags
	log   *logrus.Entry
}

// New returns an Importer.
func New(posts *store.Posts, tags *store.Tags, logger *logrus.Logger) *Importer {
	return &Importer{posts: posts, tags: tags, log: logger.WithField("component", "importer")}
}

// ImportDir imports every .md and .mdx file under dir in name order. Posts
// whose slug already exists are skipped. Invalid files are reported and the
// run continues; a storage outage aborts it.
func (im *Importer) ImportDir(ctx context.Context, dir string) (Report, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".md", ".mdx":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return Report{}, eris.Wrapf(err, "scanning %s", dir)
	}
	sort.Strings(files)

	report := Report{Imported: []string{}, Skipped: []string{}, Failed: map[string]string{}}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		rel, _ := filepath.Rel(dir, path)
		entry := im.log.WithField("file", rel)

		slug, err := im.importFile(ctx, path)
		switch {
		case err == nil:
			report.Imported = append(report.Imported, rel)
			entry.WithField("slug", slug).Info("imported post")
		case eris.Is(err, store.ErrDuplicateSlug):
			report.Skipped = append(report.Skipped, rel)
			entry.WithField("slug", slug).Info("post exists, skipped")
		case eris.Is(err, store.ErrStorageUnavailable):
			return report, err
		default:
			report.Failed[rel] = err.Error()
			entry.WithError(err).Warn("import failed")
		}
	}
	return report, nil
}

func (im *Importer) importFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "reading %s", path)
	}
	doc, err := ParseDocument(filepath.Base(path), data)
	if err != nil {
		return "", err
	}
	slug := *doc.Post.Slug
	if len(doc.Tags) > 0 {
		patches := make([]store.TagPatch, 0, len(doc.Tags))
		for _, t := range doc.Tags {
			if store.Slugify(t) != "" {
				patches = append(patches, store.TagNamed(t))
			}
		}
		if _, err := im.tags.CreateMany(ctx, patches); err != nil {
			return slug, err
		}
	}
	if _, err := im.posts.Create(ctx, doc.Post); err != nil {
		return slug, err
	}
	return slug, nil
}
