package agencycms

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/eringen/agencycms/store"
)

// PostCache is an in-memory cache of published posts with TTL. Writes
// through the admin API invalidate it.
type PostCache struct {
	mu      sync.RWMutex
	posts   []store.Post
	fetched time.Time
	ttl     time.Duration
	repo    *store.Posts
	now     func() time.Time
}

// NewPostCache creates a PostCache backed by the posts repository.
func NewPostCache(repo *store.Posts, ttl time.Duration) *PostCache {
	return &PostCache{repo: repo, ttl: ttl, now: time.Now}
}

func (c *PostCache) valid() bool {
	return c.posts != nil && c.now().Sub(c.fetched) < c.ttl
}

// Invalidate clears the cache so the next read triggers a fresh load.
func (c *PostCache) Invalidate() {
	c.mu.Lock()
	c.posts = nil
	c.mu.Unlock()
}

// ensureLoaded tries a read lock first; only takes a write lock if a reload
// is needed.
func (c *PostCache) ensureLoaded(ctx context.Context) ([]store.Post, error) {
	c.mu.RLock()
	if c.valid() {
		posts := c.posts
		c.mu.RUnlock()
		return posts, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.valid() {
		return c.posts, nil
	}
	posts, err := c.repo.GetPublished(ctx)
	if err != nil {
		return nil, err
	}
	c.posts = posts
	c.fetched = c.now()
	return c.posts, nil
}

// Published returns published posts, newest first.
func (c *PostCache) Published(ctx context.Context) ([]store.Post, error) {
	return c.ensureLoaded(ctx)
}

// Get returns a published post by slug, or nil.
func (c *PostCache) Get(ctx context.Context, slug string) (*store.Post, error) {
	posts, err := c.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		if posts[i].Slug == slug {
			p := posts[i]
			return &p, nil
		}
	}
	return nil, nil
}

// Tags returns the distinct tags cited by published posts, in first-seen
// order and compared case-insensitively.
func (c *PostCache) Tags(ctx context.Context) ([]string, error) {
	posts, err := c.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	tags := []string{}
	for _, p := range posts {
		for _, t := range p.Tags {
			key := strings.ToLower(strings.TrimSpace(t))
			if key == "" {
				continue
			}
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				tags = append(tags, t)
			}
		}
	}
	return tags, nil
}
