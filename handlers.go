package agencycms

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/eringen/agencycms/markdown"
	"github.com/eringen/agencycms/store"
)

func (a *App) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) handleReady(c echo.Context) error {
	if err := a.Store.Ping(c.Request().Context()); err != nil {
		a.Log.WithError(err).Warn("readiness check failed")
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready", "database": a.Store.Path()})
}

// handleListPosts serves published posts. Filters are mutually exclusive and
// checked in the order q, category, tag, featured.
func (a *App) handleListPosts(c echo.Context) error {
	ctx := c.Request().Context()
	var (
		posts []store.Post
		err   error
	)
	switch {
	case c.QueryParam("q") != "":
		posts, err = a.Posts.Search(ctx, c.QueryParam("q"))
	case c.QueryParam("category") != "":
		posts, err = a.Posts.GetByCategory(ctx, c.QueryParam("category"))
	case c.QueryParam("tag") != "":
		posts, err = a.Posts.GetByTag(ctx, c.QueryParam("tag"))
	case isTruthy(c.QueryParam("featured")):
		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		posts, err = a.Posts.GetFeatured(ctx, limit)
	default:
		posts, err = a.Cache.Published(ctx)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, posts)
}

func (a *App) handleGetPost(c echo.Context) error {
	post, err := a.Cache.Get(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	if post == nil {
		return notFound("post")
	}
	return c.JSON(http.StatusOK, post)
}

func (a *App) handlePostHTML(c echo.Context) error {
	post, err := a.Cache.Get(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	if post == nil {
		return notFound("post")
	}
	doc, err := markdown.Compile(post.Content)
	if err != nil {
		return err
	}
	return Render(c, doc.Component())
}

func (a *App) handleIncrementViews(c echo.Context) error {
	views, ok, err := a.Posts.IncrementViews(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	if !ok {
		return notFound("post")
	}
	return c.JSON(http.StatusOK, map[string]int64{"views": views})
}

func (a *App) handleListAuthors(c echo.Context) error {
	authors, err := a.Authors.GetAll(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, authors)
}

func (a *App) handleGetAuthor(c echo.Context) error {
	author, err := a.Authors.GetBySlug(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	if author == nil {
		return notFound("author")
	}
	return c.JSON(http.StatusOK, author)
}

func (a *App) handleListCategories(c echo.Context) error {
	cats, err := a.Categories.GetAll(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cats)
}

func (a *App) handleGetCategory(c echo.Context) error {
	cat, err := a.Categories.GetBySlug(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	if cat == nil {
		return notFound("category")
	}
	return c.JSON(http.StatusOK, cat)
}

// handleListTags lists tag rows, or with used=1 the tag names cited by
// published posts.
func (a *App) handleListTags(c echo.Context) error {
	ctx := c.Request().Context()
	if isTruthy(c.QueryParam("used")) {
		names, err := a.Cache.Tags(ctx)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, names)
	}
	tags, err := a.Tags.Search(ctx, c.QueryParam("q"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tags)
}

func isTruthy(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}
