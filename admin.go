package agencycms

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eringen/agencycms/markdown"
	"github.com/eringen/agencycms/store"
)

func handleAdminSession(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"authenticated": IsAdmin(c),
		"csrfToken":     CsrfToken(c),
	})
}

func (a *App) handleAdminLogin(c echo.Context) error {
	if !a.loginLimiter.Allow(c.RealIP()) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many login attempts, try again later")
	}
	var in struct {
		Password string `json:"password" form:"password"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid login payload")
	}
	if subtle.ConstantTimeCompare([]byte(in.Password), []byte(a.Config.AdminPassword)) != 1 {
		a.Log.WithField("remote_ip", c.RealIP()).Warn("failed admin login")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid password")
	}
	if err := setAdminSession(c); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"authenticated": true})
}

func handleAdminLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// decodeJSON decodes the request body into v, which may implement
// json.Unmarshaler to accept both key spellings.
func decodeJSON(c echo.Context, v any) error {
	if err := json.NewDecoder(c.Request().Body).Decode(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON: "+err.Error())
	}
	return nil
}

// withReadingTime fills the reading time from the content when the caller
// sent content but no estimate.
func withReadingTime(p store.PostPatch) store.PostPatch {
	if p.Content != nil && p.ReadingTime == nil {
		p.ReadingTime = store.Ptr(markdown.ReadingTime(*p.Content))
	}
	return p
}

func (a *App) handleAdminListPosts(c echo.Context) error {
	ctx := c.Request().Context()
	var (
		posts []store.Post
		err   error
	)
	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		posts, err = a.Posts.Search(ctx, q)
	} else {
		posts, err = a.Posts.GetAll(ctx)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, posts)
}

func (a *App) handleAdminGetPost(c echo.Context) error {
	post, err := a.Posts.GetBySlug(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	if post == nil {
		return notFound("post")
	}
	return c.JSON(http.StatusOK, post)
}

func (a *App) handleAdminCreatePost(c echo.Context) error {
	var patch store.PostPatch
	if err := decodeJSON(c, &patch); err != nil {
		return err
	}
	if patch.Slug == nil && patch.Title != nil {
		patch.Slug = store.Ptr(store.Slugify(*patch.Title))
	}
	post, err := a.Posts.Create(c.Request().Context(), withReadingTime(patch))
	if err != nil {
		return conflict(err, deref(patch.Slug))
	}
	a.Cache.Invalidate()
	return c.JSON(http.StatusCreated, post)
}

func (a *App) handleAdminUpdatePost(c echo.Context) error {
	var patch store.PostPatch
	if err := decodeJSON(c, &patch); err != nil {
		return err
	}
	post, err := a.Posts.Update(c.Request().Context(), c.Param("slug"), withReadingTime(patch))
	if err != nil {
		return conflict(err, deref(patch.Slug))
	}
	if post == nil {
		return notFound("post")
	}
	a.Cache.Invalidate()
	return c.JSON(http.StatusOK, post)
}

func (a *App) handleAdminDeletePost(c echo.Context) error {
	ok, err := a.Posts.Delete(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	if !ok {
		return notFound("post")
	}
	a.Cache.Invalidate()
	return c.NoContent(http.StatusNoContent)
}

func (a *App) handleAdminCreateAuthor(c echo.Context) error {
	var patch store.AuthorPatch
	if err := decodeJSON(c, &patch); err != nil {
		return err
	}
	if patch.Slug == nil && patch.Name != nil {
		patch.Slug = store.Ptr(store.Slugify(*patch.Name))
	}
	author, err := a.Authors.Create(c.Request().Context(), patch)
	if err != nil {
		return conflict(err, deref(patch.Slug))
	}
	return c.JSON(http.StatusCreated, author)
}

func (a *App) handleAdminUpdateAuthor(c echo.Context) error {
	var patch store.AuthorPatch
	if err := decodeJSON(c, &patch); err != nil {
		return err
	}
	author, err := a.Authors.Update(c.Request().Context(), c.Param("slug"), patch)
	if err != nil {
		return conflict(err, deref(patch.Slug))
	}
	if author == nil {
		return notFound("author")
	}
	return c.JSON(http.StatusOK, author)
}

func (a *App) handleAdminDeleteAuthor(c echo.Context) error {
	ok, err := a.Authors.Delete(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	if !ok {
		return notFound("author")
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *App) handleAdminCreateCategory(c echo.Context) error {
	var patch store.CategoryPatch
	if err := decodeJSON(c, &patch); err != nil {
		return err
	}
	if patch.Slug == nil && patch.Name != nil {
		patch.Slug = store.Ptr(store.Slugify(*patch.Name))
	}
	cat, err := a.Categories.Create(c.Request().Context(), patch)
	if err != nil {
		return conflict(err, deref(patch.Slug))
	}
	return c.JSON(http.StatusCreated, cat)
}

func (a *App) handleAdminUpdateCategory(c echo.Context) error {
	var patch store.CategoryPatch
	if err := decodeJSON(c, &patch); err != nil {
		return err
	}
	cat, err := a.Categories.Update(c.Request().Context(), c.Param("slug"), patch)
	if err != nil {
		return conflict(err, deref(patch.Slug))
	}
	if cat == nil {
		return notFound("category")
	}
	return c.JSON(http.StatusOK, cat)
}

func (a *App) handleAdminDeleteCategory(c echo.Context) error {
	ok, err := a.Categories.Delete(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	if !ok {
		return notFound("category")
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *App) handleAdminCreateTag(c echo.Context) error {
	var patch store.TagPatch
	if err := decodeJSON(c, &patch); err != nil {
		return err
	}
	tag, err := a.Tags.Create(c.Request().Context(), patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, tag)
}

// handleAdminBulkTags accepts a JSON array whose items are tag names or tag
// objects.
func (a *App) handleAdminBulkTags(c echo.Context) error {
	var items []json.RawMessage
	if err := decodeJSON(c, &items); err != nil {
		return err
	}
	patches := make([]store.TagPatch, 0, len(items))
	for _, raw := range items {
		var name string
		if err := json.Unmarshal(raw, &name); err == nil {
			patches = append(patches, store.TagNamed(name))
			continue
		}
		var p store.TagPatch
		if err := json.Unmarshal(raw, &p); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "tags must be names or tag objects")
		}
		patches = append(patches, p)
	}
	added, err := a.Tags.CreateMany(c.Request().Context(), patches)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"added": added, "submitted": len(patches)})
}

func (a *App) handleAdminUpdateTag(c echo.Context) error {
	var patch store.TagPatch
	if err := decodeJSON(c, &patch); err != nil {
		return err
	}
	tag, err := a.Tags.Update(c.Request().Context(), c.Param("slug"), patch)
	if err != nil {
		return conflict(err, deref(patch.Slug))
	}
	if tag == nil {
		return notFound("tag")
	}
	return c.JSON(http.StatusOK, tag)
}

func (a *App) handleAdminDeleteTag(c echo.Context) error {
	ok, err := a.Tags.Delete(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	if !ok {
		return notFound("tag")
	}
	return c.NoContent(http.StatusNoContent)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
