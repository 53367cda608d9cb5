package agencycms

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"github.com/eringen/agencycms/imaging"
	"github.com/eringen/agencycms/store"
)

// Render writes a templ component as an HTTP 200 HTML response.
func Render(c echo.Context, cmp templ.Component) error {
	return RenderStatus(c, http.StatusOK, cmp)
}

// RenderStatus writes a templ component with a specific HTTP status code.
func RenderStatus(c echo.Context, code int, cmp templ.Component) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(code)
	return cmp.Render(c.Request().Context(), c.Response().Writer)
}

type errorBody struct {
	Error string `json:"error"`
}

func notFound(entity string) error {
	return echo.NewHTTPError(http.StatusNotFound, entity+" not found")
}

// conflict turns a duplicate-key error into the 409 clients expect.
func conflict(err error, slug string) error {
	if eris.Is(err, store.ErrDuplicateSlug) {
		return echo.NewHTTPError(http.StatusConflict, fmt.Sprintf("slug %q already exists", slug))
	}
	return err
}

// statusOf maps an error to the HTTP status and client message.
func statusOf(err error) (int, string) {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code, fmt.Sprint(he.Message)
	case eris.Is(err, store.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "service temporarily unavailable"
	case eris.Is(err, store.ErrDuplicateSlug):
		return http.StatusConflict, err.Error()
	case eris.Is(err, store.ErrValidation), eris.Is(err, imaging.ErrUnsupported):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code, msg := statusOf(err)
	entry := a.Log.WithFields(logrus.Fields{
		"method": c.Request().Method,
		"uri":    c.Request().RequestURI,
		"status": code,
	})
	switch {
	case code >= 500 && code != http.StatusServiceUnavailable:
		entry.WithError(err).Error("request failed")
	case code == http.StatusServiceUnavailable:
		entry.WithError(err).Warn("storage unavailable")
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, errorBody{Error: msg})
}
