package agencycms

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rotisserie/eris"

	"github.com/eringen/agencycms/imaging"
	"github.com/eringen/agencycms/store"
)

const maxUploadSize = 10 << 20 // 10MB

func mediaID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid media id")
	}
	return id, nil
}

func (a *App) handleMediaList(c echo.Context) error {
	items, err := a.Media.Search(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (a *App) handleMediaCount(c echo.Context) error {
	n, err := a.Media.Count(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int64{"count": n})
}

func (a *App) handleMediaGet(c echo.Context) error {
	id, err := mediaID(c)
	if err != nil {
		return err
	}
	md, err := a.Media.GetByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if md == nil {
		return notFound("media")
	}
	return c.JSON(http.StatusOK, md)
}

// handleMediaUpload processes the uploaded image, writes it under UploadDir
// with a name free on disk and in the library, then records it.
func (a *App) handleMediaUpload(c echo.Context) error {
	ctx := c.Request().Context()
	file, err := c.FormFile("file")
	if err != nil {
		file, err = c.FormFile("image")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "no file provided")
	}
	if file.Size > maxUploadSize {
		return echo.NewHTTPError(http.StatusBadRequest, "file too large (max 10MB)")
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, maxUploadSize+1))
	if err != nil {
		return eris.Wrap(err, "reading upload")
	}
	if len(data) > maxUploadSize {
		return echo.NewHTTPError(http.StatusBadRequest, "file too large (max 10MB)")
	}

	res, err := imaging.Process(data, file.Header.Get(echo.HeaderContentType))
	if err != nil {
		return err
	}

	dir := a.Config.UploadDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "creating uploads dir %s", dir)
	}
	base := store.Slugify(strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename)))
	var lookupErr error
	filename := imaging.UniqueFilename(base, res.Ext, func(name string) bool {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
		existing, err := a.Media.GetByFilename(ctx, name)
		if err != nil {
			lookupErr = err
			return false
		}
		return existing != nil
	})
	if lookupErr != nil {
		return lookupErr
	}

	diskPath := filepath.Join(dir, filename)
	if err := os.WriteFile(diskPath, res.Data, 0o644); err != nil {
		return eris.Wrapf(err, "writing %s", diskPath)
	}

	patch := store.MediaPatch{
		Filename:     &filename,
		OriginalName: store.Ptr(file.Filename),
		Path:         &diskPath,
		URL:          store.Ptr(path.Join(a.Config.UploadURLPrefix, filename)),
		MimeType:     &res.MimeType,
		Size:         store.Ptr(int64(len(res.Data))),
	}
	if res.Width != nil {
		patch.Width = store.Ptr(int64(*res.Width))
		patch.Height = store.Ptr(int64(*res.Height))
	}
	if alt := strings.TrimSpace(c.FormValue("altText")); alt != "" {
		patch.AltText = &store.NullableString{Value: alt, Valid: true}
	}

	md, err := a.Media.Create(ctx, patch)
	if err != nil {
		_ = os.Remove(diskPath)
		return err
	}
	a.Log.WithField("filename", filename).Info("media uploaded")
	return c.JSON(http.StatusCreated, md)
}

func (a *App) handleMediaUpdate(c echo.Context) error {
	id, err := mediaID(c)
	if err != nil {
		return err
	}
	var patch store.MediaPatch
	if err := decodeJSON(c, &patch); err != nil {
		return err
	}
	// Only metadata is editable; the file location stays with the upload.
	patch.Filename, patch.Path, patch.URL, patch.MimeType, patch.Size = nil, nil, nil, nil, nil
	md, err := a.Media.Update(c.Request().Context(), id, patch)
	if err != nil {
		return err
	}
	if md == nil {
		return notFound("media")
	}
	return c.JSON(http.StatusOK, md)
}

// handleMediaDelete removes the file, then the row.
func (a *App) handleMediaDelete(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := mediaID(c)
	if err != nil {
		return err
	}
	md, err := a.Media.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if md == nil {
		return notFound("media")
	}
	if err := os.Remove(md.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return eris.Wrapf(err, "removing %s", md.Path)
	}
	if _, err := a.Media.Delete(ctx, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
