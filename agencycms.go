// Package agencycms is the content backend of an agency marketing site and
// blog, built with Go, Echo and an embedded SQLite database.
// It serves published posts, authors, categories, tags and media as JSON and
// exposes an authenticated admin API for editing them.
package agencycms

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"github.com/eringen/agencycms/store"
)

// App wires together the store, repositories, cache, handlers and
// middleware.
type App struct {
	Config SiteConfig
	Echo   *echo.Echo
	Log    *logrus.Logger
	Store  *store.Manager
	Cache  *PostCache

	Posts      *store.Posts
	Authors    *store.Authors
	Categories *store.Categories
	Tags       *store.Tags
	Media      *store.MediaLibrary

	loginLimiter    *LoginLimiter
	stopMaintenance func()
}

// Option configures additional App behavior.
type Option func(*App)

// WithManager makes the App use m instead of building its own.
func WithManager(m *store.Manager) Option {
	return func(a *App) {
		a.Store = m
	}
}

// New creates an App. The database is opened lazily on first use; call Open
// to open it eagerly.
func New(cfg SiteConfig, logger *logrus.Logger, opts ...Option) *App {
	cfg.setDefaults()
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	a := &App{
		Config: cfg,
		Echo:   echo.New(),
		Log:    logger,
	}
	a.Echo.HideBanner = true
	a.Echo.HidePort = true

	for _, opt := range opts {
		opt(a)
	}

	if a.Store == nil {
		wd, err := os.Getwd()
		if err != nil {
			wd = "."
		}
		a.Store = store.NewManager(store.Options{
			Path:       cfg.DatabasePath,
			LegacyPath: store.LegacyPath(wd),
			WorkDir:    wd,
			Logger:     logger,
		})
	}
	a.Posts = store.NewPosts(a.Store)
	a.Authors = store.NewAuthors(a.Store)
	a.Categories = store.NewCategories(a.Store)
	a.Tags = store.NewTags(a.Store)
	a.Media = store.NewMediaLibrary(a.Store)
	a.Cache = NewPostCache(a.Posts, cfg.PostCacheTTL)
	a.loginLimiter = NewLoginLimiter(5, time.Minute)

	a.setupMiddleware()
	a.setupRoutes()
	return a
}

// Open starts the maintenance jobs and initialises the database. A storage
// failure is returned but leaves the App usable: requests answer 503 until
// the database comes back.
func (a *App) Open(ctx context.Context) error {
	if a.stopMaintenance == nil {
		stop, err := store.StartMaintenance(a.Store, a.Log)
		if err != nil {
			return eris.Wrap(err, "starting maintenance")
		}
		a.stopMaintenance = stop
	}
	_, err := a.Store.Initialize(ctx)
	return err
}

// Start listens on Config.Addr until Shutdown is called.
func (a *App) Start() error {
	a.Log.WithFields(logrus.Fields{"addr": a.Config.Addr, "env": a.Config.Env}).Info("server starting")
	if err := a.Echo.Start(a.Config.Addr); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "http server")
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Echo.Shutdown(ctx)
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.GET("/healthz", a.handleHealth)
	e.GET("/readyz", a.handleReady)
	e.Static(a.Config.UploadURLPrefix, a.Config.UploadDir)

	// Public API
	e.GET("/api/posts", a.handleListPosts)
	e.GET("/api/posts/:slug", a.handleGetPost)
	e.GET("/api/posts/:slug/html", a.handlePostHTML)
	e.POST("/api/posts/:slug/views", a.handleIncrementViews)
	e.GET("/api/authors", a.handleListAuthors)
	e.GET("/api/authors/:slug", a.handleGetAuthor)
	e.GET("/api/categories", a.handleListCategories)
	e.GET("/api/categories/:slug", a.handleGetCategory)
	e.GET("/api/tags", a.handleListTags)

	// Session
	e.POST("/admin/login", a.handleAdminLogin)
	e.POST("/admin/logout", handleAdminLogout)
	e.GET("/api/admin/session", handleAdminSession)

	// Admin API
	adm := e.Group("/api/admin", requireAdmin)
	adm.GET("/posts", a.handleAdminListPosts)
	adm.POST("/posts", a.handleAdminCreatePost)
	adm.GET("/posts/:slug", a.handleAdminGetPost)
	adm.PATCH("/posts/:slug", a.handleAdminUpdatePost)
	adm.DELETE("/posts/:slug", a.handleAdminDeletePost)

	adm.GET("/authors", a.handleListAuthors)
	adm.POST("/authors", a.handleAdminCreateAuthor)
	adm.GET("/authors/:slug", a.handleGetAuthor)
	adm.PATCH("/authors/:slug", a.handleAdminUpdateAuthor)
	adm.DELETE("/authors/:slug", a.handleAdminDeleteAuthor)

	adm.GET("/categories", a.handleListCategories)
	adm.POST("/categories", a.handleAdminCreateCategory)
	adm.GET("/categories/:slug", a.handleGetCategory)
	adm.PATCH("/categories/:slug", a.handleAdminUpdateCategory)
	adm.DELETE("/categories/:slug", a.handleAdminDeleteCategory)

	adm.GET("/tags", a.handleListTags)
	adm.POST("/tags", a.handleAdminCreateTag)
	adm.POST("/tags/bulk", a.handleAdminBulkTags)
	adm.PATCH("/tags/:slug", a.handleAdminUpdateTag)
	adm.DELETE("/tags/:slug", a.handleAdminDeleteTag)

	adm.GET("/media", a.handleMediaList)
	adm.GET("/media/count", a.handleMediaCount)
	adm.POST("/media", a.handleMediaUpload)
	adm.GET("/media/:id", a.handleMediaGet)
	adm.PATCH("/media/:id", a.handleMediaUpdate)
	adm.DELETE("/media/:id", a.handleMediaDelete)
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.stopMaintenance != nil {
		a.stopMaintenance()
		a.stopMaintenance = nil
	}
	a.loginLimiter.Stop()
	return a.Store.Close()
}
