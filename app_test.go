package agencycms

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eringen/agencycms/store"
)

const testPassword = "correct horse"

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testManagerOptions(dir string, logger *logrus.Logger) store.Options {
	return store.Options{
		Path:    filepath.Join(dir, "test.db"),
		WorkDir: dir,
		TempDir: dir,
		Getenv:  func(string) string { return "" },
		Logger:  logger,
		Connect: store.Backoff{Attempts: 1, Base: time.Millisecond},
		Query:   store.Backoff{Attempts: 3, Base: time.Millisecond},
	}
}

func setupTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	logger := quietLogger()
	app := New(SiteConfig{
		AdminPassword: testPassword,
		SessionSecret: "0123456789abcdef0123456789abcdef",
		UploadDir:     filepath.Join(dir, "uploads"),
	}, logger, WithManager(store.NewManager(testManagerOptions(dir, logger))))
	if err := app.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { app.Close() })
	return app
}

// testClient carries cookies and the CSRF token between requests.
type testClient struct {
	t       *testing.T
	app     *App
	cookies map[string]*http.Cookie
	csrf    string
}

func newTestClient(t *testing.T, app *App) *testClient {
	return &testClient{t: t, app: app, cookies: map[string]*http.Cookie{}}
}

func (tc *testClient) do(method, path, contentType string, body io.Reader) *httptest.ResponseRecorder {
	tc.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tc.csrf != "" {
		req.Header.Set("X-CSRF-Token", tc.csrf)
	}
	for _, c := range tc.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	tc.app.Echo.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(tc.cookies, c.Name)
			continue
		}
		tc.cookies[c.Name] = c
	}
	return rec
}

func (tc *testClient) get(path string) *httptest.ResponseRecorder {
	return tc.do(http.MethodGet, path, "", nil)
}

func (tc *testClient) sendJSON(method, path string, v any) *httptest.ResponseRecorder {
	tc.t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		tc.t.Fatal(err)
	}
	return tc.do(method, path, "application/json", bytes.NewReader(data))
}

func (tc *testClient) fetchCSRF() {
	tc.t.Helper()
	rec := tc.get("/api/admin/session")
	if rec.Code != http.StatusOK {
		tc.t.Fatalf("session status = %d, body %s", rec.Code, rec.Body)
	}
	var out struct {
		Authenticated bool   `json:"authenticated"`
		CSRFToken     string `json:"csrfToken"`
	}
	decode(tc.t, rec, &out)
	if out.CSRFToken == "" {
		tc.t.Fatal("expected a csrf token")
	}
	tc.csrf = out.CSRFToken
}

func (tc *testClient) login() {
	tc.t.Helper()
	tc.fetchCSRF()
	rec := tc.sendJSON(http.MethodPost, "/admin/login", map[string]string{"password": testPassword})
	if rec.Code != http.StatusOK {
		tc.t.Fatalf("login status = %d, body %s", rec.Code, rec.Body)
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	decode(t, rec, &body)
	return body.Error
}

func TestHealthAndReady(t *testing.T) {
	tc := newTestClient(t, setupTestApp(t))

	if rec := tc.get("/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	rec := tc.get("/readyz")
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d, body %s", rec.Code, rec.Body)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}
}

func TestStorageFailureAnswers503(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	logger := quietLogger()
	opts := testManagerOptions(dir, logger)
	opts.Path = filepath.Join(blocker, "sub", "test.db")
	app := New(SiteConfig{AdminPassword: testPassword, SessionSecret: "s"}, logger, WithManager(store.NewManager(opts)))
	t.Cleanup(func() { app.Close() })

	if err := app.Open(context.Background()); err == nil {
		t.Fatal("expected Open to fail")
	}

	tc := newTestClient(t, app)
	if rec := tc.get("/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz = %d, want 503", rec.Code)
	}
	rec := tc.get("/api/posts")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("posts = %d, want 503", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "service temporarily unavailable" {
		t.Errorf("error = %q", msg)
	}
	if rec := tc.get("/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200 while storage is down", rec.Code)
	}
}

func TestPublicPostsHideDrafts(t *testing.T) {
	app := setupTestApp(t)
	ctx := context.Background()
	for _, p := range []store.PostPatch{
		{Slug: store.Ptr("live"), Title: store.Ptr("Live"), Content: store.Ptr("Out now"), Tags: &[]string{"Go", "go", "SQL"}},
		{Slug: store.Ptr("hidden"), Title: store.Ptr("Hidden"), Content: store.Ptr("Soon"), Draft: store.Ptr(true), Tags: &[]string{"secret"}},
	} {
		if _, err := app.Posts.Create(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	tc := newTestClient(t, app)

	var posts []store.Post
	decode(t, tc.get("/api/posts"), &posts)
	if len(posts) != 1 || posts[0].Slug != "live" {
		t.Fatalf("published = %v, want only live", posts)
	}

	rec := tc.get("/api/posts/hidden")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("draft status = %d, want 404", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "post not found" {
		t.Errorf("error = %q", msg)
	}

	var tags []string
	decode(t, tc.get("/api/tags?used=1"), &tags)
	if strings.Join(tags, ",") != "Go,SQL" {
		t.Errorf("used tags = %v, want [Go SQL]", tags)
	}

	rec = tc.get("/api/posts/live/html")
	if rec.Code != http.StatusOK {
		t.Fatalf("html status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<p>Out now</p>") {
		t.Errorf("html = %q", rec.Body.String())
	}
}

func TestIncrementViews(t *testing.T) {
	app := setupTestApp(t)
	if _, err := app.Posts.Create(context.Background(), store.PostPatch{
		Slug: store.Ptr("counted"), Title: store.Ptr("Counted"), Content: store.Ptr("x"),
	}); err != nil {
		t.Fatal(err)
	}
	tc := newTestClient(t, app)

	tc.do(http.MethodPost, "/api/posts/counted/views", "", nil)
	rec := tc.do(http.MethodPost, "/api/posts/counted/views", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("views status = %d, body %s", rec.Code, rec.Body)
	}
	var out map[string]int64
	decode(t, rec, &out)
	if out["views"] != 2 {
		t.Errorf("views = %d, want 2", out["views"])
	}

	if rec := tc.do(http.MethodPost, "/api/posts/missing/views", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing post views = %d, want 404", rec.Code)
	}
}

func TestAdminRequiresSession(t *testing.T) {
	tc := newTestClient(t, setupTestApp(t))

	if rec := tc.get("/api/admin/posts"); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous admin list = %d, want 401", rec.Code)
	}

	rec := tc.sendJSON(http.MethodPost, "/admin/login", map[string]string{"password": testPassword})
	if rec.Code != http.StatusForbidden {
		t.Errorf("login without csrf = %d, want 403", rec.Code)
	}

	tc.fetchCSRF()
	rec = tc.sendJSON(http.MethodPost, "/admin/login", map[string]string{"password": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password = %d, want 401", rec.Code)
	}

	tc.login()
	if rec := tc.get("/api/admin/posts"); rec.Code != http.StatusOK {
		t.Errorf("admin list after login = %d, want 200", rec.Code)
	}

	if rec := tc.do(http.MethodPost, "/admin/logout", "", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("logout = %d", rec.Code)
	}
	if rec := tc.get("/api/admin/posts"); rec.Code != http.StatusUnauthorized {
		t.Errorf("admin list after logout = %d, want 401", rec.Code)
	}
}

func TestAdminPostLifecycle(t *testing.T) {
	tc := newTestClient(t, setupTestApp(t))
	tc.login()

	var before []store.Post
	decode(t, tc.get("/api/posts"), &before)
	if len(before) != 0 {
		t.Fatalf("expected no posts, got %d", len(before))
	}

	payload := map[string]any{
		"title":        "Hello World",
		"content":      "A short post about nothing in particular.",
		"author_image": "/img/a.png",
		"tags":         []string{"intro"},
	}
	rec := tc.sendJSON(http.MethodPost, "/api/admin/posts", payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d, body %s", rec.Code, rec.Body)
	}
	var created store.Post
	decode(t, rec, &created)
	if created.Slug != "hello-world" {
		t.Errorf("slug = %q, want hello-world", created.Slug)
	}
	if created.ReadingTime != "1 min read" {
		t.Errorf("readingTime = %q", created.ReadingTime)
	}
	if created.AuthorImage != "/img/a.png" {
		t.Errorf("authorImage = %q", created.AuthorImage)
	}

	var after []store.Post
	decode(t, tc.get("/api/posts"), &after)
	if len(after) != 1 {
		t.Fatalf("cache not invalidated: got %d posts", len(after))
	}

	rec = tc.sendJSON(http.MethodPost, "/api/admin/posts", payload)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate = %d, want 409", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != `slug "hello-world" already exists` {
		t.Errorf("duplicate error = %q", msg)
	}

	rec = tc.sendJSON(http.MethodPost, "/api/admin/posts", map[string]any{"title": "No body"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing content = %d, want 400", rec.Code)
	}
	rec = tc.do(http.MethodPost, "/api/admin/posts", "application/json", strings.NewReader("{"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", rec.Code)
	}

	rec = tc.sendJSON(http.MethodPatch, "/api/admin/posts/hello-world", map[string]any{"title": "Hello Again", "draft": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d, body %s", rec.Code, rec.Body)
	}
	var updated store.Post
	decode(t, rec, &updated)
	if updated.Title != "Hello Again" || !updated.Draft {
		t.Errorf("updated = %+v", updated)
	}
	if rec := tc.get("/api/posts/hello-world"); rec.Code != http.StatusNotFound {
		t.Errorf("drafted post still public: %d", rec.Code)
	}

	if rec := tc.sendJSON(http.MethodPatch, "/api/admin/posts/nope", map[string]any{"title": "x"}); rec.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", rec.Code)
	}
	if rec := tc.do(http.MethodDelete, "/api/admin/posts/hello-world", "", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
	if rec := tc.do(http.MethodDelete, "/api/admin/posts/hello-world", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", rec.Code)
	}
}

func TestAdminTaxonomy(t *testing.T) {
	tc := newTestClient(t, setupTestApp(t))
	tc.login()

	rec := tc.sendJSON(http.MethodPost, "/api/admin/categories", map[string]any{"name": "Data Science", "description": "Numbers"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create category = %d, body %s", rec.Code, rec.Body)
	}
	var cat store.Category
	decode(t, rec, &cat)
	if cat.Slug != "data-science" {
		t.Errorf("category slug = %q", cat.Slug)
	}
	rec = tc.sendJSON(http.MethodPost, "/api/admin/categories", map[string]any{"name": "Data Science"})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate category = %d, want 409", rec.Code)
	}
	if rec := tc.get("/api/categories/data-science"); rec.Code != http.StatusOK {
		t.Errorf("public category = %d", rec.Code)
	}

	rec = tc.sendJSON(http.MethodPost, "/api/admin/authors", map[string]any{"name": "Ada Lovelace", "bio": "Engineer"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create author = %d, body %s", rec.Code, rec.Body)
	}
	if rec := tc.get("/api/authors/ada-lovelace"); rec.Code != http.StatusOK {
		t.Errorf("public author = %d", rec.Code)
	}

	rec = tc.sendJSON(http.MethodPost, "/api/admin/tags/bulk", []any{"Go", map[string]string{"name": "Rust"}, "go"})
	if rec.Code != http.StatusOK {
		t.Fatalf("bulk tags = %d, body %s", rec.Code, rec.Body)
	}
	var bulk map[string]int
	decode(t, rec, &bulk)
	if bulk["added"] != 2 || bulk["submitted"] != 3 {
		t.Errorf("bulk = %v, want added 2 of 3", bulk)
	}

	var tags []store.Tag
	decode(t, tc.get("/api/tags?q=ru"), &tags)
	if len(tags) != 1 || tags[0].Slug != "rust" {
		t.Errorf("tag search = %v", tags)
	}
	if rec := tc.do(http.MethodDelete, "/api/admin/tags/rust", "", nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete tag = %d", rec.Code)
	}
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 20), G: 80, B: 160, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func uploadBody(t *testing.T, field, filename string, data []byte, alt string) (string, *bytes.Buffer) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatal(err)
	}
	if alt != "" {
		if err := mw.WriteField("altText", alt); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return mw.FormDataContentType(), &body
}

func TestMediaUploadAndDelete(t *testing.T) {
	app := setupTestApp(t)
	tc := newTestClient(t, app)
	tc.login()
	data := testPNG(t, 10, 5)

	ct, body := uploadBody(t, "file", "My Photo.png", data, "Our logo")
	rec := tc.do(http.MethodPost, "/api/admin/media", ct, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body %s", rec.Code, rec.Body)
	}
	var first store.Media
	decode(t, rec, &first)
	if first.Filename != "my-photo.png" || first.URL != "/uploads/my-photo.png" {
		t.Errorf("stored as %q at %q", first.Filename, first.URL)
	}
	if first.MimeType != "image/png" {
		t.Errorf("mimeType = %q", first.MimeType)
	}
	if first.Width == nil || *first.Width != 10 || first.Height == nil || *first.Height != 5 {
		t.Errorf("dimensions = %v x %v", first.Width, first.Height)
	}
	if first.AltText == nil || *first.AltText != "Our logo" {
		t.Errorf("altText = %v", first.AltText)
	}
	if first.OriginalName != "My Photo.png" {
		t.Errorf("originalName = %q", first.OriginalName)
	}
	if _, err := os.Stat(filepath.Join(app.Config.UploadDir, "my-photo.png")); err != nil {
		t.Fatalf("file not written: %v", err)
	}

	ct, body = uploadBody(t, "image", "My Photo.png", data, "")
	rec = tc.do(http.MethodPost, "/api/admin/media", ct, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("second upload = %d, body %s", rec.Code, rec.Body)
	}
	var second store.Media
	decode(t, rec, &second)
	if second.Filename != "my-photo-2.png" {
		t.Errorf("second filename = %q, want my-photo-2.png", second.Filename)
	}

	rec = tc.get("/uploads/my-photo.png")
	if rec.Code != http.StatusOK {
		t.Errorf("static file = %d", rec.Code)
	}
	if cc := rec.Header().Get("Cache-Control"); !strings.Contains(cc, "immutable") {
		t.Errorf("upload Cache-Control = %q", cc)
	}

	var count map[string]int64
	decode(t, tc.get("/api/admin/media/count"), &count)
	if count["count"] != 2 {
		t.Errorf("count = %d, want 2", count["count"])
	}

	path := "/api/admin/media/" + strconv.FormatInt(first.ID, 10)
	rec = tc.sendJSON(http.MethodPatch, path, map[string]any{"altText": nil})
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d, body %s", rec.Code, rec.Body)
	}
	var cleared store.Media
	decode(t, rec, &cleared)
	if cleared.AltText != nil {
		t.Errorf("altText = %q, want cleared", *cleared.AltText)
	}

	if rec := tc.do(http.MethodDelete, path, "", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d, body %s", rec.Code, rec.Body)
	}
	if _, err := os.Stat(filepath.Join(app.Config.UploadDir, "my-photo.png")); !os.IsNotExist(err) {
		t.Errorf("file still present after delete: %v", err)
	}
	if rec := tc.get(path); rec.Code != http.StatusNotFound {
		t.Errorf("get deleted = %d, want 404", rec.Code)
	}
	if rec := tc.get("/api/admin/media/abc"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id = %d, want 400", rec.Code)
	}
}

func TestMediaUploadRejectsNonImages(t *testing.T) {
	tc := newTestClient(t, setupTestApp(t))
	tc.login()

	ct, body := uploadBody(t, "file", "notes.txt", []byte("just some text"), "")
	rec := tc.do(http.MethodPost, "/api/admin/media", ct, body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("text upload = %d, want 400", rec.Code)
	}

	rec = tc.do(http.MethodPost, "/api/admin/media", "application/json", strings.NewReader("{}"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing file = %d, want 400", rec.Code)
	}
}
