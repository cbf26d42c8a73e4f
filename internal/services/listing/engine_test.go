package listing

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/easyvinted/publisher/internal/common"
	"github.com/easyvinted/publisher/internal/models"
	"github.com/easyvinted/publisher/internal/services/browser"
)

const testSubmitSelector = `button[data-testid="upload-form-save-button"]`

func fastWait() browser.Backoff {
	return browser.Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2, Timeout: 50 * time.Millisecond}
}

func photoServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/missing") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("\xff\xd8\xff fake jpeg"))
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestEngine(t *testing.T, server *httptest.Server, dir string, filler Filler) *Engine {
	t.Helper()
	logger := arbor.NewLogger()
	if filler == nil {
		filler = NewAutoFiller(DefaultFieldMap(), logger)
	}
	opts := Options{
		NewListingURL:      "https://www.vinted.fr/items/new",
		PhotoInputSelector: `input[type="file"]`,
		PhotoThumbSelector: `[data-testid^="media-select-grid-item"]`,
		SubmitSelector:     testSubmitSelector,
		Readiness:          fastWait(),
		UploadWait:         fastWait(),
		SubmitTimeout:      100 * time.Millisecond,
	}
	return NewEngine(opts, NewDownloader(server.Client(), dir), filler, logger)
}

func testArticle(server *httptest.Server) *models.Article {
	return &models.Article{
		ID:          "a1",
		Title:       "Robe en lin",
		Description: "<p>Portée <strong>deux fois</strong></p>",
		Brand:       "Sézane",
		Size:        "M",
		Condition:   models.ConditionVeryGood,
		Category:    models.Category{Main: "Femmes", Sub: "Vêtements", Item: "Robes"},
		Price:       18.5,
		Photos:      []string{server.URL + "/p/front.jpg", server.URL + "/p/back.JPG"},
		Status:      models.ArticleStatusScheduled,
	}
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp photo files must be removed")
}

func TestPublish_Success(t *testing.T) {
	server := photoServer(t)
	dir := t.TempDir()
	engine := newTestEngine(t, server, dir, nil)
	page := newFakePage()

	result := engine.Publish(context.Background(), page, testArticle(server))

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "https://www.vinted.fr/items/4242", result.VintedURL)
	assert.Empty(t, result.Error)

	// one temp file per photo, present while uploading, gone afterwards
	assert.Equal(t, 2, page.uploadCount())
	assert.Equal(t, []bool{true, true}, page.fileExisted)
	assert.Contains(t, page.uploaded[0], "front-")
	assert.True(t, strings.HasSuffix(page.uploaded[1], ".jpg"))
	assertDirEmpty(t, dir)

	assert.Equal(t, "Robe en lin", page.values[`input[data-testid="title--input"]`])
	assert.Equal(t, "18.5", page.values[`input[data-testid="price-input--input"]`])
	assert.Equal(t, "Portée **deux fois**", page.values[`textarea[data-testid="description--input"]`])
	assert.Contains(t, page.selected, "Très bon état")
	assert.Equal(t, []string{"Femmes", "Vêtements", "Robes"}, page.selected[:3])

	assert.Equal(t, "navigate https://www.vinted.fr/items/new", page.calls[0])
	assert.Equal(t, "click "+testSubmitSelector, page.calls[len(page.calls)-1])
}

func TestPublish_UploadFailureStillRemovesTempFile(t *testing.T) {
	server := photoServer(t)
	dir := t.TempDir()
	engine := newTestEngine(t, server, dir, nil)
	page := newFakePage()
	page.setFilesErr = errors.New("file input detached")

	result := engine.Publish(context.Background(), page, testArticle(server))

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "file input detached")
	assert.Equal(t, 1, page.uploadCount())
	assert.Equal(t, []bool{true}, page.fileExisted)
	assertDirEmpty(t, dir)
}

func TestPublish_LocalPathRejectedWithoutUpload(t *testing.T) {
	server := photoServer(t)
	dir := t.TempDir()
	engine := newTestEngine(t, server, dir, nil)
	page := newFakePage()

	article := testArticle(server)
	article.Photos = []string{server.URL + "/p/front.jpg", "/home/me/photo.jpg"}

	result := engine.Publish(context.Background(), page, article)

	assert.False(t, result.Success)
	assert.Equal(t, `unsupported photo path "/home/me/photo.jpg": photos must be http(s) URLs`, result.Error)
	assert.Zero(t, page.uploadCount())
	assert.Empty(t, page.calls, "no navigation before validation")
	assertDirEmpty(t, dir)
}

func TestPublish_UnreachablePhoto(t *testing.T) {
	server := photoServer(t)
	dir := t.TempDir()
	engine := newTestEngine(t, server, dir, nil)
	page := newFakePage()

	article := testArticle(server)
	article.Photos = []string{server.URL + "/missing.jpg"}

	result := engine.Publish(context.Background(), page, article)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "HTTP 404")
	assert.Zero(t, page.uploadCount())
	assertDirEmpty(t, dir)
}

func TestPublish_SubmitTimeoutReportsFormErrors(t *testing.T) {
	server := photoServer(t)
	engine := newTestEngine(t, server, t.TempDir(), nil)
	page := newFakePage()
	page.afterSubmit = ""
	page.html = `<html><body><span data-testid="price--error">Le prix est trop bas</span></body></html>`

	result := engine.Publish(context.Background(), page, testArticle(server))

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "listing was not published within 100ms")
	assert.Contains(t, result.Error, "Le prix est trop bas")
}

func TestPublish_NavigationError(t *testing.T) {
	server := photoServer(t)
	engine := newTestEngine(t, server, t.TempDir(), nil)
	page := newFakePage()
	page.navigateErr = errors.New("net::ERR_TIMED_OUT")

	result := engine.Publish(context.Background(), page, testArticle(server))
	assert.False(t, result.Success)
	assert.Equal(t, "net::ERR_TIMED_OUT", result.Error)
}

func TestPublish_PanicBecomesResult(t *testing.T) {
	server := photoServer(t)
	dir := t.TempDir()
	engine := newTestEngine(t, server, dir, nil)
	page := newFakePage()
	page.clickPanics = true

	var result models.ListingResult
	require.NotPanics(t, func() {
		result = engine.Publish(context.Background(), page, testArticle(server))
	})
	assert.False(t, result.Success)
	assert.Equal(t, "page crashed", result.Error)
	assertDirEmpty(t, dir)
}

func TestPublish_ManualFill(t *testing.T) {
	server := photoServer(t)
	var out bytes.Buffer
	filler := NewManualFiller(strings.NewReader("\n"), &out, arbor.NewLogger())
	engine := newTestEngine(t, server, t.TempDir(), filler)
	page := newFakePage()

	result := engine.Publish(context.Background(), page, testArticle(server))

	require.True(t, result.Success, result.Error)
	assert.Empty(t, page.values, "manual mode must not touch form fields")
	assert.Contains(t, out.String(), "Robe en lin")
}

func TestManualFill_ContextCancelled(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	filler := NewManualFiller(r, &bytes.Buffer{}, arbor.NewLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = filler.Fill(ctx, newFakePage(), &models.Article{Title: "x", Price: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCanonicalItemURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://www.vinted.fr/items/4242-robe?referrer=upload", "https://www.vinted.fr/items/4242", true},
		{"https://www.vinted.fr/items/99", "https://www.vinted.fr/items/99", true},
		{"https://www.vinted.fr/items/new", "", false},
		{"https://www.vinted.fr/member/1", "", false},
	}
	for _, tt := range tests {
		got, ok := CanonicalItemURL(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestTempPattern(t *testing.T) {
	assert.Equal(t, "front-*.jpg", tempPattern("https://cdn.example.com/u/1/front.JPG?token=x"))
	assert.Equal(t, "photo-*.jpg", tempPattern("https://cdn.example.com/"))
	assert.Equal(t, "my_photo-*.png", tempPattern("https://cdn.example.com/my%20photo.png"))
}

func TestDownload_SameURLGetsDistinctFiles(t *testing.T) {
	server := photoServer(t)
	dir := t.TempDir()
	downloader := NewDownloader(server.Client(), dir)

	var paths []string
	for i := 0; i < 5; i++ {
		path, err := downloader.Download(context.Background(), server.URL+"/p/front.jpg")
		require.NoError(t, err)
		assert.Equal(t, dir, filepath.Dir(path))
		assert.True(t, strings.HasPrefix(filepath.Base(path), "front-"))
		assert.True(t, strings.HasSuffix(path, ".jpg"))
		paths = append(paths, path)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, len(paths))
	for _, path := range paths {
		body, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "\xff\xd8\xff fake jpeg", string(body))
	}
}

func TestPublish_WaitsOnConfiguredThumbnailSelector(t *testing.T) {
	server := photoServer(t)
	dir := t.TempDir()
	engine := newTestEngine(t, server, dir, nil)
	engine.opts.PhotoThumbSelector = "li.uploaded-photo"
	page := newFakePage()

	result := engine.Publish(context.Background(), page, testArticle(server))

	require.True(t, result.Success, result.Error)
	assert.Positive(t, page.counted["li.uploaded-photo"])
	assert.Zero(t, page.counted[`[data-testid^="media-select-grid-item"]`])
}

func TestOptionsFromConfig_Selectors(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Listing.PhotoThumbSelector = "li.uploaded-photo"
	config.Listing.SubmitSelector = "button.save"

	opts := OptionsFromConfig(config)
	assert.Equal(t, "li.uploaded-photo", opts.PhotoThumbSelector)
	assert.Equal(t, "button.save", opts.SubmitSelector)
	assert.Equal(t, `input[type="file"]`, opts.PhotoInputSelector)
}

func TestValidatePhotoRefs(t *testing.T) {
	assert.NoError(t, ValidatePhotoRefs([]string{"https://a.example/1.jpg", "http://b.example/2.jpg"}))

	err := ValidatePhotoRefs([]string{"file:///tmp/x.jpg"})
	assert.ErrorIs(t, err, models.ErrUnsupportedPhoto)
	assert.Error(t, ValidatePhotoRefs([]string{"C:\\photos\\x.jpg"}))
	assert.Error(t, ValidatePhotoRefs([]string{"photo.jpg"}))
}
