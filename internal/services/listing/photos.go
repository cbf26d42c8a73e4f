package listing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/easyvinted/publisher/internal/models"
)

// IsRemoteURL reports whether ref is an absolute http(s) URL
func IsRemoteURL(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ValidatePhotoRefs fails on the first reference that is not fetchable
func ValidatePhotoRefs(photos []string) error {
	for _, ref := range photos {
		if !IsRemoteURL(ref) {
			return fmt.Errorf("%w %q: photos must be http(s) URLs", models.ErrUnsupportedPhoto, ref)
		}
	}
	return nil
}

// tempPattern derives the os.CreateTemp pattern <basename>-*<ext> from the URL path
func tempPattern(rawURL string) string {
	base := "photo"
	ext := ".jpg"
	if u, err := url.Parse(rawURL); err == nil {
		name := path.Base(u.Path)
		if name != "" && name != "." && name != "/" {
			if e := path.Ext(name); e != "" {
				ext = strings.ToLower(e)
				name = strings.TrimSuffix(name, e)
			}
			if name != "" {
				base = name
			}
		}
	}
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, base)
	return base + "-*" + ext
}

// Downloader fetches remote photos into a local directory
type Downloader struct {
	client *http.Client
	dir    string
}

// NewDownloader creates a downloader writing under dir (os.TempDir when empty)
func NewDownloader(client *http.Client, dir string) *Downloader {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Downloader{client: client, dir: dir}
}

// Download writes rawURL to a uniquely named file and returns its path.
// A partially written file is removed on error.
func (d *Downloader) Download(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid photo URL %s: %w", rawURL, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download photo %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download photo %s: HTTP %d", rawURL, resp.StatusCode)
	}

	file, err := os.CreateTemp(d.dir, tempPattern(rawURL))
	if err != nil {
		return "", fmt.Errorf("failed to create temp photo file: %w", err)
	}
	target := file.Name()

	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		os.Remove(target)
		return "", fmt.Errorf("failed to write photo %s: %w", rawURL, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(target)
		return "", fmt.Errorf("failed to write photo %s: %w", rawURL, err)
	}
	return target, nil
}
