// Package tilecache implements a content-addressed, on-disk tile store:
// a directory holding one file per tile, named by a stable hash of its
// URL and headers, written atomically via a temp file plus rename so an
// interrupted write is never read back as valid.
package tilecache

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Cache is a directory-backed tile store. Policy is cache-first with
// 404-suppressed-on-hit: a cache hit is always served even if the origin
// now 404s that URL.
type Cache struct {
	dir string
}

func New(dir string) *Cache { return &Cache{dir: dir} }

// Key computes the content-address for a tile: base64url(sha256(canonical
// URL + normalized headers)), without an extension: Put appends one chosen
// by ExtensionFromContentType, and Get matches any extension.
func Key(url string, headers map[string]string) string {
	h := sha256.New()
	h.Write([]byte(canonicalize(url, headers)))
	sum := h.Sum(nil)
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(sum)
}

func canonicalize(url string, headers map[string]string) string {
	var b strings.Builder
	b.WriteString(url)
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "\n%s: %s", strings.ToLower(name), headers[name])
	}
	return b.String()
}

// ExtensionFromContentType maps a Content-Type value to a filename
// extension, falling back to inferring from the URL path, then ".bin".
func ExtensionFromContentType(url, contentType string) string {
	switch {
	case strings.Contains(contentType, "jpeg"), strings.Contains(contentType, "jpg"):
		return ".jpg"
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	case strings.Contains(contentType, "tiff"):
		return ".tiff"
	}
	if ext := filepath.Ext(strings.SplitN(url, "?", 2)[0]); ext != "" {
		return ext
	}
	return ".bin"
}

func (c *Cache) path(url string, headers map[string]string, ext string) string {
	return filepath.Join(c.dir, Key(url, headers)+ext)
}

// Get returns the cached bytes for url/headers, trying every plausible
// extension since the extension used to write the entry depended on the
// tile's Content-Type at fetch time. ok is false on any cache miss.
func (c *Cache) Get(url string, headers map[string]string) ([]byte, bool) {
	if c.dir == "" {
		return nil, false
	}
	key := Key(url, headers)
	matches, err := filepath.Glob(filepath.Join(c.dir, key+".*"))
	if err != nil || len(matches) == 0 {
		return nil, false
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, false
	}
	return data, true
}

// Put writes data through to the cache under url/headers's key, with an
// extension derived from contentType, atomically via temp file + rename.
// Failures are non-fatal to the caller; a nil return means the entry was
// renamed into place.
func (c *Cache) Put(url string, headers map[string]string, contentType string, data []byte) error {
	if c.dir == "" {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	ext := ExtensionFromContentType(url, contentType)
	finalPath := c.path(url, headers, ext)

	tmp, err := os.CreateTemp(c.dir, "tile-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, finalPath)
}

// DetectContentType is a small helper for callers that only have the raw
// bytes (e.g. a cache-populate path fed by http.Client responses without
// keeping the header around): it sniffs via the stdlib content detector.
func DetectContentType(data []byte) string {
	return http.DetectContentType(data)
}
