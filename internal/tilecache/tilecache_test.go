package tilecache

import "testing"

func TestPutThenGetRoundTrips(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)
	url := "https://example.com/tiles/0-0.jpg"
	data := []byte("fake jpeg bytes")

	if err := c.Put(url, nil, "image/jpeg", data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok := c.Get(url, nil)
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if string(got) != string(data) {
		t.Fatalf("round-tripped data mismatch: got %q", got)
	}
}

func TestGetMissesForUnknownURL(t *testing.T) {
	c := New(t.TempDir())
	if _, ok := c.Get("https://example.com/nope.jpg", nil); ok {
		t.Fatal("expected a cache miss")
	}
}

func TestKeyDependsOnHeaders(t *testing.T) {
	url := "https://example.com/x.jpg"
	k1 := Key(url, map[string]string{"Authorization": "a"})
	k2 := Key(url, map[string]string{"Authorization": "b"})
	if k1 == k2 {
		t.Fatal("expected different keys for different headers")
	}
}

func TestKeyIsOrderIndependentAcrossHeaders(t *testing.T) {
	url := "https://example.com/x.jpg"
	k1 := Key(url, map[string]string{"A": "1", "B": "2"})
	k2 := Key(url, map[string]string{"B": "2", "A": "1"})
	if k1 != k2 {
		t.Fatal("expected header order not to affect the cache key")
	}
}

func TestExtensionFromContentType(t *testing.T) {
	cases := []struct {
		ct   string
		want string
	}{
		{"image/jpeg", ".jpg"},
		{"image/png", ".png"},
		{"image/webp", ".webp"},
	}
	for _, c := range cases {
		if got := ExtensionFromContentType("https://example.com/x", c.ct); got != c.want {
			t.Errorf("ExtensionFromContentType(%q) = %q, want %q", c.ct, got, c.want)
		}
	}
}
