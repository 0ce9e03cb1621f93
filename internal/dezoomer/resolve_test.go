package dezoomer

import (
	"context"
	"errors"
	"testing"

	"github.com/mlb/dezoomify-rs/internal/fetch"
	"github.com/mlb/dezoomify-rs/internal/tile"
)

type fakeImage struct{}

func (fakeImage) Title() (string, bool)      { return "", false }
func (fakeImage) Levels() ([]tile.Level, error) { return nil, nil }

// terminalDezoomer resolves any input straight to a fixed set of images.
type terminalDezoomer struct {
	name   string
	claims func(uri string) bool
	result Result
}

func (d *terminalDezoomer) Name() string { return d.name }
func (d *terminalDezoomer) Resolve(in Input) (Result, error) {
	if !d.claims(in.URI) {
		return Result{}, &WrongFormatError{Name: d.name}
	}
	return d.result, nil
}

func TestResolveAutoPicksFirstApplicable(t *testing.T) {
	reg := NewRegistry(
		&terminalDezoomer{name: "wrong", claims: func(string) bool { return false }},
		&terminalDezoomer{name: "right", claims: func(string) bool { return true }, result: ImagesResult(fakeImage{})},
	)
	r := NewResolver(fetch.New(fetch.DefaultConfig(), fetch.NewHostLimiter(0)))
	res, name, err := r.ResolveAuto(context.Background(), reg, "http://example.com/x")
	if err != nil {
		t.Fatalf("ResolveAuto: %v", err)
	}
	if name != "right" || len(res.Images) != 1 {
		t.Fatalf("unexpected result: name=%s images=%d", name, len(res.Images))
	}
}

func TestResolveAutoReturnsAllFailedErrorWhenNoneMatch(t *testing.T) {
	reg := NewRegistry(&terminalDezoomer{name: "a", claims: func(string) bool { return false }})
	r := NewResolver(fetch.New(fetch.DefaultConfig(), fetch.NewHostLimiter(0)))
	_, _, err := r.ResolveAuto(context.Background(), reg, "http://example.com/x")
	if err == nil {
		t.Fatal("expected an error when no dezoomer applies")
	}
	if _, ok := err.(*AllFailedError); !ok {
		t.Fatalf("expected *AllFailedError, got %T", err)
	}
}

// recursingDezoomer always claims and returns an ImageURLs pointing at
// itself, used to exercise the depth cap.
type recursingDezoomer struct{}

func (recursingDezoomer) Name() string { return "loop" }
func (recursingDezoomer) Resolve(in Input) (Result, error) {
	return URLsResult(URLWithTitle{URL: in.URI + "/next", Title: "next"}), nil
}

func TestImagesEnforcesMaxDepth(t *testing.T) {
	reg := NewRegistry(recursingDezoomer{})
	r := NewResolver(fetch.New(fetch.DefaultConfig(), fetch.NewHostLimiter(0)))
	r.MaxDepth = 2
	_, err := r.Images(context.Background(), reg, "http://example.com/start")
	if err == nil {
		t.Fatal("expected a depth-exceeded error")
	}
	var depthErr *DepthExceededError
	if !errors.As(err, &depthErr) {
		t.Fatalf("expected a *DepthExceededError in the chain, got %T: %v", err, err)
	}
}
