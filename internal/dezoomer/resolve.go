package dezoomer

import (
	"context"
	"fmt"

	"github.com/mlb/dezoomify-rs/internal/fetch"
	"github.com/mlb/dezoomify-rs/internal/tile"
)

// DefaultMaxDepth bounds the ImageURLs -> fetch -> Resolve recursion a
// manifest of manifests could otherwise drive forever.
const DefaultMaxDepth = 4

// DepthExceededError is returned once recursion through ImageURLs results
// exceeds MaxDepth.
type DepthExceededError struct {
	MaxDepth int
	URI      string
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("resolver depth exceeded %d levels at %s, giving up", e.MaxDepth, e.URI)
}

// AllFailedError wraps every per-dezoomer error collected while trying
// every entry in a registry.
type AllFailedError struct {
	Attempts []NamedError
}

type NamedError struct {
	Dezoomer string
	Err      error
}

func (e *AllFailedError) Error() string {
	if len(e.Attempts) == 0 {
		return "no dezoomer available"
	}
	msg := "tried every dezoomer, none succeeded:"
	for _, a := range e.Attempts {
		msg += fmt.Sprintf("\n - %s: %v", a.Dezoomer, a.Err)
	}
	return msg
}

// Resolver drives one or more dezoomers through the NeedsData retry loop
// and recursively follows ImageURLs results, using client to fetch
// manifests and referenced pages on demand.
type Resolver struct {
	Client   *fetch.Client
	MaxDepth int
}

func NewResolver(client *fetch.Client) *Resolver {
	return &Resolver{Client: client, MaxDepth: DefaultMaxDepth}
}

// resolveOne drives a single named dezoomer to completion against uri,
// fetching whatever it asks for via NeedsDataError until it either
// succeeds or gives up.
func (r *Resolver) resolveOne(ctx context.Context, d Dezoomer, uri string) (Result, error) {
	in := Input{URI: uri}
	for {
		res, err := d.Resolve(in)
		if err == nil {
			return res, nil
		}
		var needs *NeedsDataError
		if !asNeedsData(err, &needs) {
			return Result{}, err
		}
		body, ferr := r.Client.Fetch(ctx, needs.URI, nil)
		if ferr != nil {
			return Result{}, fmt.Errorf("fetching %s for %s dezoomer: %w", needs.URI, d.Name(), ferr)
		}
		in = Input{URI: needs.URI, Data: body}
	}
}

func asNeedsData(err error, target **NeedsDataError) bool {
	if nd, ok := err.(*NeedsDataError); ok {
		*target = nd
		return true
	}
	return false
}

// ResolveAuto tries every dezoomer in reg, in the order PrioritizeForURL
// puts them in, and returns the first one that resolves the input.
func (r *Resolver) ResolveAuto(ctx context.Context, reg *Registry, uri string) (Result, string, error) {
	ordered := PrioritizeForURL(reg.All(), uri)
	var attempts []NamedError
	for _, d := range ordered {
		res, err := r.resolveOne(ctx, d, uri)
		if err == nil {
			return res, d.Name(), nil
		}
		attempts = append(attempts, NamedError{d.Name(), err})
	}
	return Result{}, "", &AllFailedError{Attempts: attempts}
}

// Images fully flattens a Result into a list of ready-to-fetch images,
// recursively resolving any ImageURLs by fetching and re-running the
// registry against them, up to MaxDepth levels deep.
func (r *Resolver) Images(ctx context.Context, reg *Registry, uri string) ([]tile.Image, error) {
	return r.imagesAt(ctx, reg, "auto", uri, 0)
}

// ImagesWithDezoomer is Images, but pinned to a named dezoomer instead of
// running full auto-detection, matching the `--dezoomer` flag. "auto"
// behaves exactly like Images.
func (r *Resolver) ImagesWithDezoomer(ctx context.Context, reg *Registry, dezoomerName, uri string) ([]tile.Image, error) {
	return r.imagesAt(ctx, reg, dezoomerName, uri, 0)
}

func (r *Resolver) imagesAt(ctx context.Context, reg *Registry, dezoomerName, uri string, depth int) ([]tile.Image, error) {
	if depth > r.MaxDepth {
		return nil, &DepthExceededError{MaxDepth: r.MaxDepth, URI: uri}
	}
	res, err := r.resolveNamed(ctx, reg, dezoomerName, uri)
	if err != nil {
		return nil, err
	}
	images := append([]tile.Image(nil), res.Images...)
	for _, link := range res.ImageURLs {
		nested, err := r.imagesAt(ctx, reg, dezoomerName, link.URL, depth+1)
		if err != nil {
			return nil, fmt.Errorf("resolving %q: %w", link.Title, err)
		}
		images = append(images, nested...)
	}
	return images, nil
}

func (r *Resolver) resolveNamed(ctx context.Context, reg *Registry, dezoomerName, uri string) (Result, error) {
	if dezoomerName == "" || dezoomerName == "auto" {
		res, _, err := r.ResolveAuto(ctx, reg, uri)
		return res, err
	}
	d, err := reg.ByName(dezoomerName)
	if err != nil {
		return Result{}, err
	}
	return r.resolveOne(ctx, d, uri)
}
