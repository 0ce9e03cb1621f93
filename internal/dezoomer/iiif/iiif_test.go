package iiif

import (
	"encoding/json"
	"testing"
)

func TestDecodeServicesNormalizesSingleObjectIntoSlice(t *testing.T) {
	services := decodeServices(json.RawMessage(`{"@id": "https://example.com/iiif/img1"}`))
	if len(services) != 1 {
		t.Fatalf("expected 1 service, got %d", len(services))
	}
	if services[0].ID != "https://example.com/iiif/img1" {
		t.Fatalf("unexpected service id: %+v", services[0])
	}
}

func TestDecodeServicesPassesThroughArray(t *testing.T) {
	services := decodeServices(json.RawMessage(`[{"id": "https://example.com/iiif/a"}, {"id": "https://example.com/iiif/b"}]`))
	if len(services) != 2 {
		t.Fatalf("expected 2 services, got %d", len(services))
	}
	if services[0].ID2 != "https://example.com/iiif/a" || services[1].ID2 != "https://example.com/iiif/b" {
		t.Fatalf("unexpected services: %+v", services)
	}
}

func TestDecodeServicesEmptyReturnsNil(t *testing.T) {
	if got := decodeServices(nil); got != nil {
		t.Fatalf("expected nil for empty input, got %+v", got)
	}
}

func TestTryManifestExpandsV3CanvasesWithSingleService(t *testing.T) {
	manifestJSON := `{
		"items": [
			{
				"label": "Page 1",
				"items": [
					{"items": [{"body": {"service": {"id": "https://example.com/iiif/page1"}}}]}
				]
			}
		]
	}`
	urls, ok := tryManifest([]byte(manifestJSON))
	if !ok {
		t.Fatal("expected tryManifest to recognize a v3 manifest")
	}
	if len(urls) != 1 {
		t.Fatalf("expected 1 url, got %d", len(urls))
	}
	if urls[0].URL != "https://example.com/iiif/page1/info.json" {
		t.Fatalf("unexpected url: %+v", urls[0])
	}
	if urls[0].Title != "Page 1" {
		t.Fatalf("unexpected title: %q", urls[0].Title)
	}
}
