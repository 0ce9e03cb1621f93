// Package bulktext implements the bulk-text dezoomer: a plain-text list of
// URLs, one per line, blank lines and '#' comments ignored, an optional
// title after the first whitespace.
package bulktext

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/mlb/dezoomify-rs/internal/dezoomer"
)

const Name = "bulk_text"

type Dezoomer struct{}

func New() *Dezoomer { return &Dezoomer{} }

func (Dezoomer) Name() string { return Name }

func (d Dezoomer) Resolve(in dezoomer.Input) (dezoomer.Result, error) {
	if in.Data == nil {
		return dezoomer.Result{}, &dezoomer.NeedsDataError{URI: in.URI}
	}
	urls := parseTextURLs(string(in.Data))
	if len(urls) == 0 {
		return dezoomer.Result{}, &dezoomer.WrongFormatError{Name: Name, Reason: "no valid URLs found in text file"}
	}
	return dezoomer.URLsResult(urls...), nil
}

func parseTextURLs(content string) []dezoomer.URLWithTitle {
	var urls []dezoomer.URLWithTitle
	for lineNum, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		rawURL, title, hasTitle := trimmed, "", false
		if idx := strings.IndexAny(trimmed, " \t"); idx >= 0 {
			rawURL = trimmed[:idx]
			title = strings.TrimSpace(trimmed[idx+1:])
			hasTitle = title != ""
		}
		if !hasTitle {
			title = titleFromURL(rawURL, lineNum+1)
		}
		urls = append(urls, dezoomer.URLWithTitle{URL: rawURL, Title: title})
	}
	return urls
}

func titleFromURL(rawURL string, lineNumber int) string {
	if u, err := url.Parse(rawURL); err == nil {
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		for i := len(segments) - 1; i >= 0; i-- {
			if segments[i] == "" {
				continue
			}
			name := segments[i]
			if dot := strings.LastIndex(name, "."); dot > 0 {
				name = name[:dot]
			}
			return name
		}
	}
	return "image " + strconv.Itoa(lineNumber)
}
