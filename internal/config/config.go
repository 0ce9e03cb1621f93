// Package config holds the Arguments struct shared by the download,
// bulk, and serve commands, plus the header parsing and outfile-templating
// helpers built from cmd/root.go's flags and viper bindings.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Arguments mirrors the CLI surface: one struct built once from
// cobra/viper flags and threaded through every command.
type Arguments struct {
	InputURI string
	Outfile  string

	Dezoomer string

	Largest    bool
	MaxWidth   int
	MaxHeight  int
	ZoomLevel  int
	HasZoom    bool
	ImageIndex int
	HasImage   bool

	Parallelism      int
	Retries          int
	RetryDelay       time.Duration
	Compression      uint8
	Headers          []string
	MaxIdlePerHost   int
	AcceptInvalid    bool
	MinInterval      time.Duration
	Timeout          time.Duration
	ConnectTimeout   time.Duration
	Logging          string
	TileCache        string
	Bulk             string
	// Interactive controls whether an ambiguous image or zoom-level choice
	// prompts on stdin. The plain CLI path defaults this true; the bulk
	// driver forces it false since there is no user around to answer.
	Interactive bool
}

// Default returns an Arguments populated with the same defaults
// cmd/root.go's init() binds as flag defaults.
func Default() Arguments {
	return Arguments{
		Dezoomer:       "auto",
		Parallelism:    16,
		Retries:        1,
		RetryDelay:     2 * time.Second,
		Compression:    5,
		MaxIdlePerHost: 32,
		MinInterval:    50 * time.Millisecond,
		Timeout:        30 * time.Second,
		ConnectTimeout: 6 * time.Second,
		Logging:        "info",
		Interactive:    true,
	}
}

// ParseHeaders turns repeated "--header 'Name: Value'" flags into a map,
// the same shape fetch.Client.applyHeaders expects.
func ParseHeaders(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header %q, expected \"Name: Value\"", h)
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return headers, nil
}

// OutfileForIndex implements the bulk driver's `_NNNN` output suffixing:
// index is 1-based, suffix starts at 0001.
func OutfileForIndex(template string, index int) string {
	if template == "" {
		return template
	}
	ext := ""
	base := template
	if dot := strings.LastIndex(template, "."); dot > strings.LastIndex(template, "/") {
		ext = template[dot:]
		base = template[:dot]
	}
	return fmt.Sprintf("%s_%s%s", base, pad4(index), ext)
}

func pad4(n int) string {
	s := strconv.Itoa(n)
	for len(s) < 4 {
		s = "0" + s
	}
	return s
}
