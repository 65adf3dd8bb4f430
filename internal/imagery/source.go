// Package imagery fetches SDO images from the NASA browse archive and from
// Helioviewer.
package imagery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrNotFound means the source has no image for the requested date.
	ErrNotFound = errors.New("no image available")
	// ErrInvalidImage marks payloads that are not a usable JPEG or PNG,
	// such as HTML error placeholders served with status 200.
	ErrInvalidImage = errors.New("invalid image payload")
)

// Image is one downloaded payload.
type Image struct {
	Data     []byte
	Captured time.Time // observation time reported by the source
	URL      string
}

// Source fetches one image per date for a band code, or for a composite
// code when SupportsCombined is true.
type Source interface {
	Name() string
	SupportsCombined() bool
	Fetch(ctx context.Context, date time.Time, code string, resolution int) (*Image, error)
}

// ClientOptions tune the shared HTTP client.
type ClientOptions struct {
	Timeout   time.Duration
	Retries   int
	RetryWait time.Duration
	UserAgent string
}

// DefaultClientOptions match the upstream etiquette used everywhere else:
// 30s timeout, three transport retries two seconds apart.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Timeout:   30 * time.Second,
		Retries:   3,
		RetryWait: 2 * time.Second,
		UserAgent: "solarimager",
	}
}

// NewHTTPClient builds the resty client shared by the sources.
func NewHTTPClient(opts ClientOptions) *resty.Client {
	client := resty.New()
	client.SetTimeout(opts.Timeout)
	client.SetRetryCount(opts.Retries)
	client.SetRetryWaitTime(opts.RetryWait)
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	return client
}

// observationTime is the moment on date a source should aim for.
func observationTime(date time.Time, preferred time.Duration) time.Time {
	d := date.UTC()
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC).Add(preferred)
}

// NewSource returns the source named by IMAGE_SOURCE.
func NewSource(name string, client *resty.Client, sdoURL, helioviewerURL string, preferred time.Duration) (Source, error) {
	switch name {
	case "sdo", "":
		return NewSDOSource(client, sdoURL, preferred), nil
	case "helioviewer":
		return NewHelioviewerSource(client, helioviewerURL, preferred), nil
	}
	return nil, fmt.Errorf("unknown image source %q", name)
}
