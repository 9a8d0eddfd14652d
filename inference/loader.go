package inference

import (
	"context"
	"net/url"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// DefaultDownloadTimeout bounds a model download.
const DefaultDownloadTimeout = 2 * time.Minute

// Loader fetches model bytes from a URL or a path.
type Loader struct {
	client *resty.Client
}

// NewLoader creates a loader whose HTTP downloads time out after timeout.
//
// Arguments:
//   - timeout: The download timeout; non-positive values use DefaultDownloadTimeout.
//
// Returns:
//   - *Loader: The loader.
func NewLoader(timeout time.Duration) *Loader {
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}
	return &Loader{
		client: resty.New().
			SetTimeout(timeout).
			SetRetryCount(2).
			SetRetryWaitTime(500 * time.Millisecond),
	}
}

// Load returns the model found at location.
//
// Supported locations are http(s) URLs, file URLs and plain filesystem paths.
//
// Arguments:
//   - ctx: Cancels an in-flight download.
//   - location: The model location.
//
// Returns:
//   - []byte: The model bytes.
//   - error: An error wrapping ErrModelLoad.
//
// @example
// model, err := NewLoader(0).Load(ctx, "https://example.com/yolov8n.onnx")
//
//	if errors.Is(err, ErrModelLoad) {
//	    log.Fatal(err)
//	}
func (l *Loader) Load(ctx context.Context, location string) ([]byte, error) {
	if location == "" {
		return nil, errors.Wrap(ErrModelLoad, "no model location configured")
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, errors.Wrapf(ErrModelLoad, "parse %q: %v", location, err)
	}

	switch u.Scheme {
	case "http", "https":
		return l.download(ctx, location)
	case "file":
		return readFile(u.Path)
	case "":
		return readFile(location)
	}
	// Windows drive letters parse as a one-letter scheme.
	if len(u.Scheme) == 1 {
		return readFile(location)
	}
	return nil, errors.Wrapf(ErrModelLoad, "unsupported scheme %q", u.Scheme)
}

func (l *Loader) download(ctx context.Context, location string) ([]byte, error) {
	resp, err := l.client.R().SetContext(ctx).Get(location)
	if err != nil {
		return nil, errors.Wrapf(ErrModelLoad, "download %s: %v", location, err)
	}
	if resp.IsError() {
		return nil, errors.Wrapf(ErrModelLoad, "download %s: %s", location, resp.Status())
	}
	if len(resp.Body()) == 0 {
		return nil, errors.Wrapf(ErrModelLoad, "download %s: empty body", location)
	}
	return resp.Body(), nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrModelLoad, "read %s: %v", path, err)
	}
	if len(data) == 0 {
		return nil, errors.Wrapf(ErrModelLoad, "read %s: empty file", path)
	}
	return data, nil
}

// LoadModel fetches a model with a default Loader.
func LoadModel(ctx context.Context, location string) ([]byte, error) {
	return NewLoader(0).Load(ctx, location)
}
