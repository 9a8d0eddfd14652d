// Package source - Frame providers: video capture devices, image sequences and still images.
package source

import (
	"context"

	"github.com/nvr-ai/go-detect/images"
)

// Provider hands out the current frame of a video source.
//
// Next returns ok == false when no frame is available right now, which is not
// an error: the caller should try again later.
type Provider interface {
	Next(ctx context.Context) (frame images.Frame, ok bool, err error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context) (images.Frame, bool, error)

// Next implements Provider.
func (f ProviderFunc) Next(ctx context.Context) (images.Frame, bool, error) {
	return f(ctx)
}
