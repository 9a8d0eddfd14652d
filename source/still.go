package source

import (
	"context"
	"image"
	"os"

	// Decoders for still images.
	_ "image/jpeg"
	_ "image/png"

	"github.com/nvr-ai/go-detect/images"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
)

// Still provides the same frame on every call.
type Still struct {
	frame images.Frame
}

// NewStill creates a provider for a single frame.
func NewStill(frame images.Frame) *Still {
	return &Still{frame: frame}
}

// OpenStill decodes an image file into a Still provider.
//
// Arguments:
//   - path: A JPEG, PNG or BMP file.
//
// Returns:
//   - *Still: The provider.
//   - error: An error if the file cannot be read or decoded.
func OpenStill(path string) (*Still, error) {
	frame, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}
	return NewStill(frame), nil
}

// Next implements Provider.
func (s *Still) Next(ctx context.Context) (images.Frame, bool, error) {
	if err := ctx.Err(); err != nil {
		return images.Frame{}, false, err
	}
	return s.frame, true, nil
}

// DecodeFile reads and decodes an image file into a frame.
func DecodeFile(path string) (images.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return images.Frame{}, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return images.Frame{}, errors.Wrapf(err, "decode %s", path)
	}
	return images.FrameFromImage(img), nil
}
