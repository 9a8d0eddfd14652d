package images

import (
	"image"

	"github.com/nfnt/resize"
)

// ResizeBilinear resizes an image to exactly width x height using bilinear interpolation.
//
// Arguments:
//   - img: The image to resize.
//   - width: The target width in pixels.
//   - height: The target height in pixels.
//
// Returns:
//   - image.Image: The resized image. Identical input yields identical output.
func ResizeBilinear(img image.Image, width, height int) image.Image {
	if width <= 0 || height <= 0 {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}
	return resize.Resize(uint(width), uint(height), img, resize.Bilinear)
}
