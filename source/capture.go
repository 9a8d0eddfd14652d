package source

import (
	"context"
	"sync"

	"github.com/nvr-ai/go-detect/images"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// VideoCapture reads frames from a camera, a video file or a stream URL with OpenCV.
type VideoCapture struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	mat     gocv.Mat
}

// OpenVideoCapture opens a capture device.
//
// Arguments:
//   - device: A camera index such as "0", a file path or a stream URL.
//
// Returns:
//   - *VideoCapture: The provider.
//   - error: An error if the device cannot be opened.
func OpenVideoCapture(device string) (*VideoCapture, error) {
	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, errors.Wrapf(err, "open video capture %s", device)
	}
	return &VideoCapture{capture: capture, mat: gocv.NewMat()}, nil
}

// Next implements Provider. A failed or empty read means no frame is available.
func (v *VideoCapture) Next(ctx context.Context) (images.Frame, bool, error) {
	if err := ctx.Err(); err != nil {
		return images.Frame{}, false, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.capture == nil {
		return images.Frame{}, false, errors.New("video capture is closed")
	}
	if ok := v.capture.Read(&v.mat); !ok || v.mat.Empty() {
		return images.Frame{}, false, nil
	}

	img, err := v.mat.ToImage()
	if err != nil {
		return images.Frame{}, false, errors.Wrap(err, "convert frame")
	}
	return images.FrameFromImage(img), true, nil
}

// Close releases the device.
func (v *VideoCapture) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.capture == nil {
		return nil
	}
	err := v.capture.Close()
	v.capture = nil
	if matErr := v.mat.Close(); err == nil {
		err = matErr
	}
	return err
}
