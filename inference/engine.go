// Package inference - Inference engine contract, model loading and the ONNX Runtime engine.
package inference

import (
	"context"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ErrModelLoad is returned when a model cannot be fetched or initialized.
var ErrModelLoad = errors.New("model load failure")

// Engine runs a detection model.
//
// Implementations must be safe for concurrent use.
type Engine interface {
	// InputSize returns the model input width and height in pixels.
	InputSize() (width, height int)
	// Predict runs the model on a [1, H, W, 3] float32 tensor and returns the raw output.
	Predict(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error)
	// Close releases the engine's resources.
	Close() error
}
