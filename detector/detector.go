// Package detector - One-shot object detection: preprocess, infer, decode, suppress and remap.
package detector

import (
	"context"
	"time"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models/model/preprocess"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/render"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

// Detector turns frames into detections with a loaded model.
//
// The model input size is fixed when the Detector is created. A Detector holds
// no per-frame state and may be shared by several streams.
type Detector struct {
	engine     inference.Engine
	ownsEngine bool
	width      int
	height     int
	pre        *preprocess.Preprocessor
	renderer   *render.Renderer
	logger     *zap.Logger
}

// New creates a detector for cfg.
//
// Unless WithEngine is given, the model at cfg.ModelURL is fetched and loaded
// into ONNX Runtime. cfg.ModelInputWidth and cfg.ModelInputHeight are used for
// dynamic model dimensions.
//
// Arguments:
//   - ctx: Cancels a model download.
//   - cfg: The configuration.
//   - opts: Detector options.
//
// Returns:
//   - *Detector: The detector.
//   - error: An error wrapping inference.ErrModelLoad if the model cannot be loaded.
//
// @example
// cfg, _ := config.New(config.Options{ModelURL: config.Ptr("file:///models/yolov8n.onnx")})
// d, err := New(ctx, cfg)
//
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// defer d.Close()
// result, err := d.Detect(ctx, frame, cfg)
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Detector, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	d := &Detector{
		engine:   o.engine,
		pre:      preprocess.NewPreprocessor(o.preprocess),
		renderer: render.NewRenderer(),
		logger:   o.logger,
	}

	if d.engine == nil {
		loader := o.loader
		if loader == nil {
			loader = inference.NewLoader(0)
		}
		model, err := loader.Load(ctx, cfg.ModelURL)
		if err != nil {
			return nil, err
		}
		onnx := o.onnx
		if onnx.InputWidth == 0 {
			onnx.InputWidth = cfg.ModelInputWidth
		}
		if onnx.InputHeight == 0 {
			onnx.InputHeight = cfg.ModelInputHeight
		}
		engine, err := inference.NewONNXEngine(model, onnx)
		if err != nil {
			return nil, err
		}
		d.engine = engine
		d.ownsEngine = true
	}

	d.width, d.height = d.engine.InputSize()
	if d.width <= 0 || d.height <= 0 {
		d.Close()
		return nil, errors.Wrapf(inference.ErrModelLoad, "model input size %dx%d", d.width, d.height)
	}

	d.logger.Info("detector ready",
		zap.String("model", cfg.ModelURL),
		zap.Int("inputWidth", d.width),
		zap.Int("inputHeight", d.height),
	)
	return d, nil
}

// InputSize returns the model input width and height.
func (d *Detector) InputSize() (int, int) {
	return d.width, d.height
}

// Detect runs the full pipeline on one frame and returns the result synchronously.
//
// Arguments:
//   - ctx: Passed to the engine.
//   - frame: The source frame.
//   - cfg: The configuration snapshot to use for this frame.
//
// Returns:
//   - *FrameResult: The detections in frame coordinates.
//   - error: An error if any stage fails; decoding failures wrap postprocess.ErrShapeMismatch.
func (d *Detector) Detect(ctx context.Context, frame images.Frame, cfg *config.Config) (*FrameResult, error) {
	start := time.Now()

	if err := frame.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid frame")
	}
	lb, err := images.ComputeLetterbox(frame.Width, frame.Height, d.width, d.height)
	if err != nil {
		return nil, err
	}

	input, err := d.pre.Preprocess(frame, lb)
	if err != nil {
		return nil, errors.Wrap(err, "preprocess")
	}

	output, err := d.engine.Predict(ctx, input)
	if err != nil {
		return nil, errors.Wrap(err, "predict")
	}

	raw, err := d.decode(output, len(cfg.Labels))
	if err != nil {
		return nil, err
	}

	boxes, scores, classes := postprocess.Flatten(raw)
	kept := postprocess.Apply(boxes, scores, classes, cfg.NMS)
	detections := postprocess.Remap(raw, kept, lb, cfg.Labels)

	result := &FrameResult{
		Detections: detections,
		Width:      frame.Width,
		Height:     frame.Height,
		Letterbox:  lb,
		Elapsed:    time.Since(start),
	}

	d.logger.Debug("frame detected",
		zap.Int("candidates", len(raw)),
		zap.Int("detections", len(detections)),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

// decode prefers the configured class count and falls back to the model's own
// when the labels do not match the output.
func (d *Detector) decode(output *tensor.Dense, numClasses int) ([]postprocess.RawCandidate, error) {
	raw, err := postprocess.Decode(output, numClasses)
	if err == nil || numClasses <= 0 || !errors.Is(err, postprocess.ErrShapeMismatch) {
		return raw, err
	}

	raw, fallbackErr := postprocess.Decode(output, 0)
	if fallbackErr != nil {
		return nil, err
	}
	d.logger.Warn("label count does not match model output",
		zap.Int("labels", numClasses),
		zap.Ints("shape", output.Shape()),
	)
	return raw, nil
}

// Process detects objects in a frame and renders them onto canvas.
//
// The result is returned even when rendering fails.
func (d *Detector) Process(
	ctx context.Context,
	frame images.Frame,
	canvas render.Canvas,
	cfg *config.Config,
) (*FrameResult, error) {
	result, err := d.Detect(ctx, frame, cfg)
	if err != nil {
		return nil, err
	}
	if err := d.renderer.Render(canvas, frame.Width, frame.Height, result.Detections, cfg); err != nil {
		return result, errors.Wrap(err, "render")
	}
	return result, nil
}

// Close releases the engine if the detector created it.
func (d *Detector) Close() error {
	if d.ownsEngine && d.engine != nil {
		return d.engine.Close()
	}
	return nil
}
