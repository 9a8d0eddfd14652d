package inference

import (
	"context"
	"slices"
	"sync"

	"github.com/nvr-ai/go-detect/inference/providers"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"
)

// Layout is the memory layout of an image input tensor.
type Layout string

const (
	// LayoutNHWC is batch, height, width, channels.
	LayoutNHWC Layout = "nhwc"
	// LayoutNCHW is batch, channels, height, width.
	LayoutNCHW Layout = "nchw"
)

// DefaultInputSize is used for dynamic model input dimensions when no size is configured.
const DefaultInputSize = 640

// ONNXOptions configures an ONNXEngine.
type ONNXOptions struct {
	// Provider selects the execution provider.
	Provider providers.Options `json:"provider" yaml:"provider"`
	// LibraryPath is the ONNX Runtime shared library; empty uses the platform default.
	LibraryPath string `json:"libraryPath" yaml:"libraryPath"`
	// InputWidth is used when the model input width is dynamic.
	InputWidth int `json:"inputWidth" yaml:"inputWidth"`
	// InputHeight is used when the model input height is dynamic.
	InputHeight int `json:"inputHeight" yaml:"inputHeight"`
	// InputName selects the model input; empty uses the first one.
	InputName string `json:"inputName" yaml:"inputName"`
	// OutputName selects the model output; empty uses the first one.
	OutputName string `json:"outputName" yaml:"outputName"`
}

// ONNXEngine runs a model with ONNX Runtime.
//
// Input and output tensors are allocated once and reused; Predict calls are
// serialized.
type ONNXEngine struct {
	mu          sync.Mutex
	session     *ort.AdvancedSession
	input       *ort.Tensor[float32]
	output      *ort.Tensor[float32]
	layout      Layout
	width       int
	height      int
	outputShape []int
}

var _ Engine = (*ONNXEngine)(nil)

// NewONNXEngine creates an engine from serialized model bytes.
//
// The input and output shapes are read from the model once. A dynamic batch
// dimension becomes 1 and dynamic spatial input dimensions take the configured
// size. Models with other dynamic output dimensions are rejected.
//
// Arguments:
//   - model: The ONNX model.
//   - opts: Engine options.
//
// Returns:
//   - *ONNXEngine: The engine.
//   - error: An error wrapping ErrModelLoad.
//
// @example
// model, _ := LoadModel(ctx, "file:///models/yolov8n.onnx")
// engine, err := NewONNXEngine(model, ONNXOptions{Provider: providers.Options{Backend: providers.CPU}})
//
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// defer engine.Close()
func NewONNXEngine(model []byte, opts ONNXOptions) (*ONNXEngine, error) {
	if err := providers.InitializeEnvironment(opts.LibraryPath); err != nil {
		return nil, errors.Wrapf(ErrModelLoad, "%v", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(model)
	if err != nil {
		return nil, errors.Wrapf(ErrModelLoad, "read model info: %v", err)
	}
	in, err := pick(inputs, opts.InputName)
	if err != nil {
		return nil, errors.Wrap(err, "input")
	}
	out, err := pick(outputs, opts.OutputName)
	if err != nil {
		return nil, errors.Wrap(err, "output")
	}

	width, height := opts.InputWidth, opts.InputHeight
	if width <= 0 {
		width = DefaultInputSize
	}
	if height <= 0 {
		height = DefaultInputSize
	}
	inputShape, layout, err := resolveInput(in.Dimensions, width, height)
	if err != nil {
		return nil, err
	}
	outputShape, err := resolveOutput(out.Dimensions)
	if err != nil {
		return nil, err
	}

	e := &ONNXEngine{layout: layout, outputShape: toInts(outputShape)}
	if layout == LayoutNCHW {
		e.height, e.width = int(inputShape[2]), int(inputShape[3])
	} else {
		e.height, e.width = int(inputShape[1]), int(inputShape[2])
	}

	if e.input, err = ort.NewEmptyTensor[float32](ort.NewShape(inputShape...)); err != nil {
		return nil, errors.Wrapf(ErrModelLoad, "allocate input: %v", err)
	}
	if e.output, err = ort.NewEmptyTensor[float32](ort.NewShape(outputShape...)); err != nil {
		e.Close()
		return nil, errors.Wrapf(ErrModelLoad, "allocate output: %v", err)
	}

	options, err := providers.SessionOptions(opts.Provider)
	if err != nil {
		e.Close()
		return nil, errors.Wrapf(ErrModelLoad, "%v", err)
	}
	defer options.Destroy()

	e.session, err = ort.NewAdvancedSessionWithONNXData(
		model,
		[]string{in.Name},
		[]string{out.Name},
		[]ort.ArbitraryTensor{e.input},
		[]ort.ArbitraryTensor{e.output},
		options,
	)
	if err != nil {
		e.Close()
		return nil, errors.Wrapf(ErrModelLoad, "create session: %v", err)
	}
	return e, nil
}

// InputSize implements Engine.
func (e *ONNXEngine) InputSize() (int, int) {
	return e.width, e.height
}

// Layout returns the memory layout the model expects.
func (e *ONNXEngine) Layout() Layout {
	return e.layout
}

// Predict implements Engine.
func (e *ONNXEngine) Predict(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := []int{1, e.height, e.width, 3}
	if !slices.Equal([]int(input.Shape()), want) {
		return nil, errors.Errorf("input shape %v, want %v", input.Shape(), want)
	}
	data, err := toLayout(input, e.layout)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil, errors.New("engine is closed")
	}
	copy(e.input.GetData(), data)
	if err := e.session.Run(); err != nil {
		return nil, errors.Wrap(err, "run session")
	}

	result := slices.Clone(e.output.GetData())
	return tensor.New(tensor.WithShape(e.outputShape...), tensor.WithBacking(result)), nil
}

// Close implements Engine. It is safe to call more than once.
func (e *ONNXEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.input != nil {
		e.input.Destroy()
		e.input = nil
	}
	if e.output != nil {
		e.output.Destroy()
		e.output = nil
	}
	return err
}

func pick(infos []ort.InputOutputInfo, name string) (ort.InputOutputInfo, error) {
	if len(infos) == 0 {
		return ort.InputOutputInfo{}, errors.Wrap(ErrModelLoad, "model declares none")
	}
	if name == "" {
		return infos[0], nil
	}
	for _, info := range infos {
		if info.Name == name {
			return info, nil
		}
	}
	return ort.InputOutputInfo{}, errors.Wrapf(ErrModelLoad, "model has no tensor named %q", name)
}

// resolveInput fills in dynamic dimensions and detects the layout of an image input.
func resolveInput(dims []int64, width, height int) ([]int64, Layout, error) {
	if len(dims) != 4 {
		return nil, "", errors.Wrapf(ErrModelLoad, "input rank %d, want 4", len(dims))
	}
	shape := slices.Clone(dims)
	if shape[0] <= 0 {
		shape[0] = 1
	}
	if shape[0] != 1 {
		return nil, "", errors.Wrapf(ErrModelLoad, "input batch %d, want 1", shape[0])
	}

	var layout Layout
	var h, w int
	switch {
	case shape[1] == 3:
		layout, h, w = LayoutNCHW, 2, 3
	case shape[3] == 3:
		layout, h, w = LayoutNHWC, 1, 2
	default:
		return nil, "", errors.Wrapf(ErrModelLoad, "input %v has no 3-channel axis", dims)
	}
	if shape[h] <= 0 {
		shape[h] = int64(height)
	}
	if shape[w] <= 0 {
		shape[w] = int64(width)
	}
	return shape, layout, nil
}

// resolveOutput fixes a dynamic batch dimension and rejects other dynamic dimensions.
func resolveOutput(dims []int64) ([]int64, error) {
	if len(dims) == 0 {
		return nil, errors.Wrap(ErrModelLoad, "output has no dimensions")
	}
	shape := slices.Clone(dims)
	if shape[0] <= 0 {
		shape[0] = 1
	}
	for i, d := range shape {
		if d <= 0 {
			return nil, errors.Wrapf(ErrModelLoad, "output %v has dynamic dimension %d; export the model with static shapes", dims, i)
		}
	}
	return shape, nil
}

// toLayout returns the tensor data in the requested layout without modifying input.
func toLayout(input *tensor.Dense, layout Layout) ([]float32, error) {
	if layout == LayoutNCHW {
		clone, ok := input.Clone().(*tensor.Dense)
		if !ok {
			return nil, errors.New("clone input")
		}
		if err := clone.T(0, 3, 1, 2); err != nil {
			return nil, errors.Wrap(err, "transpose input")
		}
		if err := clone.Transpose(); err != nil {
			return nil, errors.Wrap(err, "transpose input")
		}
		input = clone
	}
	data, ok := input.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("input dtype %v, want float32", input.Dtype())
	}
	return data, nil
}

func toInts(shape []int64) []int {
	out := make([]int, len(shape))
	for i, d := range shape {
		out[i] = int(d)
	}
	return out
}
