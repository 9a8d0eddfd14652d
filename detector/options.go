package detector

import (
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models/model/preprocess"
	"go.uber.org/zap"
)

// Option configures a Detector.
type Option func(*options)

type options struct {
	engine     inference.Engine
	loader     *inference.Loader
	onnx       inference.ONNXOptions
	preprocess preprocess.Config
	logger     *zap.Logger
}

// WithEngine uses an existing engine instead of loading the configured model.
// The caller keeps ownership of the engine.
func WithEngine(engine inference.Engine) Option {
	return func(o *options) { o.engine = engine }
}

// WithLoader sets the loader used to fetch the model.
func WithLoader(loader *inference.Loader) Option {
	return func(o *options) { o.loader = loader }
}

// WithONNXOptions configures the ONNX Runtime engine created for the model.
func WithONNXOptions(opts inference.ONNXOptions) Option {
	return func(o *options) { o.onnx = opts }
}

// WithPreprocess configures tensor preprocessing.
func WithPreprocess(cfg preprocess.Config) Option {
	return func(o *options) { o.preprocess = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}
