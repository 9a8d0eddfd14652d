// Package providers - ONNX Runtime execution providers and environment setup.
package providers

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Backend names an ONNX Runtime execution provider.
type Backend string

const (
	// CPU runs on the default CPU execution provider.
	CPU Backend = "cpu"
	// CUDA uses NVIDIA CUDA for inference.
	CUDA Backend = "cuda"
	// CoreML uses Apple CoreML for macOS/iOS acceleration.
	CoreML Backend = "coreml"
	// OpenVINO uses Intel OpenVINO for inference.
	OpenVINO Backend = "openvino"
)

// Backends lists every supported backend.
var Backends = []Backend{CPU, CUDA, CoreML, OpenVINO}

// LibraryPathEnv overrides the ONNX Runtime shared library location.
const LibraryPathEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// ParseBackend returns the backend named by s, case-insensitive. An empty name means CPU.
func ParseBackend(s string) (Backend, error) {
	if s == "" {
		return CPU, nil
	}
	b := Backend(strings.ToLower(s))
	for _, known := range Backends {
		if b == known {
			return b, nil
		}
	}
	return "", errors.Errorf("unsupported execution provider %q", s)
}

// Options selects and configures an execution provider.
type Options struct {
	// Backend is the execution provider; empty means CPU.
	Backend Backend `json:"backend" yaml:"backend"`
	// IntraOpThreads is the number of threads used inside one operator; 0 lets ONNX Runtime decide.
	IntraOpThreads int `json:"intraOpThreads" yaml:"intraOpThreads"`
	// InterOpThreads is the number of threads used across operators; 0 lets ONNX Runtime decide.
	InterOpThreads int `json:"interOpThreads" yaml:"interOpThreads"`
	// CUDA configures the CUDA backend.
	CUDA CUDAOptions `json:"cuda" yaml:"cuda"`
	// CoreML configures the CoreML backend.
	CoreML CoreMLOptions `json:"coreml" yaml:"coreml"`
	// OpenVINO configures the OpenVINO backend.
	OpenVINO OpenVINOOptions `json:"openvino" yaml:"openvino"`
}

// CUDAOptions contains arguments for the CUDA provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/CUDA-ExecutionProvider.html#configuration-options
type CUDAOptions struct {
	// The device ID.
	DeviceID int `json:"deviceID" yaml:"deviceID"`
	// The size limit of the device memory arena in bytes; 0 means unlimited.
	GPUMemLimit int64 `json:"gpuMemLimit" yaml:"gpuMemLimit"`
	// The type of search done for cuDNN convolution algorithms.
	// 0: EXHAUSTIVE, 1: HEURISTIC, 2: DEFAULT.
	CudnnConvAlgoSearch int `json:"cudnnConvAlgoSearch" yaml:"cudnnConvAlgoSearch"`
	// Prefer NHWC operators over NCHW.
	PreferNHWC bool `json:"preferNHWC" yaml:"preferNHWC"`
}

func (o CUDAOptions) settings() map[string]string {
	s := map[string]string{
		"device_id":              strconv.Itoa(o.DeviceID),
		"cudnn_conv_algo_search": [...]string{"EXHAUSTIVE", "HEURISTIC", "DEFAULT"}[min(max(o.CudnnConvAlgoSearch, 0), 2)],
		"prefer_nhwc":            boolFlag(o.PreferNHWC),
	}
	if o.GPUMemLimit > 0 {
		s["gpu_mem_limit"] = strconv.FormatInt(o.GPUMemLimit, 10)
	}
	return s
}

// CoreMLOptions contains arguments for the CoreML provider.
// See: https://onnxruntime.ai/docs/execution-providers/CoreML-ExecutionProvider.html
type CoreMLOptions struct {
	// Limit CoreML to running on CPU only.
	CPUOnly bool `json:"cpuOnly" yaml:"cpuOnly"`
	// Enable CoreML on subgraphs in the body of control flow operators.
	EnableOnSubgraphs bool `json:"enableOnSubgraphs" yaml:"enableOnSubgraphs"`
	// Only enable CoreML on devices with an Apple Neural Engine.
	RequireANE bool `json:"requireANE" yaml:"requireANE"`
	// Only allow nodes with static input shapes.
	RequireStaticInputShapes bool `json:"requireStaticInputShapes" yaml:"requireStaticInputShapes"`
	// Create an MLProgram instead of a NeuralNetwork model.
	MLProgram bool `json:"mlProgram" yaml:"mlProgram"`
}

// CoreML flag bits, as defined by the CoreML execution provider.
const (
	coreMLUseCPUOnly       uint32 = 0x001
	coreMLEnableOnSubgraph uint32 = 0x002
	coreMLOnlyEnableANE    uint32 = 0x004
	coreMLOnlyStaticShapes uint32 = 0x008
	coreMLCreateMLProgram  uint32 = 0x010
)

func (o CoreMLOptions) flags() uint32 {
	var f uint32
	if o.CPUOnly {
		f |= coreMLUseCPUOnly
	}
	if o.EnableOnSubgraphs {
		f |= coreMLEnableOnSubgraph
	}
	if o.RequireANE {
		f |= coreMLOnlyEnableANE
	}
	if o.RequireStaticInputShapes {
		f |= coreMLOnlyStaticShapes
	}
	if o.MLProgram {
		f |= coreMLCreateMLProgram
	}
	return f
}

// OpenVINOOptions contains arguments for the OpenVINO provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
type OpenVINOOptions struct {
	// Overrides the accelerator hardware type, e.g. CPU, GPU or NPU.
	DeviceType string `json:"deviceType" yaml:"deviceType"`
	// Precision such as FP32, FP16 or ACCURACY.
	Precision string `json:"precision" yaml:"precision"`
	// Overrides the accelerator default number of threads.
	NumOfThreads int `json:"numOfThreads" yaml:"numOfThreads"`
	// Rewrites dynamic shaped models to static shapes at runtime.
	DisableDynamicShapes bool `json:"disableDynamicShapes" yaml:"disableDynamicShapes"`
}

func (o OpenVINOOptions) settings() map[string]string {
	s := map[string]string{
		"disable_dynamic_shapes": strconv.FormatBool(o.DisableDynamicShapes),
	}
	if o.DeviceType != "" {
		s["device_type"] = o.DeviceType
	}
	if o.Precision != "" {
		s["precision"] = o.Precision
	}
	if o.NumOfThreads > 0 {
		s["num_of_threads"] = strconv.Itoa(o.NumOfThreads)
	}
	return s
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// SessionOptions creates ONNX Runtime session options for the configured provider.
//
// The caller owns the returned options and must Destroy them.
//
// Arguments:
//   - opts: The provider configuration.
//
// Returns:
//   - *ort.SessionOptions: The session options.
//   - error: An error if the provider cannot be enabled.
func SessionOptions(opts Options) (*ort.SessionOptions, error) {
	backend, err := ParseBackend(string(opts.Backend))
	if err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "create session options")
	}

	if err := configure(options, backend, opts); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}

func configure(options *ort.SessionOptions, backend Backend, opts Options) error {
	if err := options.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
		return errors.Wrap(err, "set intra-op threads")
	}
	if err := options.SetInterOpNumThreads(opts.InterOpThreads); err != nil {
		return errors.Wrap(err, "set inter-op threads")
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return errors.Wrap(err, "set graph optimization level")
	}

	switch backend {
	case CUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return errors.Wrap(err, "create CUDA options")
		}
		defer cuda.Destroy()
		if err := cuda.Update(opts.CUDA.settings()); err != nil {
			return errors.Wrap(err, "configure CUDA")
		}
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return errors.Wrap(err, "enable CUDA")
		}
	case CoreML:
		if err := options.AppendExecutionProviderCoreML(opts.CoreML.flags()); err != nil {
			return errors.Wrap(err, "enable CoreML")
		}
	case OpenVINO:
		if err := options.AppendExecutionProviderOpenVINO(opts.OpenVINO.settings()); err != nil {
			return errors.Wrap(err, "enable OpenVINO")
		}
	}
	return nil
}

// SharedLibraryPath returns the ONNX Runtime shared library for the current platform.
//
// LibraryPathEnv takes precedence over the platform default.
func SharedLibraryPath() string {
	if path := os.Getenv(LibraryPathEnv); path != "" {
		return path
	}
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	}
	if runtime.GOARCH == "arm64" {
		return "onnxruntime_arm64.so"
	}
	return "onnxruntime.so"
}

var envMu sync.Mutex

// InitializeEnvironment loads the ONNX Runtime library once per process.
//
// Arguments:
//   - libraryPath: The shared library; empty uses SharedLibraryPath.
//
// Returns:
//   - error: An error if the library cannot be loaded.
func InitializeEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libraryPath == "" {
		libraryPath = SharedLibraryPath()
	}
	ort.SetSharedLibraryPath(libraryPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrapf(err, "initialize ONNX Runtime from %s", libraryPath)
	}
	return nil
}
