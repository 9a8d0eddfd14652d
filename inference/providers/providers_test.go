package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in       string
		expected Backend
		wantErr  bool
	}{
		{"", CPU, false},
		{"cpu", CPU, false},
		{"CUDA", CUDA, false},
		{"CoreML", CoreML, false},
		{"openvino", OpenVINO, false},
		{"tensorrt", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBackend(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestCoreMLFlags(t *testing.T) {
	assert.Equal(t, uint32(0), CoreMLOptions{}.flags())
	assert.Equal(t, uint32(0x001|0x008), CoreMLOptions{CPUOnly: true, RequireStaticInputShapes: true}.flags())
	assert.Equal(t, uint32(0x01f), CoreMLOptions{
		CPUOnly:                  true,
		EnableOnSubgraphs:        true,
		RequireANE:               true,
		RequireStaticInputShapes: true,
		MLProgram:                true,
	}.flags())
}

func TestProviderSettings(t *testing.T) {
	cuda := CUDAOptions{DeviceID: 1, CudnnConvAlgoSearch: 1, PreferNHWC: true}.settings()
	assert.Equal(t, map[string]string{
		"device_id":              "1",
		"cudnn_conv_algo_search": "HEURISTIC",
		"prefer_nhwc":            "1",
	}, cuda)

	limited := CUDAOptions{GPUMemLimit: 1 << 30, CudnnConvAlgoSearch: 9}.settings()
	assert.Equal(t, "1073741824", limited["gpu_mem_limit"])
	assert.Equal(t, "DEFAULT", limited["cudnn_conv_algo_search"])

	ov := OpenVINOOptions{DeviceType: "GPU", Precision: "FP16", NumOfThreads: 4}.settings()
	assert.Equal(t, map[string]string{
		"device_type":            "GPU",
		"precision":              "FP16",
		"num_of_threads":         "4",
		"disable_dynamic_shapes": "false",
	}, ov)
}

func TestSharedLibraryPathOverride(t *testing.T) {
	t.Setenv(LibraryPathEnv, "/opt/onnxruntime/lib/libonnxruntime.so")
	assert.Equal(t, "/opt/onnxruntime/lib/libonnxruntime.so", SharedLibraryPath())

	t.Setenv(LibraryPathEnv, "")
	assert.NotEmpty(t, SharedLibraryPath())
}
