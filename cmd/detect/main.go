// Command detect runs object detection on an image, an image sequence or a
// capture device and prints one JSON payload per frame.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/inference/providers"
	"github.com/nvr-ai/go-detect/logger"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/render"
	"github.com/nvr-ai/go-detect/source"
	"github.com/nvr-ai/go-detect/stream"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type flags struct {
	configPath  string
	model       string
	labels      string
	display     string
	threshold   float64
	interval    time.Duration
	provider    string
	threads     int
	libraryPath string
	imagePath   string
	dir         string
	loop        bool
	device      string
	maxFrames   int
	output      string
	metricsAddr string
	debug       bool
}

// record is one line of output.
type record struct {
	Sequence  uint64  `json:"sequence"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	ElapsedMS float64 `json:"elapsedMs"`
	detector.Payload
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "YAML configuration file")
	flag.StringVar(&f.model, "model", "", "Model URL: http(s)://, file:// or a path")
	flag.StringVar(&f.labels, "labels", "", "Built-in label set: coco or voc")
	flag.StringVar(&f.display, "display", "", "Comma-separated labels to display; empty shows all")
	flag.Float64Var(&f.threshold, "threshold", 0.5, "Display score threshold")
	flag.DurationVar(&f.interval, "interval", 33*time.Millisecond, "Pause between frames")
	flag.StringVar(&f.provider, "provider", string(providers.CPU), "Execution provider: cpu, cuda, coreml or openvino")
	flag.IntVar(&f.threads, "threads", 0, "Intra-op threads; 0 lets ONNX Runtime decide")
	flag.StringVar(&f.libraryPath, "ort-lib", "", "ONNX Runtime shared library path")
	flag.StringVar(&f.imagePath, "image", "", "Detect objects in one image (.jpg, .jpeg, .png, .bmp)")
	flag.StringVar(&f.dir, "dir", "", "Play a directory of frame-N images")
	flag.BoolVar(&f.loop, "loop", false, "Restart the -dir sequence when it ends")
	flag.StringVar(&f.device, "device", "", "Capture device index, video file or stream URL")
	flag.IntVar(&f.maxFrames, "max-frames", 0, "Stop after this many frames; 0 runs until interrupted")
	flag.StringVar(&f.output, "output", "", "Write the annotated -image result to this PNG file")
	flag.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flag.BoolVar(&f.debug, "debug", false, "Enable development logging")
	flag.Parse()

	log, err := logger.New(f.debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, f, log); err != nil {
		log.Error("detect failed", zap.Error(err))
		stop()
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags, log *zap.Logger) error {
	if f.imagePath == "" && f.dir == "" && f.device == "" {
		return errors.New("one of -image, -dir or -device is required")
	}
	cfg, err := buildConfig(f)
	if err != nil {
		return err
	}
	backend, err := providers.ParseBackend(f.provider)
	if err != nil {
		return err
	}

	d, err := detector.New(ctx, cfg,
		detector.WithLogger(log),
		detector.WithONNXOptions(inference.ONNXOptions{
			Provider:    providers.Options{Backend: backend, IntraOpThreads: f.threads},
			LibraryPath: f.libraryPath,
		}),
	)
	if err != nil {
		return err
	}
	defer d.Close()

	if f.imagePath != "" {
		return detectImage(ctx, d, cfg, f)
	}
	return detectStream(ctx, d, cfg, f, log)
}

// buildConfig merges the configuration file and the flags set on the command
// line onto the defaults.
func buildConfig(f flags) (*config.Config, error) {
	opts := config.Options{}
	if f.configPath != "" {
		var err error
		if opts, err = config.LoadFile(f.configPath); err != nil {
			return nil, err
		}
	}
	cfg, err := config.New(opts)
	if err != nil {
		return nil, err
	}

	var override config.Options
	var flagErr error
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "model":
			override.ModelURL = config.Ptr(f.model)
		case "labels":
			if _, err := models.LookupFamily(models.Family(f.labels)); err != nil {
				flagErr = err
			}
			override.LabelFamily = config.Ptr(f.labels)
		case "display":
			labels := []string{}
			for _, l := range strings.Split(f.display, ",") {
				if l = strings.TrimSpace(l); l != "" {
					labels = append(labels, l)
				}
			}
			override.DisplayLabels = &labels
		case "threshold":
			override.ScoreThreshold = config.Ptr(float32(f.threshold))
		case "interval":
			override.TickInterval = config.Ptr(f.interval)
		}
	})
	if flagErr != nil {
		return nil, flagErr
	}
	if cfg, err = cfg.Merge(override); err != nil {
		return nil, err
	}
	if cfg.ModelURL == "" {
		return nil, errors.Wrap(config.ErrInvalid, "a model is required: use -model or modelUrl")
	}
	return cfg, nil
}

func detectImage(ctx context.Context, d *detector.Detector, cfg *config.Config, f flags) error {
	frame, err := source.DecodeFile(f.imagePath)
	if err != nil {
		return err
	}

	canvas := render.NewImageCanvas(render.DefaultFontSize)
	result, err := d.Process(ctx, frame, canvas, cfg)
	if result == nil {
		return err
	}
	if encErr := json.NewEncoder(os.Stdout).Encode(newRecord(result, result.Payload(cfg))); encErr != nil {
		return encErr
	}
	if err != nil {
		return err
	}
	if f.output == "" {
		return nil
	}
	return writeOverlay(f.output, frame, canvas)
}

// writeOverlay composites the rendered detections over the frame and saves a PNG.
func writeOverlay(path string, frame images.Frame, canvas *render.ImageCanvas) error {
	dst := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	draw.Draw(dst, dst.Bounds(), frame.RGBA(), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), canvas.Image(), image.Point{}, draw.Over)

	out, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := png.Encode(out, dst); err != nil {
		out.Close()
		return errors.Wrapf(err, "encode %s", path)
	}
	return out.Close()
}

func detectStream(ctx context.Context, d *detector.Detector, cfg *config.Config, f flags, log *zap.Logger) error {
	var provider source.Provider
	switch {
	case f.dir != "":
		dir, err := source.OpenDirectory(f.dir, f.loop)
		if err != nil {
			return err
		}
		provider = dir
	case f.device != "":
		capture, err := source.OpenVideoCapture(f.device)
		if err != nil {
			return err
		}
		defer capture.Close()
		provider = capture
	default:
		return errors.New("one of -image, -dir or -device is required")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if f.metricsAddr != "" {
		srv := &http.Server{
			Addr:              f.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	var loop *stream.Loop
	enc := json.NewEncoder(os.Stdout)
	sink := stream.SinkFunc(func(_ context.Context, ev stream.Event) error {
		if err := enc.Encode(newRecord(ev.Result, ev.Payload)); err != nil {
			return err
		}
		if f.maxFrames > 0 && ev.Result.Sequence >= uint64(f.maxFrames) {
			loop.Stop()
		}
		return nil
	})

	loop, err := stream.NewLoop(d, provider, render.NewImageCanvas(render.DefaultFontSize),
		stream.WithConfig(cfg),
		stream.WithSink(sink),
		stream.WithLogger(log),
		stream.WithRegisterer(reg),
	)
	if err != nil {
		return err
	}

	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newRecord(result *detector.FrameResult, payload detector.Payload) record {
	return record{
		Sequence:  result.Sequence,
		Width:     result.Width,
		Height:    result.Height,
		ElapsedMS: float64(result.Elapsed) / float64(time.Millisecond),
		Payload:   payload,
	}
}
