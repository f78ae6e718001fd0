// Package cli implements the vitclassify command: argument handling,
// wiring of the classifier and its optional sinks, and exit codes.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/SyedDaiam9101/vit-classifier/internal/cache"
	"github.com/SyedDaiam9101/vit-classifier/internal/classify"
	"github.com/SyedDaiam9101/vit-classifier/internal/config"
	"github.com/SyedDaiam9101/vit-classifier/internal/hub"
	"github.com/SyedDaiam9101/vit-classifier/internal/inference"
	"github.com/SyedDaiam9101/vit-classifier/internal/metrics"
	"github.com/SyedDaiam9101/vit-classifier/internal/report"
	"github.com/SyedDaiam9101/vit-classifier/internal/runid"
	"github.com/SyedDaiam9101/vit-classifier/internal/tracing"
)

const (
	commandName = "vitclassify"
	defaultTopK = 5
)

// errReported marks failures whose message has already been printed.
var errReported = errors.New("reported")

// Execute runs the command with args (without the program name) and returns
// the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(stdout, stderr)
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   commandName + " <image_path> [top_k]",
		Short: "Classify an image with a pretrained Vision Transformer",
		Long: "Loads a pretrained image-classification model, runs inference on one image\n" +
			"and prints the top-K predicted labels with confidence scores.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "Usage: %s <image_path> [top_k]\n", commandName)
	fmt.Fprintln(w, "\nExample:")
	fmt.Fprintf(w, "  %s cat.jpg\n", commandName)
	fmt.Fprintf(w, "  %s cat.jpg 10\n", commandName)
	fmt.Fprintf(w, "\nRun '%s --help' for configuration flags.\n", commandName)
}

func run(cmd *cobra.Command, args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 || len(args) > 2 {
		printUsage(stdout)
		return errReported
	}

	imagePath := args[0]
	topK := defaultTopK
	if len(args) == 2 {
		k, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid top_k %q: %w", args[1], err)
		}
		topK = k
	}
	if topK < 1 {
		return fmt.Errorf("%w: got %d", classify.ErrInvalidTopK, topK)
	}

	// Validate image exists
	if info, err := os.Stat(imagePath); err != nil || !info.Mode().IsRegular() {
		fmt.Fprintf(stdout, "Error: Image not found: %s\n", imagePath)
		return errReported
	}

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cmd.Flags(), configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	device, err := inference.ParseDevice(cfg.Device)
	if err != nil {
		return err
	}

	id := runid.New()
	ctx := runid.WithRunID(cmd.Context(), id)
	log := newLogger(stderr, cfg.LogLevel).WithField("run_id", id)

	if cfg.Trace {
		shutdown, err := tracing.Init(stderr, id)
		if err != nil {
			log.WithError(err).Warn("failed to initialize tracer")
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(sctx); err != nil {
					log.WithError(err).Warn("failed to flush spans")
				}
			}()
		}
	}

	provider, err := hub.New(hub.Options{
		ModelsDir: cfg.ModelsDir,
		HubURL:    cfg.HubURL,
		Token:     cfg.HubToken,
		Revision:  cfg.Revision,
		Offline:   cfg.Offline,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	// Initialize Redis cache (optional)
	var resultCache classify.ResultCache
	if cfg.Redis != "" {
		c, err := cache.New(ctx, cfg.Redis, cfg.CacheTTL)
		if err != nil {
			log.WithError(err).Warn("failed to connect to Redis, continuing without cache")
		} else {
			defer c.Close()
			resultCache = c
		}
	}

	clf, err := classify.New(classify.Options{
		Provider:  provider,
		NewEngine: engineFactory(cfg, device, log),
		Cache:     resultCache,
		Revision:  cfg.Revision,
		HubURL:    cfg.HubURL,
		Out:       stdout,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	report.Header(stdout)

	preds, err := clf.Classify(ctx, imagePath, cfg.Model, topK)
	exportMetrics(ctx, cfg, id, log)
	if err != nil {
		return err
	}

	report.Results(stdout, topK, preds)
	return nil
}

func engineFactory(cfg *config.Config, device inference.Device, log logrus.FieldLogger) classify.EngineFactory {
	return func(model *hub.Model) (inference.InferenceEngine, error) {
		if cfg.UseMock {
			log.Warn("using mock inference engine")
			return inference.NewMock(model.Labels.Len()), nil
		}

		engine, err := inference.New(inference.Options{
			ModelPath:         model.ONNXPath,
			NumClasses:        int64(model.Labels.Len()),
			Device:            device,
			SharedLibraryPath: cfg.ONNXRuntimeLib,
			Logger:            log,
		})
		if err != nil {
			return nil, err
		}
		return engine, nil
	}
}

// exportMetrics hands the run's metrics to the configured sinks. Failures
// are logged and never change the outcome of the run.
func exportMetrics(ctx context.Context, cfg *config.Config, id string, log logrus.FieldLogger) {
	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			log.WithError(err).Warn("failed to write metrics file")
		}
	}
	if cfg.Pushgateway != "" {
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := metrics.Push(pctx, cfg.Pushgateway, id); err != nil {
			log.WithError(err).Warn("failed to push metrics")
		}
	}
}

func newLogger(w io.Writer, level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}
