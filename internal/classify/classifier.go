// Package classify runs one image through a pretrained classifier and
// returns its top-K labels.
package classify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/SyedDaiam9101/vit-classifier/internal/hub"
	"github.com/SyedDaiam9101/vit-classifier/internal/inference"
	"github.com/SyedDaiam9101/vit-classifier/internal/metrics"
	"github.com/SyedDaiam9101/vit-classifier/internal/preprocess"
	"github.com/SyedDaiam9101/vit-classifier/internal/runid"
)

var tracer = otel.Tracer("github.com/SyedDaiam9101/vit-classifier/internal/classify")

// ModelProvider resolves a model name to weights, labels and a transform.
type ModelProvider interface {
	Load(ctx context.Context, name string) (*hub.Model, error)
}

// EngineFactory opens an inference engine for a resolved model.
type EngineFactory func(model *hub.Model) (inference.InferenceEngine, error)

// CachedResult is what the prediction cache stores per key
type CachedResult struct {
	Device      string       `json:"device"`
	Predictions []Prediction `json:"predictions"`
}

// ResultCache stores predictions across runs. Get returns nil, nil on a miss.
type ResultCache interface {
	Get(ctx context.Context, key string) (*CachedResult, error)
	Set(ctx context.Context, key string, result *CachedResult) error
}

// Options configures a Classifier
type Options struct {
	Provider  ModelProvider
	NewEngine EngineFactory
	// Cache is optional
	Cache ResultCache
	// Revision and HubURL identify where models come from; both scope cache keys
	Revision string
	HubURL   string
	// Out receives the progress lines; defaults to io.Discard
	Out    io.Writer
	Logger logrus.FieldLogger
}

// Classifier implements classify(image_path, model_name, top_k).
type Classifier struct {
	provider  ModelProvider
	newEngine EngineFactory
	cache     ResultCache
	revision  string
	hubURL    string
	out       io.Writer
	log       logrus.FieldLogger
}

// New creates a Classifier
func New(opts Options) (*Classifier, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("model provider is required")
	}
	if opts.NewEngine == nil {
		return nil, fmt.Errorf("engine factory is required")
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Classifier{
		provider:  opts.Provider,
		newEngine: opts.NewEngine,
		cache:     opts.Cache,
		revision:  opts.Revision,
		hubURL:    opts.HubURL,
		out:       out,
		log:       logger,
	}, nil
}

// CacheKey derives the prediction cache key for an image under a model
// revision from a given hub and K.
func CacheKey(modelName, revision, hubURL string, topK int, image []byte) string {
	h := sha256.New()
	h.Write([]byte(hubURL))
	h.Write([]byte{0})
	h.Write(image)
	return fmt.Sprintf("vit:predictions:%s@%s:%d:%s", modelName, revision, topK, hex.EncodeToString(h.Sum(nil)))
}

// Classify loads modelName, runs imagePath through it and returns the topK
// most probable labels in descending order of confidence.
func (c *Classifier) Classify(ctx context.Context, imagePath, modelName string, topK int) (preds []Prediction, err error) {
	ctx, span := tracer.Start(ctx, "classify", trace.WithAttributes(
		attribute.String("model", modelName),
		attribute.String("image", imagePath),
		attribute.Int("top_k", topK),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	log := c.log.WithFields(logrus.Fields{
		"run_id": runid.FromContext(ctx),
		"model":  modelName,
	})

	if topK < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, topK)
	}

	fmt.Fprintf(c.out, "Loading model: %s\n", modelName)

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	var key string
	if c.cache != nil {
		key = CacheKey(modelName, c.revision, c.hubURL, topK, data)
		if cached := c.lookup(ctx, key, topK, log); cached != nil {
			fmt.Fprintf(c.out, "Device: %s\n", cached.Device)
			fmt.Fprintf(c.out, "\nProcessing: %s\n", imagePath)
			metrics.RecordPrediction(modelName, cached.Device, cached.Predictions[0].Confidence)
			return cached.Predictions, nil
		}
	}

	model, err := c.loadModel(ctx, modelName)
	if err != nil {
		return nil, err
	}
	if topK > model.Labels.Len() {
		return nil, fmt.Errorf("%w: requested %d, model has %d", ErrTopKOutOfRange, topK, model.Labels.Len())
	}

	engine, err := c.newEngine(model)
	if err != nil {
		return nil, fmt.Errorf("failed to open inference engine: %w", err)
	}
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			log.WithError(cerr).Warn("failed to close inference engine")
		}
	}()

	device := engine.Device().String()
	log = log.WithField("device", device)
	span.SetAttributes(attribute.String("device", device))

	fmt.Fprintf(c.out, "Device: %s\n", device)
	fmt.Fprintf(c.out, "\nProcessing: %s\n", imagePath)

	logits, err := c.run(ctx, model, engine, data)
	if err != nil {
		return nil, err
	}
	if len(logits) != model.Labels.Len() {
		return nil, fmt.Errorf("model produced %d scores for %d labels", len(logits), model.Labels.Len())
	}

	probs, err := Softmax(logits)
	if err != nil {
		return nil, err
	}
	indices, err := TopK(probs, topK)
	if err != nil {
		return nil, err
	}

	preds = make([]Prediction, len(indices))
	for i, idx := range indices {
		label, err := model.Labels.Label(idx)
		if err != nil {
			return nil, err
		}
		preds[i] = Prediction{Index: idx, Label: label, Confidence: probs[idx]}
	}

	metrics.RecordPrediction(modelName, device, preds[0].Confidence)
	log.WithFields(logrus.Fields{
		"label":      preds[0].Label,
		"confidence": preds[0].Confidence,
	}).Info("classified image")

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, &CachedResult{Device: device, Predictions: preds}); err != nil {
			log.WithError(err).Warn("failed to cache predictions")
		}
	}

	return preds, nil
}

// lookup returns a cached result holding exactly topK predictions, or nil.
func (c *Classifier) lookup(ctx context.Context, key string, topK int, log logrus.FieldLogger) *CachedResult {
	cached, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.RecordCacheResult("error")
		log.WithError(err).Warn("prediction cache lookup failed")
		return nil
	case cached == nil:
		metrics.RecordCacheResult("miss")
		return nil
	case len(cached.Predictions) != topK:
		metrics.RecordCacheResult("invalid")
		log.WithField("entries", len(cached.Predictions)).Warn("ignoring malformed cache entry")
		return nil
	default:
		metrics.RecordCacheResult("hit")
		log.Debug("prediction cache hit")
		return cached
	}
}

func (c *Classifier) loadModel(ctx context.Context, name string) (*hub.Model, error) {
	ctx, span := tracer.Start(ctx, "load_model")
	defer span.End()

	start := time.Now()
	model, err := c.provider.Load(ctx, name)
	metrics.RecordModelLoad(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load model %s: %w", name, err)
	}
	span.SetAttributes(attribute.Int("classes", model.Labels.Len()))
	return model, nil
}

// run decodes and preprocesses the image, then executes the forward pass.
func (c *Classifier) run(ctx context.Context, model *hub.Model, engine inference.InferenceEngine, data []byte) ([]float32, error) {
	_, span := tracer.Start(ctx, "preprocess")
	start := time.Now()

	img, err := preprocess.Decode(data)
	if err != nil {
		span.End()
		return nil, err
	}
	tensor, err := model.Processor.Apply(img)
	metrics.RecordPreprocess(time.Since(start).Seconds())
	span.End()
	if err != nil {
		return nil, fmt.Errorf("failed to preprocess image: %w", err)
	}

	_, span = tracer.Start(ctx, "inference", trace.WithAttributes(
		attribute.Int64Slice("shape", tensor.Shape()),
	))
	defer span.End()

	start = time.Now()
	logits, err := engine.Predict(tensor.Data, tensor.Channels, tensor.Height, tensor.Width)
	metrics.RecordInferenceLatency(engine.Device().String(), time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return logits, nil
}
