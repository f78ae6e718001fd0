// Package hub resolves a model identifier to ONNX weights, a label table and
// the matching preprocessing transform, fetching missing files from a
// Hugging Face compatible model hub into a local cache directory.
package hub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SyedDaiam9101/vit-classifier/internal/preprocess"
)

const (
	// ConfigFile holds the model's id2label table
	ConfigFile = "config.json"
	// PreprocessorFile holds the image processor settings; optional
	PreprocessorFile = "preprocessor_config.json"
)

// onnxCandidates are the locations an ONNX export is looked up at, in order.
var onnxCandidates = []string{"model.onnx", "onnx/model.onnx"}

var (
	// ErrInvalidModelName is returned for identifiers that are not owner/name or name
	ErrInvalidModelName = errors.New("invalid model name")
	// ErrNotCached is returned in offline mode when a required file is not on disk
	ErrNotCached = errors.New("not in local model cache")
	// ErrNotFound is returned when the hub has no such file
	ErrNotFound = errors.New("not found on model hub")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*(/[A-Za-z0-9][A-Za-z0-9._-]*)?$`)

// Options configures a Provider
type Options struct {
	ModelsDir string
	HubURL    string
	Token     string
	Revision  string
	Offline   bool
	// HTTPClient defaults to a client with a generous timeout for weight downloads.
	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

// Provider loads models from the local cache, downloading what is missing.
type Provider struct {
	opts   Options
	client *http.Client
	log    logrus.FieldLogger
}

// Model is a resolved, ready-to-run classification model
type Model struct {
	Name      string
	Dir       string
	ONNXPath  string
	Labels    Labels
	Processor *preprocess.Processor
}

// New creates a Provider
func New(opts Options) (*Provider, error) {
	if opts.ModelsDir == "" {
		return nil, fmt.Errorf("models directory is required")
	}
	if !opts.Offline && opts.HubURL == "" {
		return nil, fmt.Errorf("hub URL is required unless offline")
	}
	if opts.Revision == "" {
		opts.Revision = "main"
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Minute}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Provider{opts: opts, client: client, log: logger}, nil
}

// ValidateName checks that name is a hub identifier that maps safely onto
// a directory below the models directory.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidModelName, name)
	}
	return nil
}

// Load resolves name to a Model. config.json and an ONNX export are
// required; without preprocessor_config.json the ViT defaults apply.
func (p *Provider) Load(ctx context.Context, name string) (*Model, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	dir := filepath.Join(p.opts.ModelsDir, filepath.FromSlash(name))
	log := p.log.WithField("model", name)

	configPath, err := p.fetch(ctx, name, dir, ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s for %s: %w", ConfigFile, name, err)
	}
	configData, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model config: %w", err)
	}
	labels, err := parseLabels(configData)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", name, err)
	}

	procCfg := preprocess.DefaultConfig()
	prePath, err := p.fetch(ctx, name, dir, PreprocessorFile)
	switch {
	case err == nil:
		data, err := os.ReadFile(prePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read preprocessor config: %w", err)
		}
		if procCfg, err = preprocess.ParseConfig(data); err != nil {
			return nil, fmt.Errorf("model %s: %w", name, err)
		}
	case errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotCached):
		log.Debug("no preprocessor config, using ViT defaults")
	default:
		return nil, fmt.Errorf("failed to resolve %s for %s: %w", PreprocessorFile, name, err)
	}

	processor, err := preprocess.New(procCfg)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", name, err)
	}

	onnxPath, err := p.fetchONNX(ctx, name, dir)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"classes": labels.Len(),
		"onnx":    onnxPath,
	}).Info("model resolved")

	return &Model{
		Name:      name,
		Dir:       dir,
		ONNXPath:  onnxPath,
		Labels:    labels,
		Processor: processor,
	}, nil
}

func (p *Provider) fetchONNX(ctx context.Context, name, dir string) (string, error) {
	for _, candidate := range onnxCandidates {
		path, err := p.fetch(ctx, name, dir, candidate)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrNotCached) {
			return "", fmt.Errorf("failed to resolve ONNX weights for %s: %w", name, err)
		}
	}

	if p.opts.Offline {
		return "", fmt.Errorf("no ONNX weights for %s (tried %s): %w",
			name, strings.Join(onnxCandidates, ", "), ErrNotCached)
	}
	return "", fmt.Errorf("no ONNX weights for %s (tried %s): %w",
		name, strings.Join(onnxCandidates, ", "), ErrNotFound)
}

// fetch returns the local path of file, downloading it when it is missing.
func (p *Provider) fetch(ctx context.Context, name, dir, file string) (string, error) {
	local := filepath.Join(dir, filepath.FromSlash(file))

	info, err := os.Stat(local)
	if err == nil && info.Mode().IsRegular() {
		return local, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to stat %s: %w", local, err)
	}

	if p.opts.Offline {
		return "", fmt.Errorf("%s: %w", local, ErrNotCached)
	}

	if err := p.download(ctx, p.fileURL(name, file), local); err != nil {
		return "", err
	}
	return local, nil
}

func (p *Provider) fileURL(name, file string) string {
	return fmt.Sprintf("%s/%s/resolve/%s/%s",
		strings.TrimRight(p.opts.HubURL, "/"), name, p.opts.Revision, file)
}
