// internal/inference/inference.go
package inference

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

// Tensor names used by Hugging Face image-classification ONNX exports.
const (
	DefaultInputName  = "pixel_values"
	DefaultOutputName = "logits"
)

// Options configures the ONNX Runtime engine
type Options struct {
	ModelPath string
	// NumClasses is the length of the logit vector, taken from the label table.
	NumClasses int64
	Device     Device
	// SharedLibraryPath points at libonnxruntime; empty uses the loader default.
	SharedLibraryPath string
	Logger            logrus.FieldLogger
}

// Inference wraps an ONNX runtime session for thread-safe inference.
// It implements the InferenceEngine interface.
type Inference struct {
	mu         sync.Mutex
	session    *ort.DynamicAdvancedSession
	device     Device
	numClasses int64
}

// New creates a new Inference instance by loading the ONNX model. The device
// policy is evaluated once here: DeviceAuto tries CUDA first and falls back
// to the CPU, DeviceCUDA fails with ErrDeviceUnavailable.
func New(opts Options) (*Inference, error) {
	if opts.NumClasses <= 0 {
		return nil, fmt.Errorf("number of classes must be positive, got %d", opts.NumClasses)
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	if opts.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(opts.SharedLibraryPath)
	}

	// Initialize the ONNX runtime environment
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputName, outputName := tensorNames(opts.ModelPath, log)

	var session *ort.DynamicAdvancedSession
	device := DeviceCPU
	var err error

	if opts.Device != DeviceCPU {
		session, err = newSession(opts.ModelPath, inputName, outputName, true)
		switch {
		case err == nil:
			device = DeviceCUDA
		case opts.Device == DeviceCUDA:
			ort.DestroyEnvironment()
			return nil, fmt.Errorf("%w: cuda: %v", ErrDeviceUnavailable, err)
		default:
			log.WithError(err).Info("CUDA unavailable, falling back to CPU")
		}
	}

	if session == nil {
		session, err = newSession(opts.ModelPath, inputName, outputName, false)
		if err != nil {
			ort.DestroyEnvironment()
			return nil, fmt.Errorf("failed to create ONNX session: %w", err)
		}
	}

	log.WithFields(logrus.Fields{
		"input":  inputName,
		"output": outputName,
		"device": device,
	}).Debug("ONNX session ready")

	return &Inference{
		session:    session,
		device:     device,
		numClasses: opts.NumClasses,
	}, nil
}

// tensorNames reads the model's first input and output names, preferring the
// Hugging Face names when the model declares several.
func tensorNames(modelPath string, log logrus.FieldLogger) (string, string) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil || len(inputs) == 0 || len(outputs) == 0 {
		if err != nil {
			log.WithError(err).Debug("could not inspect model, using default tensor names")
		}
		return DefaultInputName, DefaultOutputName
	}

	inputName, outputName := inputs[0].Name, outputs[0].Name
	for _, in := range inputs {
		if in.Name == DefaultInputName {
			inputName = in.Name
		}
	}
	for _, out := range outputs {
		if out.Name == DefaultOutputName {
			outputName = out.Name
		}
	}
	return inputName, outputName
}

func newSession(modelPath, inputName, outputName string, cuda bool) (*ort.DynamicAdvancedSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if cuda {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fmt.Errorf("failed to create CUDA options: %w", err)
		}
		defer cudaOptions.Destroy()

		if err := cudaOptions.Update(map[string]string{"device_id": "0"}); err != nil {
			return nil, fmt.Errorf("failed to configure CUDA options: %w", err)
		}
		if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			return nil, fmt.Errorf("failed to enable CUDA provider: %w", err)
		}
	}

	return ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{inputName},
		[]string{outputName},
		options,
	)
}

// Predict runs a forward pass over a single CHW image.
// Returns the logits of length numClasses
func (inf *Inference) Predict(pixels []float32, c, h, w int64) ([]float32, error) {
	inf.mu.Lock()
	defer inf.mu.Unlock()

	if inf.session == nil {
		return nil, fmt.Errorf("inference session is nil")
	}

	if c <= 0 || h <= 0 || w <= 0 {
		return nil, fmt.Errorf("invalid input dimensions: channels=%d, height=%d, width=%d", c, h, w)
	}
	if int64(len(pixels)) != c*h*w {
		return nil, fmt.Errorf("input has wrong size: got %d, expected %d", len(pixels), c*h*w)
	}

	// Create input tensor with shape [1, C, H, W]
	inputTensor, err := ort.NewTensor(ort.NewShape(1, c, h, w), pixels)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	// Create output tensor with shape [1, numClasses]
	logits := make([]float32, inf.numClasses)
	outputTensor, err := ort.NewTensor(ort.NewShape(1, inf.numClasses), logits)
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	// Run inference
	err = inf.session.Run(
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
	)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return logits, nil
}

// Device returns the device the session was created on
func (inf *Inference) Device() Device {
	return inf.device
}

// Close releases the ONNX session resources
func (inf *Inference) Close() error {
	inf.mu.Lock()
	defer inf.mu.Unlock()

	if inf.session != nil {
		err := inf.session.Destroy()
		inf.session = nil
		if err != nil {
			return fmt.Errorf("failed to destroy session: %w", err)
		}
	}

	return ort.DestroyEnvironment()
}

// Ensure Inference implements InferenceEngine at compile time
var _ InferenceEngine = (*Inference)(nil)
