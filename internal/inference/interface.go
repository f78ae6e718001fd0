// internal/inference/interface.go
package inference

// InferenceEngine defines the interface for running a classifier forward pass.
// This abstraction allows for easy mocking in tests and swapping implementations.
type InferenceEngine interface {
	// Predict runs one preprocessed image and returns its logits.
	// pixels: flattened CHW image of length c*h*w
	// Returns one raw score per class
	Predict(pixels []float32, c, h, w int64) ([]float32, error)

	// Device reports where the forward pass executes.
	Device() Device

	// Close releases any resources held by the inference engine.
	Close() error
}
