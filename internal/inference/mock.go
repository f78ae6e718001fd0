// internal/inference/mock.go
package inference

import (
	"fmt"
)

// MockInference is a mock implementation of InferenceEngine for testing.
// It returns deterministic logits without requiring the ONNX shared library.
type MockInference struct {
	// Logits are returned for every Predict call
	Logits []float32
	// ShouldError if true, Predict will return an error
	ShouldError bool
	// ErrorMessage is the error message to return when ShouldError is true
	ErrorMessage string
	// CallCount tracks the number of times Predict was called
	CallCount int
	// Closed is set once Close has been called
	Closed bool
}

// NewMock creates a MockInference for numClasses classes whose logits
// decrease with the class index, so class 0 ranks first.
func NewMock(numClasses int) *MockInference {
	logits := make([]float32, numClasses)
	for i := range logits {
		logits[i] = float32(numClasses-i) / 2
	}
	return &MockInference{Logits: logits}
}

// NewMockWithLogits creates a MockInference with custom logits
func NewMockWithLogits(logits []float32) *MockInference {
	return &MockInference{Logits: logits}
}

// Predict validates its input and returns a copy of Logits.
func (m *MockInference) Predict(pixels []float32, c, h, w int64) ([]float32, error) {
	m.CallCount++

	if m.ShouldError {
		if m.ErrorMessage != "" {
			return nil, fmt.Errorf("%s", m.ErrorMessage)
		}
		return nil, fmt.Errorf("mock inference error")
	}

	if c <= 0 || h <= 0 || w <= 0 {
		return nil, fmt.Errorf("invalid input dimensions: channels=%d, height=%d, width=%d", c, h, w)
	}
	if int64(len(pixels)) != c*h*w {
		return nil, fmt.Errorf("input has wrong size: got %d, expected %d", len(pixels), c*h*w)
	}

	return append([]float32(nil), m.Logits...), nil
}

// Device always reports the CPU
func (m *MockInference) Device() Device {
	return DeviceCPU
}

// Close records that the engine was released
func (m *MockInference) Close() error {
	m.Closed = true
	return nil
}

// SetError configures the mock to return an error on the next Predict call
func (m *MockInference) SetError(msg string) {
	m.ShouldError = true
	m.ErrorMessage = msg
}

// ClearError clears any configured error
func (m *MockInference) ClearError() {
	m.ShouldError = false
	m.ErrorMessage = ""
}

// Ensure MockInference implements InferenceEngine at compile time
var _ InferenceEngine = (*MockInference)(nil)
