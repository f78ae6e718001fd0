// internal/inference/inference_test.go
package inference

import (
	"os"
	"testing"
)

func TestMockInference_Predict(t *testing.T) {
	mock := NewMock(4)

	pixels := []float32{0.1, 0.2, 0.3, 0.4} // C=1, H=2, W=2
	logits, err := mock.Predict(pixels, 1, 2, 2)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	expected := []float32{2, 1.5, 1, 0.5}
	if len(logits) != len(expected) {
		t.Fatalf("Expected %d logits, got %d", len(expected), len(logits))
	}
	for i, v := range expected {
		if logits[i] != v {
			t.Errorf("Logits[%d] = %f, expected %f", i, logits[i], v)
		}
	}

	// Callers may modify the result without affecting the mock
	logits[0] = 100
	if mock.Logits[0] != 2 {
		t.Error("Predict must return a copy of the mock logits")
	}

	if mock.CallCount != 1 {
		t.Errorf("Expected CallCount=1, got %d", mock.CallCount)
	}
}

func TestMockInference_PredictError(t *testing.T) {
	mock := NewMock(2)
	mock.SetError("test error")

	_, err := mock.Predict([]float32{0.1, 0.2, 0.3, 0.4}, 1, 2, 2)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if err.Error() != "test error" {
		t.Errorf("Expected 'test error', got '%s'", err.Error())
	}

	mock.ClearError()
	if _, err := mock.Predict([]float32{0.1, 0.2, 0.3, 0.4}, 1, 2, 2); err != nil {
		t.Errorf("Expected success after ClearError, got %v", err)
	}
}

func TestMockInference_WrongInputSize(t *testing.T) {
	mock := NewMock(2)

	if _, err := mock.Predict([]float32{0.1, 0.2}, 1, 2, 2); err == nil {
		t.Fatal("Expected error for wrong input size")
	}
	if _, err := mock.Predict(nil, 0, 2, 2); err == nil {
		t.Fatal("Expected error for zero dimension")
	}
}

func TestMockInference_CustomLogits(t *testing.T) {
	custom := []float32{-1, 3, 0.5}
	mock := NewMockWithLogits(custom)

	logits, err := mock.Predict([]float32{1}, 1, 1, 1)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	for i, v := range custom {
		if logits[i] != v {
			t.Errorf("Logits[%d] = %f, expected %f", i, logits[i], v)
		}
	}

	if mock.Device() != DeviceCPU {
		t.Errorf("Mock device = %s, expected cpu", mock.Device())
	}
	mock.Close()
	if !mock.Closed {
		t.Error("Expected Closed=true after Close")
	}
}

func TestParseDevice(t *testing.T) {
	tests := map[string]Device{
		"":     DeviceAuto,
		"auto": DeviceAuto,
		"CPU":  DeviceCPU,
		"cuda": DeviceCUDA,
		"gpu":  DeviceCUDA,
	}
	for in, want := range tests {
		got, err := ParseDevice(in)
		if err != nil {
			t.Errorf("ParseDevice(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseDevice(%q) = %s, expected %s", in, got, want)
		}
	}

	if _, err := ParseDevice("tpu"); err == nil {
		t.Error("Expected error for unknown device")
	}
}

func TestRealInference_WithModel(t *testing.T) {
	// Skip if ONNX model or library is not available
	modelPath := "testdata/classifier.onnx"
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		t.Skip("Skipping real inference test: testdata/classifier.onnx not found")
	}

	// Try to create inference - will fail if ONNX library not installed
	infer, err := New(Options{
		ModelPath:         modelPath,
		NumClasses:        1000,
		Device:            DeviceCPU,
		SharedLibraryPath: os.Getenv("ONNXRUNTIME_LIB"),
	})
	if err != nil {
		t.Skipf("Skipping real inference test: %v", err)
	}
	defer infer.Close()

	if infer.Device() != DeviceCPU {
		t.Errorf("Expected cpu device, got %s", infer.Device())
	}

	pixels := make([]float32, 3*224*224)
	logits, err := infer.Predict(pixels, 3, 224, 224)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	if len(logits) != 1000 {
		t.Errorf("Expected 1000 logits, got %d", len(logits))
	}
}
