// internal/tracing/tracing_test.go
package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInit_ExportsSpans(t *testing.T) {
	var buf bytes.Buffer

	shutdown, err := Init(&buf, "run-123")
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "classify")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"Name": "classify"`) {
		t.Errorf("Expected exported span named classify, got:\n%s", out)
	}
	if !strings.Contains(out, "run-123") {
		t.Errorf("Expected run id in span resource, got:\n%s", out)
	}
	if !strings.Contains(out, serviceName) {
		t.Errorf("Expected service name in span resource")
	}
}
