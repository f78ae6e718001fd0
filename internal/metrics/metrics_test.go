// internal/metrics/metrics_test.go
package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordPrediction(t *testing.T) {
	counter := PredictionsTotal.WithLabelValues("acme/tiny", "cpu")
	before := testutil.ToFloat64(counter)

	RecordPrediction("acme/tiny", "cpu", 0.75)

	if got := testutil.ToFloat64(counter); got != before+1 {
		t.Errorf("PredictionsTotal = %f, expected %f", got, before+1)
	}
	if got := testutil.ToFloat64(TopConfidence.WithLabelValues("acme/tiny")); got != 0.75 {
		t.Errorf("TopConfidence = %f, expected 0.75", got)
	}
}

func TestRecordCacheResult(t *testing.T) {
	before := testutil.ToFloat64(CacheRequestsTotal.WithLabelValues("hit"))
	RecordCacheResult("hit")
	RecordCacheResult("hit")
	if got := testutil.ToFloat64(CacheRequestsTotal.WithLabelValues("hit")); got != before+2 {
		t.Errorf("CacheRequestsTotal{hit} = %f, expected %f", got, before+2)
	}
}

func TestWriteTextfile(t *testing.T) {
	RecordModelLoad(0.2)
	RecordPreprocess(0.01)
	RecordInferenceLatency("cpu", 0.05)

	path := filepath.Join(t.TempDir(), "vit.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"vit_model_load_seconds", "vit_preprocess_seconds", "vit_inference_latency_seconds"} {
		if !strings.Contains(string(data), name) {
			t.Errorf("metrics file missing %s", name)
		}
	}
}

func TestPush(t *testing.T) {
	var path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	RecordPrediction("acme/push", "cpu", 0.5)

	if err := Push(context.Background(), srv.URL, "run-1"); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if !strings.Contains(path, "/job/"+JobName) || !strings.Contains(path, "/instance/run-1") {
		t.Errorf("Unexpected push path %s", path)
	}
	if body == "" {
		t.Error("Expected metrics in request body")
	}
}

func TestPush_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := Push(context.Background(), srv.URL, ""); err == nil {
		t.Fatal("Expected error from failing Pushgateway")
	}
}
