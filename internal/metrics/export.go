// internal/metrics/export.go
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// JobName is the Pushgateway job run metrics are grouped under
const JobName = "vit_classifier"

// Push sends the run's metrics to a Prometheus Pushgateway, grouped by
// instance so concurrent runs on one host do not overwrite each other.
func Push(ctx context.Context, url, instance string) error {
	return PushGatherer(ctx, url, instance, Registry)
}

// PushGatherer pushes g instead of the package registry.
func PushGatherer(ctx context.Context, url, instance string, g prometheus.Gatherer) error {
	pusher := push.New(url, JobName).Gatherer(g)
	if instance != "" {
		pusher = pusher.Grouping("instance", instance)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}

// WriteTextfile writes the run's metrics in the Prometheus text format, for
// consumption by the node exporter textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("failed to write metrics file %s: %w", path, err)
	}
	return nil
}
