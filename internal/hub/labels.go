// internal/hub/labels.go
package hub

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// maxClasses bounds the dense table built from a sparse id2label.
const maxClasses = 1 << 20

// Labels is an immutable index-to-label table
type Labels struct {
	names []string
}

// NewLabels builds a table from labels ordered by class index.
func NewLabels(names []string) Labels {
	return Labels{names: append([]string(nil), names...)}
}

// Len returns the number of classes
func (l Labels) Len() int {
	return len(l.names)
}

// Label returns the label of class index i
func (l Labels) Label(i int) (string, error) {
	if i < 0 || i >= len(l.names) {
		return "", fmt.Errorf("class index %d out of range [0,%d)", i, len(l.names))
	}
	return l.names[i], nil
}

// modelConfig is the subset of a model's config.json the provider reads.
type modelConfig struct {
	ID2Label map[string]string `json:"id2label"`
}

// parseLabels reads id2label from a config.json document. Indices missing
// from a sparse table are named LABEL_<i>.
func parseLabels(data []byte) (Labels, error) {
	var cfg modelConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Labels{}, fmt.Errorf("failed to parse model config: %w", err)
	}
	if len(cfg.ID2Label) == 0 {
		return Labels{}, fmt.Errorf("model config has no id2label table")
	}

	byIndex := make(map[int]string, len(cfg.ID2Label))
	maxIndex := -1
	for key, label := range cfg.ID2Label {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 {
			return Labels{}, fmt.Errorf("invalid id2label index %q", key)
		}
		byIndex[idx] = label
		if idx > maxIndex {
			maxIndex = idx
		}
	}

	if maxIndex >= maxClasses {
		return Labels{}, fmt.Errorf("id2label index %d exceeds %d classes", maxIndex, maxClasses)
	}

	names := make([]string, maxIndex+1)
	for i := range names {
		if label, ok := byIndex[i]; ok {
			names[i] = label
		} else {
			names[i] = fmt.Sprintf("LABEL_%d", i)
		}
	}

	return Labels{names: names}, nil
}
