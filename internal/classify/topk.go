// internal/classify/topk.go
package classify

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
)

var (
	// ErrInvalidTopK is returned when K is not a positive integer
	ErrInvalidTopK = errors.New("top_k must be a positive integer")
	// ErrTopKOutOfRange is returned when K exceeds the number of classes
	ErrTopKOutOfRange = errors.New("top_k exceeds the number of classes")
	// ErrNonFiniteLogits is returned when the logits cannot be normalized
	ErrNonFiniteLogits = errors.New("model produced non-finite logits")
)

// Prediction is one entry of a top-K result list
type Prediction struct {
	Index      int     `json:"index"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Softmax maps logits to a probability distribution. The maximum is
// subtracted before exponentiation so large logits do not overflow.
// Logits containing NaN or +Inf, or only -Inf, are rejected.
func Softmax(logits []float32) ([]float64, error) {
	if len(logits) == 0 {
		return nil, nil
	}

	maxLogit := math.Inf(-1)
	for _, v := range logits {
		maxLogit = math.Max(maxLogit, float64(v))
	}
	if math.IsNaN(maxLogit) || math.IsInf(maxLogit, 0) {
		return nil, fmt.Errorf("%w: max logit is %v", ErrNonFiniteLogits, maxLogit)
	}

	probs := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		probs[i] = math.Exp(float64(v) - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs, nil
}

// TopK returns the indices of the k largest scores in descending order.
// Equal scores keep ascending index order.
func TopK(scores []float64, k int) ([]int, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, k)
	}
	if k > len(scores) {
		return nil, fmt.Errorf("%w: requested %d, model has %d", ErrTopKOutOfRange, k, len(scores))
	}

	indices := make([]int, len(scores))
	for i := range indices {
		indices[i] = i
	}
	slices.SortStableFunc(indices, func(a, b int) int {
		return cmp.Compare(scores[b], scores[a])
	})

	return indices[:k], nil
}
