// Package report prints the fixed, human-readable output of a run.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/SyedDaiam9101/vit-classifier/internal/classify"
)

const (
	// Title is printed between the opening banners
	Title = "Vision Transformer Image Classification Demo"

	width      = 60
	labelWidth = 45
)

var (
	banner    = strings.Repeat("=", width)
	separator = strings.Repeat("-", width)
)

// Header prints the opening banner and title.
func Header(w io.Writer) {
	fmt.Fprintln(w, banner)
	fmt.Fprintln(w, Title)
	fmt.Fprintln(w, banner)
}

// Results prints the ranked predictions and the closing banner.
func Results(w io.Writer, topK int, preds []classify.Prediction) {
	fmt.Fprintf(w, "\nTop %d Predictions:\n", topK)
	fmt.Fprintln(w, separator)
	for i, p := range preds {
		fmt.Fprintln(w, Line(i+1, p))
	}
	fmt.Fprintln(w, banner)
}

// Line formats one ranked prediction: rank, label padded or truncated to 45
// characters, and the confidence as a percentage.
func Line(rank int, p classify.Prediction) string {
	return fmt.Sprintf("%2d. %-*s %6.2f%%", rank, labelWidth, truncate(p.Label, labelWidth), p.Confidence*100)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
