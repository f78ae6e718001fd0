// internal/preprocess/config.go
package preprocess

import (
	"encoding/json"
	"fmt"

	"github.com/disintegration/imaging"
)

// Config describes an image processor in the terms used by a
// preprocessor_config.json file published alongside a hub model.
type Config struct {
	DoResize bool
	// Height and Width are the exact resize target unless ShortestEdge is set,
	// in which case the shorter side is scaled to ShortestEdge and the aspect
	// ratio is kept.
	Height       int
	Width        int
	ShortestEdge int
	// Resample is a PIL resampling code (0 nearest ... 5 hamming).
	Resample int

	DoCenterCrop bool
	CropHeight   int
	CropWidth    int

	DoRescale     bool
	RescaleFactor float64

	DoNormalize bool
	Mean        [3]float64
	Std         [3]float64
}

// DefaultConfig returns the ViT image processor defaults: 224x224 bilinear
// resize, rescale to [0,1] and normalize with mean and std 0.5.
func DefaultConfig() Config {
	return Config{
		DoResize:      true,
		Height:        224,
		Width:         224,
		Resample:      2,
		DoRescale:     true,
		RescaleFactor: 1.0 / 255.0,
		DoNormalize:   true,
		Mean:          [3]float64{0.5, 0.5, 0.5},
		Std:           [3]float64{0.5, 0.5, 0.5},
	}
}

type rawConfig struct {
	DoResize      *bool           `json:"do_resize"`
	Size          json.RawMessage `json:"size"`
	Resample      *int            `json:"resample"`
	DoCenterCrop  *bool           `json:"do_center_crop"`
	CropSize      json.RawMessage `json:"crop_size"`
	DoRescale     *bool           `json:"do_rescale"`
	RescaleFactor *float64        `json:"rescale_factor"`
	DoNormalize   *bool           `json:"do_normalize"`
	ImageMean     []float64       `json:"image_mean"`
	ImageStd      []float64       `json:"image_std"`
}

type rawSize struct {
	Height       int `json:"height"`
	Width        int `json:"width"`
	ShortestEdge int `json:"shortest_edge"`
}

// ParseConfig parses a preprocessor_config.json document. Fields that are
// absent keep their DefaultConfig value.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("failed to parse preprocessor config: %w", err)
	}

	if raw.DoResize != nil {
		cfg.DoResize = *raw.DoResize
	}
	if len(raw.Size) > 0 {
		size, err := parseSize(raw.Size)
		if err != nil {
			return cfg, fmt.Errorf("invalid size: %w", err)
		}
		cfg.Height, cfg.Width, cfg.ShortestEdge = size.Height, size.Width, size.ShortestEdge
	}
	if raw.Resample != nil {
		cfg.Resample = *raw.Resample
	}
	if raw.DoCenterCrop != nil {
		cfg.DoCenterCrop = *raw.DoCenterCrop
	}
	if len(raw.CropSize) > 0 {
		crop, err := parseSize(raw.CropSize)
		if err != nil {
			return cfg, fmt.Errorf("invalid crop_size: %w", err)
		}
		if crop.ShortestEdge > 0 {
			return cfg, fmt.Errorf("invalid crop_size: shortest_edge is not a crop")
		}
		cfg.CropHeight, cfg.CropWidth = crop.Height, crop.Width
	}
	if raw.DoRescale != nil {
		cfg.DoRescale = *raw.DoRescale
	}
	if raw.RescaleFactor != nil {
		cfg.RescaleFactor = *raw.RescaleFactor
	}
	if raw.DoNormalize != nil {
		cfg.DoNormalize = *raw.DoNormalize
	}
	if raw.ImageMean != nil {
		mean, err := perChannel(raw.ImageMean)
		if err != nil {
			return cfg, fmt.Errorf("invalid image_mean: %w", err)
		}
		cfg.Mean = mean
	}
	if raw.ImageStd != nil {
		std, err := perChannel(raw.ImageStd)
		if err != nil {
			return cfg, fmt.Errorf("invalid image_std: %w", err)
		}
		cfg.Std = std
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// parseSize accepts either a bare integer (square) or an object with
// height/width or shortest_edge.
func parseSize(data json.RawMessage) (rawSize, error) {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		return rawSize{Height: n, Width: n}, nil
	}

	var size rawSize
	if err := json.Unmarshal(data, &size); err != nil {
		return size, err
	}
	if size.ShortestEdge == 0 && (size.Height == 0 || size.Width == 0) {
		return size, fmt.Errorf("need height and width or shortest_edge")
	}
	return size, nil
}

func perChannel(values []float64) ([3]float64, error) {
	switch len(values) {
	case 1:
		return [3]float64{values[0], values[0], values[0]}, nil
	case 3:
		return [3]float64{values[0], values[1], values[2]}, nil
	default:
		return [3]float64{}, fmt.Errorf("expected 1 or 3 values, got %d", len(values))
	}
}

// Validate checks that the transform produces a non-empty, fixed-shape tensor.
func (c Config) Validate() error {
	if c.DoResize {
		if c.ShortestEdge < 0 || (c.ShortestEdge == 0 && (c.Height <= 0 || c.Width <= 0)) {
			return fmt.Errorf("invalid resize target %dx%d", c.Width, c.Height)
		}
		if c.ShortestEdge > 0 && !c.DoCenterCrop {
			return fmt.Errorf("shortest_edge resize needs a center crop for a fixed input shape")
		}
	}
	if c.DoCenterCrop && (c.CropHeight <= 0 || c.CropWidth <= 0) {
		return fmt.Errorf("invalid crop size %dx%d", c.CropWidth, c.CropHeight)
	}
	if _, err := resampleFilter(c.Resample); err != nil {
		return err
	}
	if c.DoNormalize {
		for i, s := range c.Std {
			if s == 0 {
				return fmt.Errorf("image_std[%d] is zero", i)
			}
		}
	}
	return nil
}

// resampleFilter maps PIL resampling codes onto imaging filters.
func resampleFilter(code int) (imaging.ResampleFilter, error) {
	switch code {
	case 0:
		return imaging.NearestNeighbor, nil
	case 1:
		return imaging.Lanczos, nil
	case 2:
		return imaging.Linear, nil
	case 3:
		return imaging.CatmullRom, nil
	case 4:
		return imaging.Box, nil
	case 5:
		return imaging.Hamming, nil
	default:
		return imaging.ResampleFilter{}, fmt.Errorf("unsupported resample code %d", code)
	}
}
