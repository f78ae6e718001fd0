// Package preprocess turns an encoded image into the fixed-shape float32
// tensor a classification model expects.
package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // register WebP next to imaging's JPEG/PNG/GIF/BMP/TIFF
)

// Channels is the number of color channels fed to the model (RGB).
const Channels = 3

// Tensor is a single preprocessed image in CHW layout
type Tensor struct {
	Data     []float32
	Channels int64
	Height   int64
	Width    int64
}

// Shape returns the NCHW shape of a batch holding this tensor.
func (t *Tensor) Shape() []int64 {
	return []int64{1, t.Channels, t.Height, t.Width}
}

// Decode decodes an encoded image. EXIF orientation tags are ignored and
// pixels are returned in stored order.
func Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Processor applies a Config to decoded images.
type Processor struct {
	cfg    Config
	filter imaging.ResampleFilter
}

// New creates a Processor for cfg
func New(cfg Config) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid preprocessor config: %w", err)
	}
	filter, err := resampleFilter(cfg.Resample)
	if err != nil {
		return nil, err
	}
	return &Processor{cfg: cfg, filter: filter}, nil
}

// Config returns the configuration the processor was built with.
func (p *Processor) Config() Config {
	return p.cfg
}

// Apply converts img to RGB, resizes, crops, rescales and normalizes it.
// The alpha channel is discarded rather than composited.
func (p *Processor) Apply(img image.Image) (*Tensor, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("empty image")
	}

	rgb := p.resize(opaque(imaging.Clone(img)))
	if p.cfg.DoCenterCrop {
		rgb = centerCrop(rgb, p.cfg.CropWidth, p.cfg.CropHeight)
	}

	width := rgb.Bounds().Dx()
	height := rgb.Bounds().Dy()
	plane := width * height
	data := make([]float32, Channels*plane)

	for y := 0; y < height; y++ {
		row := rgb.Pix[y*rgb.Stride:]
		for x := 0; x < width; x++ {
			px := row[x*4 : x*4+3]
			for c := 0; c < Channels; c++ {
				data[c*plane+y*width+x] = p.value(c, px[c])
			}
		}
	}

	return &Tensor{
		Data:     data,
		Channels: Channels,
		Height:   int64(height),
		Width:    int64(width),
	}, nil
}

func (p *Processor) resize(img *image.NRGBA) *image.NRGBA {
	if !p.cfg.DoResize {
		return img
	}
	if edge := p.cfg.ShortestEdge; edge > 0 {
		w, h := shortestEdgeSize(img.Bounds().Dx(), img.Bounds().Dy(), edge)
		return imaging.Resize(img, w, h, p.filter)
	}
	return imaging.Resize(img, p.cfg.Width, p.cfg.Height, p.filter)
}

// opaque sets every alpha value to 255 so resampling keeps the stored RGB
// of transparent pixels instead of weighting it away.
func opaque(img *image.NRGBA) *image.NRGBA {
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img
}

// shortestEdgeSize scales the short side to edge and truncates the long side.
func shortestEdgeSize(w, h, edge int) (int, int) {
	if w <= h {
		return edge, int(float64(edge) * float64(h) / float64(w))
	}
	return int(float64(edge) * float64(w) / float64(h)), edge
}

// centerCrop crops to w x h around the center, padding with black when the
// image is smaller than the crop.
func centerCrop(img *image.NRGBA, w, h int) *image.NRGBA {
	cropped := imaging.CropCenter(img, w, h)
	if b := cropped.Bounds(); b.Dx() == w && b.Dy() == h {
		return cropped
	}
	canvas := imaging.New(w, h, color.NRGBA{A: 255})
	return imaging.PasteCenter(canvas, cropped)
}

func (p *Processor) value(channel int, v uint8) float32 {
	f := float64(v)
	if p.cfg.DoRescale {
		f *= p.cfg.RescaleFactor
	}
	if p.cfg.DoNormalize {
		f = (f - p.cfg.Mean[channel]) / p.cfg.Std[channel]
	}
	return float32(f)
}
