// Package detect scores how much of a frame's centre is lit by a green
// signal head. It runs on every captured frame, so it is a single pass over
// the region of interest with no colour-space conversion.
package detect

import (
	"image"

	"github.com/banshee-data/greenwave/internal/config"
)

// BytesPerPixel is the layout of FrameSample.Pix: packed R, G, B.
const BytesPerPixel = 3

// FrameSample is a downsampled RGB frame. Pix holds Height rows of
// Width*BytesPerPixel bytes each.
type FrameSample struct {
	Width  int
	Height int
	Pix    []byte
}

// NewFrameSample allocates a black frame of the given size.
func NewFrameSample(width, height int) FrameSample {
	return FrameSample{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*BytesPerPixel),
	}
}

// Valid reports whether the buffer is large enough for the declared size.
func (f FrameSample) Valid() bool {
	return f.Width > 0 && f.Height > 0 && len(f.Pix) >= f.Width*f.Height*BytesPerPixel
}

// Set writes one pixel. Out-of-bounds writes are ignored.
func (f FrameSample) Set(x, y int, r, g, b uint8) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return
	}
	i := (y*f.Width + x) * BytesPerPixel
	f.Pix[i], f.Pix[i+1], f.Pix[i+2] = r, g, b
}

// Fill paints every pixel inside rect.
func (f FrameSample) Fill(rect image.Rectangle, r, g, b uint8) {
	rect = rect.Intersect(image.Rect(0, 0, f.Width, f.Height))
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			f.Set(x, y, r, g, b)
		}
	}
}

// CenterROI returns the centred rectangle covering fraction of each
// dimension, rounded down to whole pixels.
func CenterROI(width, height int, fraction float64) image.Rectangle {
	w := int(float64(width) * fraction)
	h := int(float64(height) * fraction)
	x := (width - w) / 2
	y := (height - h) / 2
	return image.Rect(x, y, x+w, y+h)
}

// Classifier decides which ROI pixels are green-dominant.
type Classifier struct {
	// ROIFraction is the share of width and height analysed, centred.
	ROIFraction float64
	// Ratio is how many times G must exceed both R and B.
	Ratio float64
	// Floor is the minimum G value; it rejects near-black sensor noise.
	Floor uint8
}

// DefaultClassifier returns the classifier with the stock thresholds:
// 40% ROI, G > 1.2·R, G > 1.2·B, G > 60.
func DefaultClassifier() Classifier {
	return Classifier{ROIFraction: 0.4, Ratio: 1.2, Floor: 60}
}

// NewClassifier builds a Classifier from tuning config.
func NewClassifier(cfg *config.TuningConfig) Classifier {
	return Classifier{
		ROIFraction: cfg.GetROIFraction(),
		Ratio:       cfg.GetGreenRatio(),
		Floor:       uint8(cfg.GetBrightnessFloor()),
	}
}

// IsGreen reports whether a single pixel is green-dominant.
func (c Classifier) IsGreen(r, g, b uint8) bool {
	gf := float64(g)
	return gf > c.Ratio*float64(r) && gf > c.Ratio*float64(b) && g > c.Floor
}

// Classify returns the percentage (0–100) of ROI pixels that are
// green-dominant. A malformed frame or an empty ROI scores 0.
func (c Classifier) Classify(frame FrameSample) float64 {
	if !frame.Valid() {
		return 0
	}
	roi := CenterROI(frame.Width, frame.Height, c.ROIFraction)
	total := roi.Dx() * roi.Dy()
	if total <= 0 {
		return 0
	}

	green := 0
	stride := frame.Width * BytesPerPixel
	for y := roi.Min.Y; y < roi.Max.Y; y++ {
		row := frame.Pix[y*stride : (y+1)*stride]
		for x := roi.Min.X; x < roi.Max.X; x++ {
			i := x * BytesPerPixel
			if c.IsGreen(row[i], row[i+1], row[i+2]) {
				green++
			}
		}
	}
	return 100 * float64(green) / float64(total)
}
