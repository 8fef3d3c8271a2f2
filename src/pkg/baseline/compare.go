package baseline

import (
	"bytes"
	"image"
	"image/png"
)

// Comparator decides whether two baselines differ.
type Comparator interface {
	DiffersAsText(a, b []byte) bool
	// DiffersAsImage treats tolerance as the percentage of pixels allowed to differ.
	DiffersAsImage(a, b []byte, tolerance float64) bool
}

// PixelComparator compares text byte-for-byte and images pixel-by-pixel.
type PixelComparator struct{}

var _ Comparator = (*PixelComparator)(nil)

func (PixelComparator) DiffersAsText(a, b []byte) bool {
	return !bytes.Equal(a, b)
}

func (PixelComparator) DiffersAsImage(a, b []byte, tolerance float64) bool {
	if bytes.Equal(a, b) {
		return false
	}
	imgA, errA := png.Decode(bytes.NewReader(a))
	imgB, errB := png.Decode(bytes.NewReader(b))
	if errA != nil || errB != nil {
		logger.WithField("errA", errA).WithField("errB", errB).Debug("Undecodable image, comparing bytes")
		return true
	}
	ba, bb := imgA.Bounds(), imgB.Bounds()
	if ba.Dx() != bb.Dx() || ba.Dy() != bb.Dy() {
		return true
	}
	return diffPercent(imgA, imgB) > tolerance
}

// diffPercent is the share of differing pixels of two same-sized images.
func diffPercent(a, b image.Image) float64 {
	ba, bb := a.Bounds(), b.Bounds()
	total := ba.Dx() * ba.Dy()
	if total == 0 {
		return 0
	}

	diff := 0
	for y := 0; y < ba.Dy(); y++ {
		for x := 0; x < ba.Dx(); x++ {
			r1, g1, b1, a1 := a.At(ba.Min.X+x, ba.Min.Y+y).RGBA()
			r2, g2, b2, a2 := b.At(bb.Min.X+x, bb.Min.Y+y).RGBA()
			if r1 != r2 || g1 != g2 || b1 != b2 || a1 != a2 {
				diff++
			}
		}
	}
	return 100 * float64(diff) / float64(total)
}
