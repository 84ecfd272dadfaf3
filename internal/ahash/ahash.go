package ahash

import (
	"fmt"
	"image"
	"math/bits"
	"strconv"

	"golang.org/x/image/draw"
)

// hashSide is the downsample edge: 8x8 gives a 64-bit signature.
const hashSide = 8

// Signature computes the 64-bit average hash of an image region.
//
// The region is resized to 8x8, converted to grayscale, and bit i is set
// when pixel i (row-major) is at or above the mean luminance. The result is
// deterministic but rotation- and scale-sensitive; there is no alignment step.
func Signature(img image.Image) uint64 {
	gray := downsampleGray(img)

	var sum float64
	for _, v := range gray {
		sum += v
	}
	mean := sum / float64(len(gray))

	var sig uint64
	for i, v := range gray {
		if v >= mean {
			sig |= 1 << uint(i)
		}
	}
	return sig
}

// Distance returns the Hamming distance between two signatures.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar reports whether two signatures are within maxDistance bits.
func Similar(a, b uint64, maxDistance int) bool {
	return Distance(a, b) <= maxDistance
}

// Encode renders a signature as a 16-character lowercase hex digest,
// the storage format used for person and face signatures.
func Encode(sig uint64) string {
	return fmt.Sprintf("%016x", sig)
}

// Decode parses a hex digest produced by Encode.
func Decode(digest string) (uint64, error) {
	sig, err := strconv.ParseUint(digest, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid signature digest %q: %w", digest, err)
	}
	return sig, nil
}

// downsampleGray scales the image to 8x8 and returns row-major BT.601 luma values.
func downsampleGray(img image.Image) []float64 {
	dst := image.NewRGBA(image.Rect(0, 0, hashSide, hashSide))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)

	gray := make([]float64, hashSide*hashSide)
	for y := 0; y < hashSide; y++ {
		for x := 0; x < hashSide; x++ {
			r, g, b, _ := dst.At(x, y).RGBA()
			// ITU-R BT.601 luma formula.
			gray[y*hashSide+x] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
		}
	}
	return gray
}
