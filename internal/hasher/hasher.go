// Package hasher computes the three independent digests the store
// keys duplicate detection on: streaming MD5 and SHA-256 over raw file
// bytes, and a DCT-based perceptual hash over decoded pixels. The
// perceptual hash must be bitwise-reproducible across hosts given
// identical input bytes, since it is compared across machines via
// Hamming distance rather than recomputed locally.
package hasher

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"
	"sort"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// FileDigests streams a file once through both MD5 and SHA-256,
// returning lowercase hex digests.
func FileDigests(path string) (md5Hex, sha256Hex string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("hasher: open %s: %w", path, err)
	}
	defer f.Close()

	h5 := md5.New()
	h256 := sha256.New()
	if _, err := io.Copy(io.MultiWriter(h5, h256), f); err != nil {
		return "", "", fmt.Errorf("hasher: read %s: %w", path, err)
	}
	return hex.EncodeToString(h5.Sum(nil)), hex.EncodeToString(h256.Sum(nil)), nil
}

// PerceptualHash computes a 64-bit signature via DCT on a 32x32
// grayscale downscale, taking the low-frequency block (excluding the
// DC coefficient) and thresholding each value against their median.
func PerceptualHash(img image.Image) uint64 {
	gray := toGrayscale(resize(img, 32, 32))
	dct := computeDCT(gray)

	lowFreq := make([]float64, 64)
	idx := 0
	for u := 0; u < 8; u++ {
		for v := 0; v < 8; v++ {
			if u == 0 && v == 0 {
				continue // DC coefficient carries only average brightness
			}
			if idx < 64 {
				lowFreq[idx] = dct[u][v]
				idx++
			}
		}
	}
	for ; idx < 64; idx++ {
		lowFreq[idx] = dct[idx/8][idx%8]
	}

	median := computeMedian(lowFreq)
	var hash uint64
	for i := 0; i < 64; i++ {
		if lowFreq[i] > median {
			hash |= 1 << (63 - i)
		}
	}
	return hash
}

// PerceptualHashFromFile decodes the image at path and computes its
// perceptual hash.
func PerceptualHashFromFile(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("hasher: read %s: %w", path, err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("hasher: decode %s: %w", path, err)
	}
	return PerceptualHash(img), nil
}

// HashHex formats a 64-bit hash as 16 lowercase hex digits.
func HashHex(h uint64) string {
	return fmt.Sprintf("%016x", h)
}

// ParseHashHex parses the hex form back into a uint64, returning 0 for
// an empty or malformed string (an unset perceptual hash).
func ParseHashHex(s string) uint64 {
	if s == "" {
		return 0
	}
	var v uint64
	if _, err := fmt.Sscanf(s, "%016x", &v); err != nil {
		return 0
	}
	return v
}

// HammingDistance counts differing bits between two signatures. The
// result is always in [0, 64] since both operands are 64-bit.
func HammingDistance(a, b uint64) int {
	x := a ^ b
	n := 0
	for x != 0 {
		n++
		x &= x - 1
	}
	return n
}

// Similar reports whether two hashes are within threshold Hamming
// distance. threshold is clamped to [0, 64]: the config surface
// describes similarity_threshold as if it ran over a 0-256 range, but
// the signature is 64 bits wide, so anything above 64 is treated as
// "match everything" rather than silently comparing against a
// distance no pair of 64-bit hashes can exceed.
func Similar(a, b uint64, threshold int) bool {
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 64 {
		threshold = 64
	}
	return HammingDistance(a, b) <= threshold
}

func resize(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

func toGrayscale(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	gray := make([][]float64, width)
	for x := 0; x < width; x++ {
		gray[x] = make([]float64, height)
		for y := 0; y < height; y++ {
			r, g, b, _ := img.At(x, y).RGBA()
			gray[x][y] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
		}
	}
	return gray
}

func computeDCT(gray [][]float64) [][]float64 {
	size := len(gray)
	dct := make([][]float64, size)
	for i := range dct {
		dct[i] = make([]float64, size)
	}

	cosTable := make([][]float64, size)
	for i := range cosTable {
		cosTable[i] = make([]float64, size)
		for j := 0; j < size; j++ {
			cosTable[i][j] = math.Cos(math.Pi * float64(i) * (2*float64(j) + 1) / (2 * float64(size)))
		}
	}

	for u := 0; u < size; u++ {
		for v := 0; v < size; v++ {
			var sum float64
			for x := 0; x < size; x++ {
				for y := 0; y < size; y++ {
					sum += gray[x][y] * cosTable[u][x] * cosTable[v][y]
				}
			}
			dct[u][v] = sum
		}
	}
	return dct
}

func computeMedian(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
