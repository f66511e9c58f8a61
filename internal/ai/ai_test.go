package ai

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

// Helper functions for creating test images

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodeJPEG(img image.Image) []byte {
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func encodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

// --- ResizeImage tests ---

func TestResizeImage_NoResizeNeeded(t *testing.T) {
	img := createTestImage(100, 100, color.White)
	data := encodeJPEG(img)

	resized, err := ResizeImage(data, 200)
	if err != nil {
		t.Fatalf("ResizeImage failed: %v", err)
	}

	if len(resized) == 0 {
		t.Error("expected non-empty result")
	}

	// Verify it's a valid JPEG
	_, format, err := image.Decode(bytes.NewReader(resized))
	if err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}

	if format != "jpeg" {
		t.Errorf("expected jpeg format, got %s", format)
	}
}

func TestResizeImage_NeedsResize_Landscape(t *testing.T) {
	img := createTestImage(2000, 1000, color.White)
	data := encodeJPEG(img)

	resized, err := ResizeImage(data, 500)
	if err != nil {
		t.Fatalf("ResizeImage failed: %v", err)
	}

	decodedImg, _, err := image.Decode(bytes.NewReader(resized))
	if err != nil {
		t.Fatalf("failed to decode resized image: %v", err)
	}

	bounds := decodedImg.Bounds()

	// Width should be maxSize
	if bounds.Dx() != 500 {
		t.Errorf("expected width 500, got %d", bounds.Dx())
	}

	// Height should maintain aspect ratio (2000/1000 = 2:1)
	if bounds.Dy() != 250 {
		t.Errorf("expected height 250, got %d", bounds.Dy())
	}
}

func TestResizeImage_NeedsResize_Portrait(t *testing.T) {
	img := createTestImage(1000, 2000, color.White)
	data := encodeJPEG(img)

	resized, err := ResizeImage(data, 500)
	if err != nil {
		t.Fatalf("ResizeImage failed: %v", err)
	}

	decodedImg, _, err := image.Decode(bytes.NewReader(resized))
	if err != nil {
		t.Fatalf("failed to decode resized image: %v", err)
	}

	bounds := decodedImg.Bounds()

	// Height should be maxSize
	if bounds.Dy() != 500 {
		t.Errorf("expected height 500, got %d", bounds.Dy())
	}

	// Width should maintain aspect ratio
	if bounds.Dx() != 250 {
		t.Errorf("expected width 250, got %d", bounds.Dx())
	}
}

func TestResizeImage_NeedsResize_Square(t *testing.T) {
	img := createTestImage(1000, 1000, color.White)
	data := encodeJPEG(img)

	resized, err := ResizeImage(data, 200)
	if err != nil {
		t.Fatalf("ResizeImage failed: %v", err)
	}

	decodedImg, _, err := image.Decode(bytes.NewReader(resized))
	if err != nil {
		t.Fatalf("failed to decode resized image: %v", err)
	}

	bounds := decodedImg.Bounds()

	// Should be exactly 200x200
	if bounds.Dx() != 200 || bounds.Dy() != 200 {
		t.Errorf("expected 200x200, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestResizeImage_PreservesAspectRatio(t *testing.T) {
	// 4:3 aspect ratio
	img := createTestImage(1600, 1200, color.White)
	data := encodeJPEG(img)

	resized, err := ResizeImage(data, 400)
	if err != nil {
		t.Fatalf("ResizeImage failed: %v", err)
	}

	decodedImg, _, err := image.Decode(bytes.NewReader(resized))
	if err != nil {
		t.Fatalf("failed to decode resized image: %v", err)
	}

	bounds := decodedImg.Bounds()
	ratio := float64(bounds.Dx()) / float64(bounds.Dy())
	expectedRatio := 4.0 / 3.0

	// Allow small tolerance for rounding
	if ratio < expectedRatio-0.1 || ratio > expectedRatio+0.1 {
		t.Errorf("expected aspect ratio ~%.2f, got %.2f (%dx%d)",
			expectedRatio, ratio, bounds.Dx(), bounds.Dy())
	}
}

func TestResizeImage_InvalidData(t *testing.T) {
	invalidData := []byte("not an image")

	_, err := ResizeImage(invalidData, 500)
	if err == nil {
		t.Error("expected error for invalid image data")
	}
}

func TestResizeImage_EmptyData(t *testing.T) {
	_, err := ResizeImage([]byte{}, 500)
	if err == nil {
		t.Error("expected error for empty data")
	}
}

func TestResizeImage_PNGInput(t *testing.T) {
	img := createTestImage(100, 100, color.White)
	data := encodePNG(img)

	resized, err := ResizeImage(data, 200)
	if err != nil {
		t.Fatalf("ResizeImage failed for PNG: %v", err)
	}

	// Should convert to JPEG
	_, format, err := image.Decode(bytes.NewReader(resized))
	if err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}

	if format != "jpeg" {
		t.Errorf("expected jpeg output format, got %s", format)
	}
}

func TestResizeImage_LargeImage(t *testing.T) {
	// Test with a large image
	img := createTestImage(4000, 3000, color.Gray{128})
	data := encodeJPEG(img)

	resized, err := ResizeImage(data, 1920)
	if err != nil {
		t.Fatalf("ResizeImage failed: %v", err)
	}

	decodedImg, _, err := image.Decode(bytes.NewReader(resized))
	if err != nil {
		t.Fatalf("failed to decode resized image: %v", err)
	}

	bounds := decodedImg.Bounds()

	if bounds.Dx() > 1920 || bounds.Dy() > 1920 {
		t.Errorf("expected max dimension 1920, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestResizeImage_ExactlyMaxSize(t *testing.T) {
	// Image exactly at maxSize should still be returned (re-encoded)
	img := createTestImage(500, 500, color.White)
	data := encodeJPEG(img)

	resized, err := ResizeImage(data, 500)
	if err != nil {
		t.Fatalf("ResizeImage failed: %v", err)
	}

	decodedImg, _, err := image.Decode(bytes.NewReader(resized))
	if err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}

	bounds := decodedImg.Bounds()
	if bounds.Dx() != 500 || bounds.Dy() != 500 {
		t.Errorf("expected 500x500, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestResizeImage_OneDimensionAtMax(t *testing.T) {
	// Image with one dimension at max, other smaller
	img := createTestImage(500, 300, color.White)
	data := encodeJPEG(img)

	resized, err := ResizeImage(data, 500)
	if err != nil {
		t.Fatalf("ResizeImage failed: %v", err)
	}

	// Should not resize
	decodedImg, _, err := image.Decode(bytes.NewReader(resized))
	if err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}

	bounds := decodedImg.Bounds()
	if bounds.Dx() != 500 || bounds.Dy() != 300 {
		t.Errorf("expected 500x300, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

// --- Data structure tests ---

func TestUsage_ZeroValue(t *testing.T) {
	usage := Usage{}

	if usage.InputTokens != 0 {
		t.Error("expected InputTokens 0")
	}

	if usage.OutputTokens != 0 {
		t.Error("expected OutputTokens 0")
	}

	if usage.TotalCost != 0 {
		t.Error("expected TotalCost 0")
	}
}

// Benchmarks

func BenchmarkResizeImage_Small(b *testing.B) {
	img := createTestImage(100, 100, color.Gray{128})
	data := encodeJPEG(img)

	b.ResetTimer()
	for range b.N {
		ResizeImage(data, 50)
	}
}

func BenchmarkResizeImage_Large(b *testing.B) {
	img := createTestImage(4000, 3000, color.Gray{128})
	data := encodeJPEG(img)

	b.ResetTimer()
	for range b.N {
		ResizeImage(data, 1920)
	}
}
