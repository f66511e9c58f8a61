package thumbnail

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
)

func solidImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{200, 100, 50, 255})
		}
	}
	return img
}

func TestPathIsContentAddressed(t *testing.T) {
	c := New(t.TempDir(), 256)
	hash := "abcdef0123456789abcdef0123456789abcdef0123456789abcdef01234567"
	got := c.Path(hash)
	want := filepath.Join(c.Root, "ab", hash+".jpg")
	if got != want {
		t.Errorf("Path(%s) = %s, want %s", hash, got, want)
	}
}

func TestPutThenHas(t *testing.T) {
	c := New(t.TempDir(), 128)
	hash := "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"

	if c.Has(hash) {
		t.Fatal("Has should be false before Put")
	}
	if err := c.Put(hash, solidImage(400, 200)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !c.Has(hash) {
		t.Fatal("Has should be true after Put")
	}
	if _, err := os.Stat(c.Path(hash)); err != nil {
		t.Fatalf("thumbnail file missing: %v", err)
	}
}

func TestPutDedupesIdenticalContent(t *testing.T) {
	c := New(t.TempDir(), 128)
	hash := "cafebabecafebabecafebabecafebabecafebabecafebabecafebabecafebab"

	if err := c.Put(hash, solidImage(300, 300)); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	info1, err := os.Stat(c.Path(hash))
	if err != nil {
		t.Fatal(err)
	}

	// A second Put for the same hash is a no-op even with different
	// pixel content, because the cache key is the content hash, not
	// the pixels handed to Put.
	if err := c.Put(hash, solidImage(999, 999)); err != nil {
		t.Fatalf("second Put: %v", err)
	}
	info2, err := os.Stat(c.Path(hash))
	if err != nil {
		t.Fatal(err)
	}
	if info1.ModTime() != info2.ModTime() || info1.Size() != info2.Size() {
		t.Error("second Put should not have rewritten the thumbnail")
	}
}

func TestScaleToFitPreservesAspectRatio(t *testing.T) {
	scaled := scaleToFit(solidImage(800, 400), 200)
	if scaled.Bounds().Dx() != 200 {
		t.Errorf("width = %d, want 200", scaled.Bounds().Dx())
	}
	if scaled.Bounds().Dy() != 100 {
		t.Errorf("height = %d, want 100", scaled.Bounds().Dy())
	}
}
