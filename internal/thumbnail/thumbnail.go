// Package thumbnail implements the content-addressed ThumbnailCache:
// for a photo with sha256 h, the thumbnail lives at
// <root>/<h[0:2]>/<h>.jpg. Writes go to a temp file and rename
// atomically so concurrent generation of the same content is safe and
// readers never observe a partial file.
package thumbnail

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

const defaultQuality = 85

// Cache is a ThumbnailCache rooted at a directory.
type Cache struct {
	Root string
	Size int // edge length in pixels, default 256
}

// New returns a Cache rooted at root with the given default edge
// length (0 means 256).
func New(root string, size int) *Cache {
	if size <= 0 {
		size = 256
	}
	return &Cache{Root: root, Size: size}
}

// Path returns the on-disk location for a photo's sha256, without
// touching the filesystem.
func (c *Cache) Path(sha256Hex string) string {
	if len(sha256Hex) < 2 {
		return filepath.Join(c.Root, "_", sha256Hex+".jpg")
	}
	return filepath.Join(c.Root, sha256Hex[:2], sha256Hex+".jpg")
}

// Has reports whether a thumbnail already exists for sha256Hex.
func (c *Cache) Has(sha256Hex string) bool {
	_, err := os.Stat(c.Path(sha256Hex))
	return err == nil
}

// Put generates and stores a thumbnail for the given decoded image
// under sha256Hex, unless one already exists (dedup by construction:
// two files with identical content share a thumbnail; the second
// caller's write is a no-op).
func (c *Cache) Put(sha256Hex string, img image.Image) error {
	if c.Has(sha256Hex) {
		return nil
	}

	dest := c.Path(sha256Hex)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("thumbnail: create shard dir: %w", err)
	}

	scaled := scaleToFit(img, c.Size)

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".thumb-*.jpg")
	if err != nil {
		return fmt.Errorf("thumbnail: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := jpeg.Encode(tmp, scaled, &jpeg.Options{Quality: defaultQuality}); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("thumbnail: encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("thumbnail: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("thumbnail: rename into place: %w", err)
	}
	return nil
}

// PutFromFile decodes the file at srcPath and stores its thumbnail.
func (c *Cache) PutFromFile(sha256Hex, srcPath string) error {
	if c.Has(sha256Hex) {
		return nil
	}
	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("thumbnail: open source %s: %w", srcPath, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("thumbnail: decode source %s: %w", srcPath, err)
	}
	return c.Put(sha256Hex, img)
}

// scaleToFit resizes img so its longer edge equals size, preserving
// aspect ratio. Images smaller than size are scaled up to it rather
// than returned unscaled, keeping cache entries a predictable size on
// disk.
func scaleToFit(img image.Image, size int) *image.RGBA {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	var newWidth, newHeight int
	if width >= height {
		newWidth = size
		newHeight = int(float64(height) * float64(size) / float64(width))
	} else {
		newHeight = size
		newWidth = int(float64(width) * float64(size) / float64(height))
	}
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
