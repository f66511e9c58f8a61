// Package metadata implements the MetadataExtractor: image dimensions
// and format via the standard decoders, EXIF camera/lens/GPS/timestamp
// fields via a best-effort parse that never fails the pipeline.
package metadata

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"
	"time"

	"github.com/clepho/clepho/internal/photo"
	"github.com/cozy/goexif2/exif"
	_ "golang.org/x/image/bmp"
)

// Result is everything the Scanner needs to populate a photo.Photo row
// from a single file.
type Result struct {
	Width   int
	Height  int
	Format  string
	Exif    photo.Exif
	RawExif []byte
}

// Extract reads dimensions, format, and EXIF from the file at path.
// EXIF failures never propagate: a file with no EXIF segment, or one
// with malformed tags, still returns valid dimensions/format with a
// zero-value Exif and whatever raw bytes were read before decoding
// failed.
func Extract(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("metadata: open %s: %w", path, err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("metadata: decode header %s: %w", path, err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("metadata: seek %s: %w", path, err)
	}

	var raw bytes.Buffer
	ex, decodeErr := exif.Decode(io.TeeReader(f, &raw))

	result := &Result{
		Width:   cfg.Width,
		Height:  cfg.Height,
		Format:  format,
		RawExif: raw.Bytes(),
	}
	if decodeErr != nil || ex == nil {
		// No EXIF segment, or a critical decode error: dimensions and
		// format still stand, Exif stays zero-valued.
		return result, nil
	}

	result.Exif = extractFields(ex)
	return result, nil
}

func extractFields(ex *exif.Exif) photo.Exif {
	var e photo.Exif

	e.CameraMake = tagString(ex, exif.Make)
	e.CameraModel = tagString(ex, exif.Model)
	e.Lens = tagString(ex, exif.LensModel)
	e.ShutterSpeed = tagString(ex, exif.ExposureTime)
	e.FocalLength = tagRatFloat(ex, exif.FocalLength)
	e.Aperture = tagRatFloat(ex, exif.FNumber)
	e.ISO = tagInt(ex, exif.ISOSpeedRatings)

	if ts, err := ex.DateTime(); err == nil {
		t := ts
		e.TakenAt = &t
	}

	if lat, lng, err := ex.LatLong(); err == nil {
		e.GPSLatitude = &lat
		e.GPSLongitude = &lng
	}

	return e
}

// tagString reads a string-valued tag, returning "" on any error
// (missing tag, wrong type, malformed value) rather than failing.
func tagString(ex *exif.Exif, name exif.FieldName) string {
	tag, err := ex.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return s
}

func tagInt(ex *exif.Exif, name exif.FieldName) int {
	tag, err := ex.Get(name)
	if err != nil {
		return 0
	}
	v, err := tag.Int(0)
	if err != nil {
		return 0
	}
	return v
}

// tagRatFloat reads a rational-valued tag (focal length, f-number) as
// a float64, returning 0 on any error or non-finite result.
func tagRatFloat(ex *exif.Exif, name exif.FieldName) float64 {
	tag, err := ex.Get(name)
	if err != nil {
		return 0
	}
	r, err := tag.Rat(0)
	if err != nil {
		return 0
	}
	f, _ := r.Float64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// TakenAtOrModTime applies the config-gated fallback: TakenAt from
// DateTimeOriginal if present, otherwise the file's mtime only when
// the caller has opted in (not the default per the extractor's
// contract — most callers should treat a nil TakenAt as "unknown").
func TakenAtOrModTime(e photo.Exif, modTime time.Time, fallbackToModTime bool) *time.Time {
	if e.TakenAt != nil {
		return e.TakenAt
	}
	if !fallbackToModTime {
		return nil
	}
	t := modTime
	return &t
}
