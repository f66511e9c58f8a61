// Package scanner implements the ingestion pipeline: recursive
// filesystem walk, per-file classify/extract/hash/thumbnail, and a
// single serialised writer applying results to the Store. Per-file
// work is parallelised across a worker pool sized to available CPUs;
// store writes are serialised through a bounded channel so the pool
// never contends on the store's single-writer discipline.
package scanner

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clepho/clepho/internal/hasher"
	"github.com/clepho/clepho/internal/metadata"
	"github.com/clepho/clepho/internal/photo"
	"github.com/clepho/clepho/internal/store"
	"github.com/clepho/clepho/internal/thumbnail"
)

// Outcome classifies what happened to a single file.
type Outcome string

const (
	OutcomeNew       Outcome = "new"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeFailed    Outcome = "failed"
)

// Event is one entry in the finite progress sequence:
// {Started}, {File}*, {Completed} or {Cancelled}.
type Event struct {
	Kind      string // "started", "file", "completed", "cancelled"
	Total     int    // set on "started"
	Path      string // set on "file"
	Outcome   Outcome
	FailKind  string // set when Outcome == OutcomeFailed
	Counts    Counts // set on "completed"/"cancelled"
}

// Counts tallies terminal outcomes across a scan.
type Counts struct {
	New       int
	Updated   int
	Unchanged int
	Failed    int
}

// Options configures a scan.
type Options struct {
	ImageExtensions   map[string]bool // lowercase, with leading dot, e.g. ".jpg"
	IncludeDotfiles   bool
	Concurrency       int // 0 = runtime.NumCPU()
	Thumbnails        *thumbnail.Cache
	FallbackToModTime bool // TakenAt fallback to file mtime when EXIF has none
}

// Scanner drives scan() against a Store.
type Scanner struct {
	store store.Store
	opts  Options
}

func New(s store.Store, opts Options) *Scanner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	return &Scanner{store: s, opts: opts}
}

// fileTask is discovered by the walker and handed to a worker.
type fileTask struct {
	path string
	info os.FileInfo
}

// writeRecord is what a worker hands to the single writer goroutine.
type writeRecord struct {
	photo   *photo.Photo
	image   image.Image // decoded pixels, for thumbnail generation; nil on skip
	outcome Outcome
	err     error
	path    string
}

// Scan walks root, classifies entries, and processes images through
// the pipeline, emitting events on the returned channel. The channel
// is closed once the terminal Completed/Cancelled event has been
// sent. The whole tree is discovered before processing starts;
// cancelling ctx stops further discovered files from being handed to
// the workers, and in-flight files finish before the pipeline halts.
func (s *Scanner) Scan(ctx context.Context, root string) <-chan Event {
	events := make(chan Event, 64)

	go func() {
		defer close(events)

		files, err := s.discover(root)
		if err != nil {
			events <- Event{Kind: "started", Total: 0}
			events <- Event{Kind: "cancelled", Counts: Counts{}}
			return
		}
		events <- Event{Kind: "started", Total: len(files)}

		var counts Counts
		var cancelled atomic.Bool

		tasks := make(chan fileTask)
		writes := make(chan writeRecord, s.opts.Concurrency*2)

		var workers sync.WaitGroup
		for i := 0; i < s.opts.Concurrency; i++ {
			workers.Add(1)
			go func() {
				defer workers.Done()
				for t := range tasks {
					writes <- s.processFile(ctx, t)
				}
			}()
		}

		var writerWG sync.WaitGroup
		writerWG.Add(1)
		go func() {
			defer writerWG.Done()
			for rec := range writes {
				s.applyWrite(ctx, rec, &counts, events)
			}
		}()

		go func() {
			defer close(tasks)
			for _, f := range files {
				if ctx.Err() != nil {
					cancelled.Store(true)
					return
				}
				tasks <- f
			}
		}()

		workers.Wait()
		close(writes)
		writerWG.Wait()

		if cancelled.Load() || ctx.Err() != nil {
			events <- Event{Kind: "cancelled", Counts: counts}
		} else {
			events <- Event{Kind: "completed", Counts: counts}
		}
	}()

	return events
}

func (s *Scanner) discover(root string) ([]fileTask, error) {
	var files []fileTask
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // permission errors etc: skip the entry, keep walking
		}
		if info.IsDir() {
			return nil
		}
		name := info.Name()
		if !s.opts.IncludeDotfiles && strings.HasPrefix(name, ".") {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(name))
		if !s.opts.ImageExtensions[ext] {
			return nil
		}
		files = append(files, fileTask{path: path, info: info})
		return nil
	})
	return files, err
}

// processFile runs steps 1-6 of the pipeline for one file: mtime/size
// check against the existing row (a read, not a write — safe to run
// concurrently across workers), hashing, header decode + EXIF,
// perceptual hash. Thumbnail generation and the Upsert are left to the
// single writer (applyWrite).
func (s *Scanner) processFile(ctx context.Context, t fileTask) writeRecord {
	existing, err := s.store.GetPhotoByPath(ctx, t.path)
	if err != nil {
		return writeRecord{path: t.path, outcome: OutcomeFailed, err: fmt.Errorf("store: %w", err)}
	}
	if existing != nil && existing.SizeBytes == t.info.Size() && existing.ModifiedAt.Equal(t.info.ModTime()) {
		return writeRecord{path: t.path, outcome: OutcomeUnchanged}
	}

	md5Hex, sha256Hex, err := hasher.FileDigests(t.path)
	if err != nil {
		return writeRecord{path: t.path, outcome: OutcomeFailed, err: fmt.Errorf("hash: %w", err)}
	}

	meta, err := metadata.Extract(t.path)
	if err != nil {
		return writeRecord{path: t.path, outcome: OutcomeFailed, err: fmt.Errorf("metadata: %w", err)}
	}

	f, err := os.Open(t.path)
	if err != nil {
		return writeRecord{path: t.path, outcome: OutcomeFailed, err: fmt.Errorf("open: %w", err)}
	}
	img, _, decodeErr := image.Decode(f)
	f.Close()

	var pHash uint64
	if decodeErr == nil {
		pHash = hasher.PerceptualHash(img)
	}
	// A pixel-decode failure (truncated/corrupt image beyond header)
	// still yields a usable row: hashes and EXIF stand, phash is empty.

	p := &photo.Photo{
		Path:       t.path,
		Filename:   filepath.Base(t.path),
		Directory:  filepath.Dir(t.path),
		SizeBytes:  t.info.Size(),
		ModifiedAt: t.info.ModTime(),
		ScannedAt:  time.Now().UTC(),
		Width:      meta.Width,
		Height:     meta.Height,
		Format:     meta.Format,
		Exif:       meta.Exif,
		RawExif:    meta.RawExif,
		MD5:        md5Hex,
		SHA256:     sha256Hex,
	}
	if pHash != 0 {
		p.PHash = hasher.HashHex(pHash)
	}
	if p.Exif.TakenAt == nil {
		p.Exif.TakenAt = metadata.TakenAtOrModTime(p.Exif, p.ModifiedAt, s.opts.FallbackToModTime)
	}

	outcome := OutcomeNew
	if existing != nil {
		outcome = OutcomeUpdated
		p.ID = existing.ID
		p.Description = existing.Description
	}

	return writeRecord{photo: p, image: img, outcome: outcome, path: t.path}
}

// applyWrite is the single serialised writer: it generates the
// thumbnail and upserts the row, then emits the per-file event.
// Running this exclusively on one goroutine is what makes Store
// writes single-writer even though reads happen concurrently in
// processFile.
func (s *Scanner) applyWrite(ctx context.Context, rec writeRecord, counts *Counts, events chan<- Event) {
	if rec.err != nil {
		counts.Failed++
		events <- Event{Kind: "file", Path: rec.path, Outcome: OutcomeFailed, FailKind: rec.err.Error()}
		return
	}
	if rec.outcome == OutcomeUnchanged {
		counts.Unchanged++
		events <- Event{Kind: "file", Path: rec.path, Outcome: OutcomeUnchanged}
		return
	}

	if s.opts.Thumbnails != nil && rec.image != nil {
		if err := s.opts.Thumbnails.Put(rec.photo.SHA256, rec.image); err != nil {
			// Thumbnail failures don't abort the scan; the row still lands.
			events <- Event{Kind: "file", Path: rec.path, Outcome: OutcomeFailed, FailKind: "thumbnail: " + err.Error()}
		}
	}

	if _, err := s.store.UpsertPhoto(ctx, rec.photo); err != nil {
		counts.Failed++
		events <- Event{Kind: "file", Path: rec.path, Outcome: OutcomeFailed, FailKind: "store: " + err.Error()}
		return
	}

	if rec.outcome == OutcomeNew {
		counts.New++
	} else {
		counts.Updated++
	}
	events <- Event{Kind: "file", Path: rec.path, Outcome: rec.outcome}
}
