// Package photo holds the domain types shared by every component that
// reads or writes the collection: Store, Scanner, DuplicateEngine,
// TrashManager, Scheduler, and the AI/face pipelines. None of these
// types know which backend persists them.
package photo

import "time"

// Photo is the central entity. Identity is the integer ID; the natural
// key is Path, which must be unique among active (non-trashed) rows.
type Photo struct {
	ID          int64
	Path        string
	Filename    string
	Directory   string
	SizeBytes   int64
	ModifiedAt  time.Time
	ScannedAt   time.Time
	Width       int
	Height      int
	Format      string
	Exif        Exif
	RawExif     []byte
	MD5         string
	SHA256      string
	PHash       string // hex(16), 64-bit
	Description string

	MarkedForDeletion bool
	IsFavorite        bool

	// Trash tracking. OriginalPath and TrashedAt are both set or both
	// unset; when set, Path points into the trash root.
	OriginalPath string
	TrashedAt    *time.Time
}

// Trashed reports whether this photo currently lives under the trash root.
func (p *Photo) Trashed() bool {
	return p.TrashedAt != nil
}

// Exif is the structured subset of EXIF tags the pipeline cares about.
// Any field may be zero-valued when the source tag was absent or
// malformed; MetadataExtractor never fails the scan over a bad tag.
type Exif struct {
	CameraMake    string
	CameraModel   string
	Lens          string
	FocalLength   float64
	Aperture      float64
	ShutterSpeed  string
	ISO           int
	TakenAt       *time.Time
	GPSLatitude   *float64
	GPSLongitude  *float64
}

// Embedding is the 1:1 text/vision embedding attached to a Photo by the
// LLM pipeline. It cascades on Photo delete.
type Embedding struct {
	PhotoID   int64
	Vector    []float32
	ModelName string
}

// Face is one detected face within a Photo. PersonID is nullable and set
// to nil on person delete (ON DELETE SET NULL), breaking the Photo <->
// Face <-> Person cycle.
type Face struct {
	ID         int64
	PhotoID    int64
	BBoxX      float64
	BBoxY      float64
	BBoxW      float64
	BBoxH      float64
	Embedding  []float32 // 512-dim
	PersonID   *int64
	Confidence float64
}

// Person is a named identity a user has attached to one or more Faces.
type Person struct {
	ID   int64
	Name string
}

// FaceCluster groups Faces produced by a clustering pass, presented to
// the UI as an unnamed grouping candidate.
type FaceCluster struct {
	ID        int64
	FaceIDs   []int64
}

// FaceScan records that face detection has been attempted for a photo,
// preventing redundant detection even when zero faces were found.
type FaceScan struct {
	PhotoID   int64
	FaceCount int
	ScannedAt time.Time
}

// SimilarityKind distinguishes exact (SHA-256 equality) groups from
// perceptual (Hamming-radius graph) groups.
type SimilarityKind string

const (
	SimilarityExact      SimilarityKind = "exact"
	SimilarityPerceptual SimilarityKind = "perceptual"
)

// SimilarityGroup is a transient grouping produced by DuplicateEngine;
// it may be regenerated on demand and is not itself a durable entity in
// the sense a Photo or Person is.
type SimilarityGroup struct {
	ID       int64
	Kind     SimilarityKind
	PhotoIDs []int64
}

// TaskKind is a tagged sum of the operations a ScheduledTask can run;
// TaskExecutor dispatches on this field with a single switch rather than
// an abstract Task hierarchy.
type TaskKind string

const (
	TaskScan          TaskKind = "scan"
	TaskLlmBatch      TaskKind = "llm_batch"
	TaskFaceDetection TaskKind = "face_detection"
)

// TaskStatus is a node in the state machine described in the scheduler.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskCancelled TaskStatus = "cancelled"
	TaskFailed    TaskStatus = "failed"
)

// ScheduledTask is a durable unit of work claimed at most once by
// exactly one of the two cooperating processes.
type ScheduledTask struct {
	ID           int64
	Kind         TaskKind
	TargetPath   string
	PhotoIDs     []int64 // optional subset, nil means "all eligible under TargetPath"
	ScheduledAt  time.Time
	HoursStart   *int // 0-23, both set or both unset with HoursEnd
	HoursEnd     *int
	Status       TaskStatus
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage string
}

// DirectoryPrompt customises the LLM prompt used for photos under a
// given directory.
type DirectoryPrompt struct {
	Directory string
	Prompt    string
}

// Filter narrows PhotosWithPerceptualHash / photo listings. It lives
// alongside the domain types (rather than in package store) so both
// store and its backend subpackages can reference it without a cycle.
type Filter struct {
	Directory     string // exact directory match; empty means all
	ActiveOnly    bool   // exclude trashed rows
	WithPHashOnly bool   // only rows with a non-empty perceptual hash
}

// PerceptualCandidate is one row streamed for duplicate-detection input.
type PerceptualCandidate struct {
	ID        int64
	PHash     string
	Width     int
	Height    int
	SizeBytes int64
	Path      string
}
