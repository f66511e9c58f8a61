// Package executor implements the scheduler.Runner that turns a
// claimed ScheduledTask into real work: a directory scan, an LLM
// description/embedding pass, or a face-detection pass. It also holds
// the RunningTasks registry the UI polls for progress and cancellation.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/clepho/clepho/internal/ai"
	"github.com/clepho/clepho/internal/face"
	"github.com/clepho/clepho/internal/photo"
	"github.com/clepho/clepho/internal/scanner"
	"github.com/clepho/clepho/internal/store"
)

const defaultDescriptionPrompt = "Describe this photo in one or two sentences, then on a final line write \"TAGS: \" followed by three to six comma-separated keywords."

// maxConsecutiveFailures bounds how many per-photo failures in a row a
// batch tolerates before giving up on the assumption the external
// provider (vision API, face detector) is down rather than individual
// photos being bad.
const maxConsecutiveFailures = 3

// Executor dispatches a claimed task to the right component. It
// implements scheduler.Runner.
type Executor struct {
	store    store.Store
	scanner  *scanner.Scanner
	vision   ai.VisionClient    // nil disables TaskLlmBatch description generation
	embedder ai.EmbeddingClient // nil disables embedding generation
	detector *face.Pipeline     // nil disables TaskFaceDetection
	running  *RunningTasks
}

func New(s store.Store, sc *scanner.Scanner, vision ai.VisionClient, embedder ai.EmbeddingClient, detector *face.Pipeline) *Executor {
	return &Executor{
		store:    s,
		scanner:  sc,
		vision:   vision,
		embedder: embedder,
		detector: detector,
		running:  NewRunningTasks(),
	}
}

// Running exposes the registry for the UI to poll.
func (e *Executor) Running() *RunningTasks { return e.running }

// Run executes task to completion or cancellation and reports the
// terminal status back to Store. It never returns an error to the
// caller (Scheduler.Runner has no error channel); failures are
// recorded on the task row itself.
func (e *Executor) Run(ctx context.Context, task *photo.ScheduledTask) {
	taskCtx, cancel := context.WithCancel(ctx)
	handle := e.running.register(task)
	handle.setCancel(cancel)
	defer e.running.unregister(task.ID)

	var msg string
	var err error
	switch task.Kind {
	case photo.TaskScan:
		err = e.runScan(taskCtx, task, handle)
	case photo.TaskLlmBatch:
		msg, err = e.runLLMBatch(taskCtx, task, handle)
	case photo.TaskFaceDetection:
		msg, err = e.runFaceDetection(taskCtx, task, handle)
	default:
		err = fmt.Errorf("executor: unknown task kind %q", task.Kind)
	}

	status := photo.TaskCompleted
	if err != nil {
		msg = ""
		if errors.Is(err, context.Canceled) {
			status = photo.TaskCancelled
		} else {
			status = photo.TaskFailed
			msg = err.Error()
		}
	}
	// Task completion outlives a caller-cancelled ctx (the poll loop's
	// context may already be tearing down), so status is always
	// written against a fresh background context.
	_ = e.store.SetTaskStatus(context.Background(), task.ID, status, msg)
}

func (e *Executor) runScan(ctx context.Context, task *photo.ScheduledTask, handle *taskHandle) error {
	if e.scanner == nil {
		return errors.New("executor: no scanner configured")
	}
	for ev := range e.scanner.Scan(ctx, task.TargetPath) {
		switch ev.Kind {
		case "started":
			handle.setTotal(ev.Total)
		case "file":
			handle.incProcessed()
		case "cancelled":
			return context.Canceled
		}
	}
	return nil
}

// resolvePhotos returns the concrete photo rows a batch task applies
// to: the explicit PhotoIDs subset if given, otherwise every photo
// under TargetPath.
func (e *Executor) resolvePhotos(ctx context.Context, task *photo.ScheduledTask) ([]*photo.Photo, error) {
	if len(task.PhotoIDs) > 0 {
		out := make([]*photo.Photo, 0, len(task.PhotoIDs))
		for _, id := range task.PhotoIDs {
			p, err := e.store.GetPhotoByID(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("get photo %d: %w", id, err)
			}
			if p != nil {
				out = append(out, p)
			}
		}
		return out, nil
	}
	return e.store.ListPhotosByDirectory(ctx, task.TargetPath)
}

// runLLMBatch describes and embeds every pending photo. A single
// photo's vision/embedding failure is not fatal to the batch — it is
// counted and skipped so one bad photo or a transient provider hiccup
// doesn't sink everything already queued behind it. Only a run of
// maxConsecutiveFailures in a row, the signature of the provider being
// down rather than a handful of bad photos, aborts the task.
func (e *Executor) runLLMBatch(ctx context.Context, task *photo.ScheduledTask, handle *taskHandle) (string, error) {
	if e.vision == nil {
		return "", errors.New("executor: no vision client configured")
	}
	photos, err := e.resolvePhotos(ctx, task)
	if err != nil {
		return "", err
	}
	pending := make([]*photo.Photo, 0, len(photos))
	for _, p := range photos {
		if p.Description == "" {
			pending = append(pending, p)
		}
	}
	handle.setTotal(len(pending))

	prompt, err := e.store.GetDirectoryPrompt(ctx, task.TargetPath)
	if err != nil {
		return "", fmt.Errorf("get directory prompt: %w", err)
	}
	if prompt == "" {
		prompt = defaultDescriptionPrompt
	}

	var processed, failed, consecutive int
	for _, p := range pending {
		if ctx.Err() != nil {
			return "", context.Canceled
		}
		if err := e.describeOne(ctx, p, prompt); err != nil {
			failed++
			consecutive++
			fmt.Fprintf(os.Stderr, "executor: describe %s: %v\n", p.Path, err)
			if consecutive >= maxConsecutiveFailures {
				return "", fmt.Errorf("aborting after %d consecutive vision provider failures (%d processed, %d failed): %w", consecutive, processed, failed, err)
			}
			handle.incProcessed()
			continue
		}
		processed++
		consecutive = 0
		handle.incProcessed()
	}
	if failed > 0 {
		return fmt.Sprintf("%d processed, %d failed", processed, failed), nil
	}
	return "", nil
}

func (e *Executor) describeOne(ctx context.Context, p *photo.Photo, prompt string) error {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return err
	}
	description, tags, err := e.vision.Describe(ctx, data, prompt)
	if err != nil {
		return err
	}
	if len(tags) > 0 {
		description = description + "\n\nTags: " + joinTags(tags)
	}
	if err := e.store.UpdateDescription(ctx, p.ID, description); err != nil {
		return err
	}
	if e.embedder == nil {
		return nil
	}
	vector, modelName, err := e.embedder.Embed(ctx, description)
	if err != nil {
		return err
	}
	return e.store.PutEmbedding(ctx, &photo.Embedding{PhotoID: p.ID, Vector: vector, ModelName: modelName})
}

// runFaceDetection detects faces in every pending photo. A detector
// failure on one photo still marks that photo scanned (with zero
// faces) so it isn't retried every run, then moves on to the next
// photo rather than failing the whole batch — mirroring runLLMBatch's
// tolerance for per-photo external-provider errors. Only a run of
// maxConsecutiveFailures in a row aborts the task.
func (e *Executor) runFaceDetection(ctx context.Context, task *photo.ScheduledTask, handle *taskHandle) (string, error) {
	if e.detector == nil {
		return "", errors.New("executor: no face detector configured")
	}
	if err := e.detector.RebuildIndex(ctx); err != nil {
		return "", fmt.Errorf("rebuild face index: %w", err)
	}
	photos, err := e.resolvePhotos(ctx, task)
	if err != nil {
		return "", err
	}
	pending := make([]*photo.Photo, 0, len(photos))
	for _, p := range photos {
		scanned, err := e.store.IsScanned(ctx, p.ID)
		if err != nil {
			return "", fmt.Errorf("is scanned %d: %w", p.ID, err)
		}
		if !scanned {
			pending = append(pending, p)
		}
	}
	handle.setTotal(len(pending))

	var processed, failed, consecutive int
	for _, p := range pending {
		if ctx.Err() != nil {
			return "", context.Canceled
		}
		count, err := e.detector.ProcessPhoto(ctx, p)
		if err != nil {
			_ = e.store.MarkScanned(ctx, p.ID, 0)
			failed++
			consecutive++
			fmt.Fprintf(os.Stderr, "executor: detect faces %s: %v\n", p.Path, err)
			if consecutive >= maxConsecutiveFailures {
				return "", fmt.Errorf("aborting after %d consecutive face detector failures (%d processed, %d failed): %w", consecutive, processed, failed, err)
			}
			handle.incProcessed()
			continue
		}
		if err := e.store.MarkScanned(ctx, p.ID, count); err != nil {
			return "", fmt.Errorf("mark scanned %d: %w", p.ID, err)
		}
		processed++
		consecutive = 0
		handle.incProcessed()
	}
	if err := e.detector.RebuildClusters(ctx); err != nil {
		return "", fmt.Errorf("rebuild face clusters: %w", err)
	}
	if failed > 0 {
		return fmt.Sprintf("%d processed, %d failed", processed, failed), nil
	}
	return "", nil
}

func joinTags(tags []string) string {
	out := ""
	for i, t := range tags {
		if i > 0 {
			out += ", "
		}
		out += t
	}
	return out
}
