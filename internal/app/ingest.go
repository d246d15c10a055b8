package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"studybuddy-client/internal/domain"
	"studybuddy-client/internal/logger"
)

// Uploader sends one document to the backend. onProgress receives the
// fraction of bytes sent so far and may be called from the transport goroutine.
type Uploader interface {
	Upload(ctx context.Context, file domain.UploadFile, onProgress func(fraction float64)) error
}

// Generator starts study material generation for everything uploaded so far.
type Generator interface {
	Generate(ctx context.Context) (GenerationStream, error)
}

// GenerationStream yields generation progress. Next returns io.EOF once the
// stream is exhausted. Streams are finite and cannot be restarted.
type GenerationStream interface {
	Next(ctx context.Context) (domain.GenerationEvent, error)
	Close() error
}

// IngestionStatus is a point-in-time view of the current batch.
type IngestionStatus struct {
	BatchID      string                 `json:"batchId,omitempty"`
	Phase        domain.IngestionPhase  `json:"phase"`
	FileIndex    int                    `json:"fileIndex"` // 1-based while uploading
	FileCount    int                    `json:"fileCount"`
	FileProgress float64                `json:"fileProgress"`
	Jobs         []domain.UploadJob     `json:"jobs"`
	Generation   domain.GenerationEvent `json:"generation"`
	Error        string                 `json:"error,omitempty"`
	StartedAt    time.Time              `json:"startedAt,omitempty"`
	FinishedAt   time.Time              `json:"finishedAt,omitempty"`
	Text         string                 `json:"text"`
}

// Elapsed returns how long the batch has been running, or ran, as of now.
func (s IngestionStatus) Elapsed(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if !s.FinishedAt.IsZero() {
		return s.FinishedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}

// StatusText renders the human readable line shown next to the progress bar.
func StatusText(s IngestionStatus) string {
	switch s.Phase {
	case domain.PhaseUploading:
		return fmt.Sprintf("Processing file %d/%d...", s.FileIndex, s.FileCount)
	case domain.PhaseGenerating:
		if s.Generation.Message != "" {
			return s.Generation.Message
		}
		return "Generating study materials..."
	case domain.PhaseDone:
		return "Complete!"
	case domain.PhaseFailed:
		return "Error: " + s.Error
	default:
		return "Ready"
	}
}

// Orchestrator runs an ingestion batch: sequential uploads, then one generation step.
type Orchestrator struct {
	uploader   Uploader
	generator  Generator
	extensions []string
	log        *logger.Logger
	now        func() time.Time

	mu          sync.RWMutex
	queue       []domain.UploadFile
	status      IngestionStatus
	running     bool
	subscribers map[chan IngestionStatus]struct{}
}

// NewOrchestrator wires the upload and generation collaborators. extensions
// lists accepted file suffixes (".pdf"); empty accepts anything.
func NewOrchestrator(uploader Uploader, generator Generator, extensions []string, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	o := &Orchestrator{
		uploader:    uploader,
		generator:   generator,
		extensions:  extensions,
		log:         log,
		now:         time.Now,
		subscribers: make(map[chan IngestionStatus]struct{}),
	}
	o.status = IngestionStatus{Phase: domain.PhaseIdle}
	o.status.Text = StatusText(o.status)
	return o
}

// Queue adds files to the pending batch. A finished batch is discarded first.
// If any file has an unsupported extension nothing is queued.
func (o *Orchestrator) Queue(files ...domain.UploadFile) error {
	for _, f := range files {
		if !o.accepts(f.Name) {
			return fmt.Errorf("%s: %w", f.Name, domain.ErrUnsupportedFile)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return domain.ErrBatchInProgress
	}
	if o.status.Phase.Terminal() {
		o.resetLocked()
	}
	o.queue = append(o.queue, files...)
	o.status.Jobs = jobsFor(o.queue)
	o.broadcastLocked()
	return nil
}

// Remove drops the queued file at index.
func (o *Orchestrator) Remove(index int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return domain.ErrBatchInProgress
	}
	if index < 0 || index >= len(o.queue) {
		return fmt.Errorf("remove file %d: index out of range", index)
	}
	o.queue = append(o.queue[:index:index], o.queue[index+1:]...)
	o.status.Jobs = jobsFor(o.queue)
	o.broadcastLocked()
	return nil
}

// Clear empties the queue.
func (o *Orchestrator) Clear() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return domain.ErrBatchInProgress
	}
	o.queue = nil
	o.status.Jobs = nil
	o.broadcastLocked()
	return nil
}

// Queued returns the names of the queued files.
func (o *Orchestrator) Queued() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	names := make([]string, 0, len(o.queue))
	for _, f := range o.queue {
		names = append(names, f.Name)
	}
	return names
}

// Status returns the current batch status.
func (o *Orchestrator) Status() IngestionStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snapshotLocked()
}

// Run processes the queued batch to completion and returns its terminal status.
// Uploads are not aborted mid-file; ctx is checked between files and while
// waiting for generation progress. Cancelling during generation fails the
// batch with ErrCancelled.
func (o *Orchestrator) Run(ctx context.Context) (IngestionStatus, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return IngestionStatus{}, domain.ErrBatchInProgress
	}
	if len(o.queue) == 0 {
		if o.status.Phase.Terminal() {
			o.resetLocked()
			o.broadcastLocked()
		}
		idle := o.snapshotLocked()
		o.mu.Unlock()
		return idle, domain.ErrNoFiles
	}
	batchID, err := gonanoid.New()
	if err != nil {
		o.mu.Unlock()
		return IngestionStatus{}, fmt.Errorf("batch id: %w", err)
	}
	files := append([]domain.UploadFile(nil), o.queue...)
	o.running = true
	o.status = IngestionStatus{
		BatchID:   batchID,
		Phase:     domain.PhaseUploading,
		FileCount: len(files),
		Jobs:      jobsFor(files),
		StartedAt: o.now(),
	}
	o.broadcastLocked()
	o.mu.Unlock()

	log := o.log.With("batch", batchID, "files", len(files))
	log.Info("ingestion started")

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return o.fail(log, fmt.Errorf("%w: %v", domain.ErrCancelled, err))
		}
		o.update(func(s *IngestionStatus) {
			s.FileIndex = i + 1
			s.FileProgress = 0
			s.Jobs[i].State = domain.UploadUploading
		})
		progress := func(fraction float64) {
			o.update(func(s *IngestionStatus) {
				if s.FileIndex == i+1 {
					s.FileProgress = fraction
				}
			})
		}
		if err := o.uploader.Upload(context.WithoutCancel(ctx), f, progress); err != nil {
			o.update(func(s *IngestionStatus) { s.Jobs[i].State = domain.UploadFailed })
			return o.fail(log, fmt.Errorf("upload %s: %w", f.Name, err))
		}
		o.update(func(s *IngestionStatus) {
			s.FileProgress = 1
			s.Jobs[i].State = domain.UploadUploaded
		})
		log.Debug("file uploaded", "file", f.Name, "index", i+1)
	}

	o.update(func(s *IngestionStatus) { s.Phase = domain.PhaseGenerating })
	if err := o.generate(ctx); err != nil {
		return o.fail(log, err)
	}

	o.mu.Lock()
	o.queue = nil
	o.running = false
	o.status.Phase = domain.PhaseDone
	o.status.FinishedAt = o.now()
	o.broadcastLocked()
	final := o.snapshotLocked()
	o.mu.Unlock()

	log.Info("ingestion complete", "elapsed", final.Elapsed(final.FinishedAt).String())
	return final, nil
}

// generate consumes the progress stream until a terminal event. A stream that
// ends without an error event counts as success.
func (o *Orchestrator) generate(ctx context.Context) error {
	stream, err := o.generator.Generate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err())
		}
		return fmt.Errorf("generate: %w", err)
	}
	defer stream.Close()

	for {
		ev, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err())
			}
			return fmt.Errorf("generate: %w", err)
		}
		o.update(func(s *IngestionStatus) { s.Generation = ev })
		if ev.Failed() {
			return domain.NewTransportError("generate", 0, errors.New(ev.Error))
		}
		if ev.Complete() {
			return nil
		}
	}
}

func (o *Orchestrator) fail(log *logger.Logger, err error) (IngestionStatus, error) {
	o.mu.Lock()
	o.queue = nil
	o.running = false
	o.status.Phase = domain.PhaseFailed
	o.status.Error = err.Error()
	o.status.FinishedAt = o.now()
	o.broadcastLocked()
	final := o.snapshotLocked()
	o.mu.Unlock()

	log.Warn("ingestion failed", "error", err)
	return final, err
}

// Subscribe returns a channel of status updates, starting with the current one.
// The caller must invoke the returned cancel function to avoid leaks.
func (o *Orchestrator) Subscribe() (<-chan IngestionStatus, func()) {
	ch := make(chan IngestionStatus, 16)

	o.mu.Lock()
	o.subscribers[ch] = struct{}{}
	ch <- o.snapshotLocked()
	o.mu.Unlock()

	cancel := func() {
		o.mu.Lock()
		if _, ok := o.subscribers[ch]; ok {
			delete(o.subscribers, ch)
			close(ch)
		}
		o.mu.Unlock()
	}
	return ch, cancel
}

func (o *Orchestrator) update(fn func(*IngestionStatus)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.status)
	o.broadcastLocked()
}

func (o *Orchestrator) resetLocked() {
	o.queue = nil
	o.status = IngestionStatus{Phase: domain.PhaseIdle}
}

func (o *Orchestrator) broadcastLocked() {
	snap := o.snapshotLocked()
	for ch := range o.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (o *Orchestrator) snapshotLocked() IngestionStatus {
	snap := o.status
	snap.Jobs = append([]domain.UploadJob(nil), o.status.Jobs...)
	snap.Text = StatusText(snap)
	return snap
}

func (o *Orchestrator) accepts(name string) bool {
	if len(o.extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range o.extensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

func jobsFor(files []domain.UploadFile) []domain.UploadJob {
	jobs := make([]domain.UploadJob, 0, len(files))
	for _, f := range files {
		jobs = append(jobs, domain.UploadJob{Name: f.Name, SizeBytes: int64(len(f.Data)), State: domain.UploadQueued})
	}
	return jobs
}
