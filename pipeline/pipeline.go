// Package pipeline drives one upload session: receive, validate, hand off to OCR,
// and report every step as a ProcessingEvent.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/moyoez/bill2sheet/api/notifyhub"
	"github.com/moyoez/bill2sheet/tool"
	"github.com/moyoez/bill2sheet/types"
	"github.com/moyoez/bill2sheet/validator"
)

var (
	// ErrClientDisconnected is the cancel cause used when the stream consumer goes away.
	ErrClientDisconnected = errors.New("client disconnected")
	// ErrCancelled is the cancel cause used for an explicit cancel request.
	ErrCancelled = errors.New("session cancelled")
	// ErrSessionTimeout is the cause recorded when the session runs out of time.
	ErrSessionTimeout = errors.New("processing timeout exceeded")
)

// DispatchResult is what a Dispatcher did with a validated file.
type DispatchResult struct {
	Queued bool // handed to a background queue, no extraction event follows
	Bills  int
}

// Dispatcher receives every file that passed validation.
type Dispatcher interface {
	Dispatch(ctx context.Context, sessionId string, file *types.FileUnit) (DispatchResult, error)
}

// Options configures a session run.
type Options struct {
	Limits         validator.Limits
	Timeout        time.Duration // zero means no session deadline
	BufferCapacity int
	Dispatcher     Dispatcher // nil means validation only
}

// Task is a running upload session. The primary subscription is taken before the
// pipeline goroutine starts, so Events sees every event including upload_started.
type Task struct {
	id     string
	hub    *notifyhub.Hub
	events <-chan types.ProcessingEvent
	unsub  func()
	cancel context.CancelCauseFunc
	done   chan struct{}

	mu      sync.RWMutex
	session types.UploadSession
}

// Start launches the pipeline for src in its own goroutine.
func Start(parent context.Context, sessionId string, src Source, opts Options) *Task {
	hub := notifyhub.New(opts.BufferCapacity)
	events, unsub := hub.Subscribe()
	base, cancel := context.WithCancelCause(parent)

	t := &Task{
		id:     sessionId,
		hub:    hub,
		events: events,
		unsub:  unsub,
		cancel: cancel,
		done:   make(chan struct{}),
		session: types.UploadSession{
			SessionId:  sessionId,
			TotalFiles: src.Len(),
			StartedAt:  time.Now().UTC(),
			Status:     types.SessionProcessing,
		},
	}
	go func() {
		defer close(t.done)
		defer hub.Close()
		defer cancel(nil)
		r := &runner{task: t, base: base, src: src, opts: opts, pub: hub}
		r.run()
	}()
	return t
}

func (t *Task) ID() string { return t.id }

// Events is the primary subscription. It is closed when the session ends.
func (t *Task) Events() <-chan types.ProcessingEvent { return t.events }

// Hub gives access to the session fan-out for additional subscribers.
func (t *Task) Hub() *notifyhub.Hub { return t.hub }

// Detach drops the primary subscription, e.g. when its consumer went away.
func (t *Task) Detach() { t.unsub() }

// Cancel stops the session. No further events are emitted.
func (t *Task) Cancel(cause error) {
	if cause == nil {
		cause = ErrCancelled
	}
	t.cancel(cause)
}

// Done is closed once the pipeline goroutine has returned.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the session ends and returns its final snapshot.
func (t *Task) Wait() types.UploadSession {
	<-t.done
	return t.Snapshot()
}

// Snapshot returns the current session state.
func (t *Task) Snapshot() types.UploadSession {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.session
	s.FailedFiles = append([]int(nil), t.session.FailedFiles...)
	return s
}

func (t *Task) update(fn func(s *types.UploadSession)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.session)
}

func (t *Task) finish(status types.SessionStatus) {
	t.update(func(s *types.UploadSession) {
		now := time.Now().UTC()
		s.Status = status
		s.FinishedAt = &now
	})
}

type publisher interface {
	Publish(types.ProcessingEvent)
}

type runner struct {
	task *Task
	base context.Context // cancelled on disconnect or explicit cancel
	ctx  context.Context // base plus the session deadline
	src  Source
	opts Options
	pub  publisher

	started   time.Time
	received  int
	succeeded int
	failed    int
}

func (r *runner) meta() types.EventMeta {
	return types.NewMeta(r.task.id)
}

// emit publishes ev unless the consumer is gone.
func (r *runner) emit(ev types.ProcessingEvent) bool {
	if r.base.Err() != nil {
		return false
	}
	r.pub.Publish(ev)
	return true
}

// interrupted reports whether the run must stop, emitting the timeout failure if that is why.
func (r *runner) interrupted() bool {
	if r.base.Err() != nil {
		r.cancelled()
		return true
	}
	if r.ctx.Err() != nil {
		r.fail(types.KindTimeout, ErrSessionTimeout.Error())
		return true
	}
	return false
}

func (r *runner) cancelled() {
	cause := context.Cause(r.base)
	tool.DefaultLogger.Warnf("[Pipeline] Session %s cancelled after %d files: %v", r.task.id, r.received, cause)
	r.task.finish(types.SessionCancelled)
}

func (r *runner) fail(kind types.ErrorKind, msg string) {
	tool.DefaultLogger.Errorf("[Pipeline] Session %s failed (%s): %s", r.task.id, kind, msg)
	if r.emit(types.ProcessingFailed{EventMeta: r.meta(), Message: msg, ErrorKind: kind}) {
		r.task.finish(types.SessionFailed)
		return
	}
	r.task.finish(types.SessionCancelled)
}

func (r *runner) run() {
	defer r.src.Close()

	r.ctx = r.base
	if r.opts.Timeout > 0 {
		var stop context.CancelFunc
		r.ctx, stop = context.WithTimeoutCause(r.base, r.opts.Timeout, ErrSessionTimeout)
		defer stop()
	}

	r.started = time.Now()
	total := r.src.Len()
	tool.DefaultLogger.Infof("[Pipeline] Session %s started with %d files", r.task.id, total)
	if !r.emit(types.UploadStarted{EventMeta: r.meta(), TotalFiles: total}) {
		r.cancelled()
		return
	}

	for {
		if r.interrupted() {
			return
		}
		unit, err := r.src.Next(r.ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if r.interrupted() {
				return
			}
			kind := types.KindInternalError
			if errors.Is(err, ErrMalformed) {
				kind = types.KindMultipartParsingError
			}
			r.fail(kind, err.Error())
			return
		}
		if !r.process(unit) {
			return
		}
	}

	if r.received != total {
		r.fail(types.KindInternalError, fmt.Sprintf("expected %d files, received %d", total, r.received))
		return
	}
	if r.interrupted() {
		return
	}
	if !r.emit(types.BatchValidated{
		EventMeta:      r.meta(),
		TotalProcessed: r.received,
		SuccessCount:   r.succeeded,
		FailureCount:   r.failed,
	}) {
		r.cancelled()
		return
	}
	if !r.emit(types.ProcessingCompleted{
		EventMeta:    r.meta(),
		TotalFiles:   total,
		SuccessCount: r.succeeded,
		DurationMs:   time.Since(r.started).Milliseconds(),
	}) {
		r.cancelled()
		return
	}
	r.task.finish(types.SessionCompleted)
	tool.DefaultLogger.Infof("[Pipeline] Session %s completed: %d ok, %d failed", r.task.id, r.succeeded, r.failed)
}

// process runs one file through receive, validate and dispatch. It returns false when
// the session must stop.
func (r *runner) process(unit *types.FileUnit) bool {
	defer unit.Release()

	unit.Index = r.received
	r.received++
	if !r.emit(types.FileReceived{EventMeta: r.meta(), FileIndex: unit.Index, FileName: unit.Name, SizeBytes: unit.SizeBytes}) {
		r.cancelled()
		return false
	}
	if !r.emit(types.FileValidationStarted{EventMeta: r.meta(), FileIndex: unit.Index, FileName: unit.Name}) {
		r.cancelled()
		return false
	}

	info, verr := validator.ValidateMeasured(unit.Content, unit.SizeBytes, unit.Name, unit.Declared, unit.Index, r.opts.Limits)
	if verr != nil {
		unit.Rejection = verr
		r.failed++
		r.task.update(func(s *types.UploadSession) {
			s.FailureCount++
			s.FailedFiles = append(s.FailedFiles, unit.Index)
		})
		tool.DefaultLogger.Debugf("[Pipeline] Session %s file %d rejected: %s", r.task.id, unit.Index, verr.Message())
		if !r.emit(types.FileValidationFailed{
			EventMeta: r.meta(),
			FileIndex: unit.Index,
			FileName:  unit.Name,
			Message:   verr.Message(),
			ErrorCode: *verr,
		}) {
			r.cancelled()
			return false
		}
		return true
	}

	unit.Info = &info
	r.succeeded++
	r.task.update(func(s *types.UploadSession) { s.SuccessCount++ })
	if !r.emit(types.FileValidationSucceeded{EventMeta: r.meta(), FileIndex: unit.Index, FileInfo: info}) {
		r.cancelled()
		return false
	}

	if r.opts.Dispatcher == nil {
		return true
	}
	res, err := r.dispatch(unit)
	if err != nil {
		if r.ctx.Err() != nil {
			// the deadline or a disconnect interrupted extraction
			r.interrupted()
			return false
		}
		var fault *dispatchPanic
		if errors.As(err, &fault) {
			r.fail(types.KindInternalError, fault.Error())
			return false
		}
		tool.DefaultLogger.Warnf("[Pipeline] Session %s file %d extraction failed: %v", r.task.id, unit.Index, err)
		if !r.emit(types.FileExtractionFailed{EventMeta: r.meta(), FileIndex: unit.Index, Message: err.Error()}) {
			r.cancelled()
			return false
		}
		return true
	}
	if res.Queued {
		return true
	}
	if !r.emit(types.FileExtracted{EventMeta: r.meta(), FileIndex: unit.Index, BillCount: res.Bills}) {
		r.cancelled()
		return false
	}
	return true
}

type dispatchPanic struct {
	value any
}

func (p *dispatchPanic) Error() string {
	return fmt.Sprintf("dispatcher panic: %v", p.value)
}

func (r *runner) dispatch(unit *types.FileUnit) (res DispatchResult, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &dispatchPanic{value: v}
		}
	}()
	return r.opts.Dispatcher.Dispatch(r.ctx, r.task.id, unit)
}
