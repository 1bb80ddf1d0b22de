package dispatch

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/moyoez/bill2sheet/ocr"
	"github.com/moyoez/bill2sheet/pipeline"
	"github.com/moyoez/bill2sheet/repository"
	"github.com/moyoez/bill2sheet/tool"
	"github.com/moyoez/bill2sheet/types"
)

// ErrQueueFull is returned when every worker is busy and the backlog is full.
var ErrQueueFull = errors.New("extraction queue full")

type job struct {
	sessionId string
	index     int
	image     []byte
	mimeType  string
}

// Pool extracts in background goroutines. The upload stream does not wait for OCR.
type Pool struct {
	extractor ocr.Extractor
	repo      repository.BillRepository
	queue     chan job
	workers   int
	group     *errgroup.Group
	// OnDone is called after each job, mostly for tests and metrics
	OnDone func(sessionId string, index int, bills int, err error)
}

var _ pipeline.Dispatcher = (*Pool)(nil)

// NewPool builds a pool whose backlog is tied to the worker count.
func NewPool(ex ocr.Extractor, repo repository.BillRepository, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		extractor: ex,
		repo:      repo,
		queue:     make(chan job, workers*4),
		workers:   workers,
	}
}

// Start launches the workers. They stop when ctx is done; Wait blocks until they have.
func (p *Pool) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			p.worker(gctx)
			return nil
		})
	}
	p.group = g
}

func (p *Pool) Wait() {
	if p.group != nil {
		_ = p.group.Wait()
	}
}

// Dispatch queues the file without blocking.
func (p *Pool) Dispatch(ctx context.Context, sessionId string, file *types.FileUnit) (pipeline.DispatchResult, error) {
	// the pipeline releases file.Content after dispatch; the job keeps its own reference
	j := job{sessionId: sessionId, index: file.Index, image: file.Content, mimeType: contentType(file)}
	select {
	case p.queue <- j:
		return pipeline.DispatchResult{Queued: true}, nil
	default:
		tool.DefaultLogger.Warnf("[Dispatch] Queue full, dropping session %s file %d", sessionId, file.Index)
		return pipeline.DispatchResult{}, ErrQueueFull
	}
}

func (p *Pool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.queue:
			p.process(ctx, j)
		}
	}
}

func (p *Pool) process(ctx context.Context, j job) {
	bills, err := ExtractAndStore(ctx, p.extractor, p.repo, j.image, j.mimeType)
	if err != nil {
		tool.DefaultLogger.Errorf("[Dispatch] Session %s file %d: %v", j.sessionId, j.index, err)
	} else {
		tool.DefaultLogger.Infof("[Dispatch] Session %s file %d: %d bills saved", j.sessionId, j.index, len(bills))
	}
	if p.OnDone != nil {
		p.OnDone(j.sessionId, j.index, len(bills), err)
	}
}
