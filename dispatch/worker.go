package dispatch

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/hibiken/asynq"

	"github.com/moyoez/bill2sheet/ocr"
	"github.com/moyoez/bill2sheet/repository"
	"github.com/moyoez/bill2sheet/tool"
)

// Worker consumes ExtractBillTask from the queue.
type Worker struct {
	store     ImageStore
	extractor ocr.Extractor
	repo      repository.BillRepository
}

func NewWorker(store ImageStore, ex ocr.Extractor, repo repository.BillRepository) *Worker {
	return &Worker{store: store, extractor: ex, repo: repo}
}

// Register attaches the task handlers to mux.
func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(ExtractBillTask, w.HandleExtract)
}

func (w *Worker) HandleExtract(ctx context.Context, task *asynq.Task) error {
	var payload ExtractPayload
	if err := sonic.Unmarshal(task.Payload(), &payload); err != nil {
		// retrying cannot fix a bad payload
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	image, err := w.store.Get(ctx, payload.ObjectKey)
	if err != nil {
		return err
	}
	bills, err := ExtractAndStore(ctx, w.extractor, w.repo, image, payload.ContentType)
	if err != nil {
		tool.DefaultLogger.Errorf("[Worker] Session %s file %d: %v", payload.SessionId, payload.FileIndex, err)
		return err
	}
	tool.DefaultLogger.Infof("[Worker] Session %s file %d (%s): %d bills saved", payload.SessionId, payload.FileIndex, payload.FileName, len(bills))
	return nil
}

// RunWorker serves the queue until ctx is done.
func RunWorker(ctx context.Context, redisAddr string, concurrency int, w *Worker) error {
	server := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{Concurrency: concurrency})
	mux := asynq.NewServeMux()
	w.Register(mux)

	tool.DefaultLogger.Infof("[Worker] Listening on %s with concurrency %d", redisAddr, concurrency)
	if err := server.Start(mux); err != nil {
		return fmt.Errorf("asynq server: %w", err)
	}
	<-ctx.Done()
	server.Shutdown()
	return nil
}
