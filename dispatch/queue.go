package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hibiken/asynq"

	"github.com/moyoez/bill2sheet/pipeline"
	"github.com/moyoez/bill2sheet/tool"
	"github.com/moyoez/bill2sheet/types"
)

// ExtractBillTask is enqueued once per validated image.
const ExtractBillTask = "bill:extract"

const maxTaskRetry = 5

// ExtractPayload tells the worker which stored image to read.
type ExtractPayload struct {
	SessionId   string `json:"session_id"`
	FileIndex   int    `json:"file_index"`
	ObjectKey   string `json:"object_key"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewExtractTask encodes payload as an asynq task.
func NewExtractTask(payload ExtractPayload) (*asynq.Task, error) {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(ExtractBillTask, data), nil
}

// Queue stores each image and enqueues an extraction task for a worker process.
type Queue struct {
	store  ImageStore
	client Enqueuer
	now    func() time.Time
}

var _ pipeline.Dispatcher = (*Queue)(nil)

func NewQueue(store ImageStore, client Enqueuer) *Queue {
	return &Queue{store: store, client: client, now: time.Now}
}

func (q *Queue) Dispatch(ctx context.Context, sessionId string, file *types.FileUnit) (pipeline.DispatchResult, error) {
	payload := ExtractPayload{
		SessionId:   sessionId,
		FileIndex:   file.Index,
		ObjectKey:   tool.ObjectKey(sessionId, file.Index, file.Name, q.now()),
		FileName:    file.Name,
		ContentType: contentType(file),
	}
	if err := q.store.Put(ctx, payload.ObjectKey, file.Content, payload.ContentType); err != nil {
		return pipeline.DispatchResult{}, err
	}
	task, err := NewExtractTask(payload)
	if err != nil {
		return pipeline.DispatchResult{}, err
	}
	info, err := q.client.EnqueueContext(ctx, task, asynq.MaxRetry(maxTaskRetry))
	if err != nil {
		return pipeline.DispatchResult{}, fmt.Errorf("enqueue extract task: %w", err)
	}
	tool.DefaultLogger.Debugf("[Dispatch] Enqueued %s for session %s file %d", info.ID, sessionId, file.Index)
	return pipeline.DispatchResult{Queued: true}, nil
}
