// Package dispatch hands validated invoice images to OCR, either inline, through an
// in-process worker pool, or through an asynq queue backed by MinIO.
package dispatch

import (
	"context"
	"fmt"

	"github.com/moyoez/bill2sheet/ocr"
	"github.com/moyoez/bill2sheet/pipeline"
	"github.com/moyoez/bill2sheet/repository"
	"github.com/moyoez/bill2sheet/tool"
	"github.com/moyoez/bill2sheet/types"
)

// ExtractAndStore runs OCR on one image and saves the resulting bill rows.
func ExtractAndStore(ctx context.Context, ex ocr.Extractor, repo repository.BillRepository, image []byte, mimeType string) ([]types.Bill, error) {
	res, err := ex.Extract(ctx, image, mimeType)
	if err != nil {
		return nil, fmt.Errorf("extract bill data: %w", err)
	}
	bills, err := repo.CreateMany(ctx, res.Bills())
	if err != nil {
		return nil, fmt.Errorf("save bills: %w", err)
	}
	return bills, nil
}

// Inline extracts while the pipeline waits, so the stream can report each result.
type Inline struct {
	extractor ocr.Extractor
	repo      repository.BillRepository
}

var _ pipeline.Dispatcher = (*Inline)(nil)

func NewInline(ex ocr.Extractor, repo repository.BillRepository) *Inline {
	return &Inline{extractor: ex, repo: repo}
}

func (d *Inline) Dispatch(ctx context.Context, sessionId string, file *types.FileUnit) (pipeline.DispatchResult, error) {
	bills, err := ExtractAndStore(ctx, d.extractor, d.repo, file.Content, contentType(file))
	if err != nil {
		return pipeline.DispatchResult{}, err
	}
	tool.DefaultLogger.Infof("[Dispatch] Session %s file %d: %d bills saved", sessionId, file.Index, len(bills))
	return pipeline.DispatchResult{Bills: len(bills)}, nil
}

func contentType(file *types.FileUnit) string {
	if file.Info != nil && file.Info.ContentType != "" {
		return file.Info.ContentType
	}
	return "application/octet-stream"
}
