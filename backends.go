package main

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moyoez/bill2sheet/dispatch"
	"github.com/moyoez/bill2sheet/ocr"
	"github.com/moyoez/bill2sheet/pipeline"
	"github.com/moyoez/bill2sheet/repository"
	"github.com/moyoez/bill2sheet/tool"
	"github.com/moyoez/bill2sheet/types"
)

// backends holds everything built from the config that needs closing on exit.
type backends struct {
	bills      repository.BillRepository
	health     repository.HealthChecker
	extractor  ocr.Extractor
	dispatcher pipeline.Dispatcher
	pool       *dispatch.Pool
	worker     *dispatch.Worker

	db     *pgxpool.Pool
	gemini *ocr.Gemini
	queue  *asynq.Client
}

func openBackends(ctx context.Context, cfg types.AppConfig) (*backends, error) {
	b := &backends{}
	if err := b.open(ctx, cfg); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *backends) open(ctx context.Context, cfg types.AppConfig) (err error) {
	if cfg.Database.DSN != "" {
		b.db, err = repository.Connect(ctx, cfg.Database.DSN)
		if err != nil {
			return err
		}
		if err = repository.EnsureSchema(ctx, b.db); err != nil {
			return err
		}
		pg := repository.NewPostgresBills(b.db)
		b.bills, b.health = pg, pg
		tool.DefaultLogger.Info("[Storage] Using PostgreSQL")
	} else {
		b.bills = repository.NewMemoryBills()
		tool.DefaultLogger.Warn("[Storage] database.dsn is empty, bills are kept in memory")
	}

	if cfg.Vertex.ProjectId == "" {
		tool.DefaultLogger.Warn("[OCR] vertex.projectId is empty, uploads are validated only and /api/v1/ocr answers 503")
		return nil
	}
	timeout := time.Duration(cfg.Server.OcrTimeoutSeconds) * time.Second
	b.gemini, err = ocr.NewGemini(ctx, cfg.Vertex, timeout)
	if err != nil {
		return err
	}
	b.extractor = b.gemini

	switch {
	case cfg.Queue.Enabled:
		store, err := dispatch.NewMinioStore(cfg.Storage)
		if err != nil {
			return err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return err
		}
		b.queue = asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Queue.RedisAddr})
		b.dispatcher = dispatch.NewQueue(store, b.queue)
		b.worker = dispatch.NewWorker(store, b.extractor, b.bills)
		tool.DefaultLogger.Infof("[Dispatch] Queueing extractions on %s", cfg.Queue.RedisAddr)
	case cfg.Upload.ExtractInline:
		b.dispatcher = dispatch.NewInline(b.extractor, b.bills)
		tool.DefaultLogger.Info("[Dispatch] Extracting inline")
	default:
		b.pool = dispatch.NewPool(b.extractor, b.bills, cfg.Queue.Concurrency)
		b.dispatcher = b.pool
		tool.DefaultLogger.Infof("[Dispatch] Extracting in background with %d workers", cfg.Queue.Concurrency)
	}
	return nil
}

func (b *backends) Close() {
	if b.queue != nil {
		if err := b.queue.Close(); err != nil {
			tool.DefaultLogger.Warnf("close queue client: %v", err)
		}
	}
	if b.gemini != nil {
		if err := b.gemini.Close(); err != nil {
			tool.DefaultLogger.Warnf("close Gemini client: %v", err)
		}
	}
	if b.db != nil {
		b.db.Close()
	}
}

