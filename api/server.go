package api

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/moyoez/bill2sheet/api/controllers"
	"github.com/moyoez/bill2sheet/api/middlewares"
	"github.com/moyoez/bill2sheet/api/models"
	"github.com/moyoez/bill2sheet/api/notifyhub"
	"github.com/moyoez/bill2sheet/ocr"
	"github.com/moyoez/bill2sheet/pipeline"
	"github.com/moyoez/bill2sheet/repository"
	"github.com/moyoez/bill2sheet/tool"
	"github.com/moyoez/bill2sheet/types"
	"github.com/moyoez/bill2sheet/validator"
)

//go:embed web
var webFS embed.FS

// Deps are the backends the handlers run against.
type Deps struct {
	Bills repository.BillRepository
	// nil when bills live in memory
	Health repository.HealthChecker
	// nil when Vertex AI is not configured; the OCR endpoint then answers 503
	Extractor ocr.Extractor
	// receives every validated upload; nil means validate only
	Dispatcher pipeline.Dispatcher
}

// Server represents the HTTP API server
type Server struct {
	cfg    types.AppConfig
	deps   Deps
	engine *gin.Engine
	server *http.Server
	closed bool
	mu     sync.RWMutex
}

func NewServer(cfg types.AppConfig, deps Deps) *Server {
	if deps.Bills == nil {
		deps.Bills = repository.NewMemoryBills()
	}
	return &Server{cfg: cfg, deps: deps}
}

// Handler builds the router once and returns it.
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		s.engine = s.setupRoutes()
	}
	return s.engine
}

func (s *Server) setupRoutes() *gin.Engine {
	if tool.DefaultLogger.GetLevel() == log.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())
	engine.Use(middlewares.AllowAllCORS())

	uploadCtrl := controllers.NewUploadController(s.cfg.Upload, s.cfg.Server.BodyLimitBytes, s.deps.Dispatcher)
	billCtrl := controllers.NewBillController(s.deps.Bills)
	ocrCtrl := controllers.NewOcrController(s.deps.Extractor, s.deps.Bills,
		validator.Limits{MaxFileSizeBytes: s.cfg.Upload.MaxFileSizeBytes},
		time.Duration(s.cfg.Server.OcrTimeoutSeconds)*time.Second)
	healthCtrl := controllers.NewHealthController(s.deps.Health)

	engine.GET("/health", healthCtrl.HandleHealth)

	v1 := engine.Group("/api/v1")
	{
		v1.POST("/upload", uploadCtrl.HandleUpload)
		v1.POST("/ocr", ocrCtrl.HandleExtract)
		v1.GET("/config", controllers.HandleUploadLimits)
		v1.GET("/qrcode", controllers.HandleUploadQRCode)

		sessions := v1.Group("/sessions")
		sessions.GET("/:id", controllers.HandleSessionStatus)
		sessions.POST("/:id/cancel", controllers.HandleSessionCancel)
		sessions.DELETE("/:id", controllers.HandleSessionDelete)
		sessions.GET("/:id/ws", notifyhub.HandleSessionWS(models.LookupSessionHub))

		bills := v1.Group("/bills")
		bills.GET("", billCtrl.HandleList)
		bills.GET("/paginated", billCtrl.HandlePaginated)
		bills.GET("/count", billCtrl.HandleCount)
		bills.GET("/search", billCtrl.HandleSearch)
		bills.GET("/export", billCtrl.HandleExport)
		bills.GET("/:id", billCtrl.HandleGet)
		bills.POST("", billCtrl.HandleCreate)
		bills.PUT("/:id", billCtrl.HandleUpdate)
		bills.DELETE("/:id", billCtrl.HandleDelete)
	}
	admin := engine.Group("/api/v1/admin", middlewares.OnlyAllowLocal)
	{
		admin.GET("/config", controllers.HandleConfigGet)
	}

	// upload page for phones that scanned the QR code
	page, err := fs.Sub(webFS, "web")
	if err == nil {
		engine.GET(controllers.UploadPagePath, func(c *gin.Context) {
			c.FileFromFS("/", http.FS(page))
		})
	}

	return engine
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	handler := s.Handler()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	tool.DefaultLogger.Infof("Starting API server on http://0.0.0.0:%d", s.cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
