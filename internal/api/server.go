// Package api exposes the assistant over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xaenox/aiva/internal/assistant"
	"github.com/xaenox/aiva/internal/logger"
	"github.com/xaenox/aiva/internal/models"
	"github.com/xaenox/aiva/internal/normalizer"
	"github.com/xaenox/aiva/internal/storage"
	"github.com/xaenox/aiva/pkg/config"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Processor runs one prompt through the assistant
type Processor interface {
	Process(ctx context.Context, req assistant.Request) (*models.Response, error)
}

type Server struct {
	processor  Processor
	store      storage.TransactionStore
	categories []string
	logger     *zap.Logger
	router     *gin.Engine
}

type processRequest struct {
	Prompt   string                `json:"prompt" binding:"required,min=3"`
	ThreadID string                `json:"thread_id"`
	Context  models.RequestContext `json:"context"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func NewServer(processor Processor, store storage.TransactionStore, categories []string, logger *zap.Logger) *Server {
	s := &Server{
		processor:  processor,
		store:      store,
		categories: categories,
		logger:     logger,
	}
	s.router = s.routes()
	return s
}

// Handler is the routed gin engine
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(requestID(), accessLog(s.logger), recovery(s.logger))

	r.GET("/health", s.handleHealth)

	v1 := r.Group("/api/v1")
	v1.POST("/agent/process", s.handleProcess)
	v1.GET("/transactions", s.handleListTransactions)
	v1.GET("/categories", s.handleCategories)
	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests
func (s *Server) Run(ctx context.Context, cfg config.ServerConfig) error {
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleProcess(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			s.writeError(c, http.StatusBadRequest, "malformed request body")
			return
		}
		s.writeError(c, http.StatusUnprocessableEntity, models.ErrInvalidPrompt.Error())
		return
	}

	resp, err := s.processor.Process(c.Request.Context(), assistant.Request{
		Prompt:   req.Prompt,
		ThreadID: req.ThreadID,
		Context:  req.Context,
	})
	if err != nil {
		s.writeFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListTransactions(c *gin.Context) {
	ctx := c.Request.Context()

	var rng models.DateRange
	for _, bound := range []struct {
		param string
		dst   *string
	}{
		{"start_date", &rng.Start},
		{"end_date", &rng.End},
	} {
		raw := strings.TrimSpace(c.Query(bound.param))
		if raw == "" {
			continue
		}
		date, err := normalizer.ParseDate(raw)
		if err != nil {
			s.writeError(c, http.StatusBadRequest, err.Error())
			return
		}
		*bound.dst = date
	}

	var (
		txs []models.Transaction
		err error
	)
	switch category := strings.TrimSpace(c.Query("category")); {
	case category != "":
		txs, err = s.store.GetByCategory(ctx, category, rng)
	case rng.Start != "" || rng.End != "":
		txs, err = s.store.GetByDateRange(ctx, rng.Start, rng.End)
	default:
		txs, err = s.store.GetAll(ctx)
	}
	if err != nil {
		s.writeFailure(c, err)
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(txs), "transactions": txs})
}

func (s *Server) handleCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": s.categories})
}

// writeFailure maps a pipeline error onto a status code. Internal detail is
// logged, never returned.
func (s *Server) writeFailure(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidPrompt):
		s.writeError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, models.ErrOracleUnavailable):
		s.logger.Error("Oracle failure", zap.String("request_id", c.GetString(requestIDKey)), logger.SafeError(err))
		s.writeError(c, http.StatusInternalServerError, "the assistant is temporarily unavailable")
	default:
		s.logger.Error("Request failed", zap.String("request_id", c.GetString(requestIDKey)), logger.SafeError(err))
		s.writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: msg, RequestID: c.GetString(requestIDKey)})
}
