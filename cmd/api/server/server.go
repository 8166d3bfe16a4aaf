package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Tsinling0525/canvasflow/app"
	"github.com/Tsinling0525/canvasflow/engine"
	"github.com/Tsinling0525/canvasflow/infra"
	"github.com/Tsinling0525/canvasflow/metrics"
	"github.com/Tsinling0525/canvasflow/session"
)

const version = "1.0.0"

// APIResponse represents the API response
type APIResponse struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Helper function to send JSON response
func sendResponse(c *gin.Context, statusCode int, success bool, data map[string]interface{}, errorMsg string) {
	response := APIResponse{Success: success, Data: data, Error: errorMsg}
	c.JSON(statusCode, response)
}

func sendSuccess(c *gin.Context, data map[string]interface{}) {
	sendResponse(c, http.StatusOK, true, data, "")
}

func sendError(c *gin.Context, statusCode int, errorMsg string) {
	sendResponse(c, statusCode, false, nil, errorMsg)
}

// sendErr picks the status code for well-known errors.
func sendErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, infra.ErrNotFound):
		sendError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrBusy):
		sendError(c, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrNoTrigger):
		sendError(c, http.StatusUnprocessableEntity, err.Error())
	default:
		sendError(c, http.StatusInternalServerError, err.Error())
	}
}

type handlers struct {
	app    *app.App
	logger *zap.Logger
}

// NewRouter builds the Gin router with routes and middleware
func NewRouter(a *app.App) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	logger := a.Logger.With(zap.String("component", "api"))
	h := &handlers{app: a, logger: logger}

	r := gin.New()
	r.Use(requestLogger(logger, a.Metrics))
	r.Use(recovery(logger))
	// CORS
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	r.GET("/health", handleHealth)
	r.GET("/metrics", gin.WrapH(a.Metrics.Handler()))
	r.GET("/node-types", h.listNodeTypes)

	r.GET("/workflows", h.listWorkflows)
	r.POST("/workflows", h.createWorkflow)
	r.GET("/workflows/:id", h.getWorkflow)
	r.PUT("/workflows/:id", h.updateWorkflow)
	r.DELETE("/workflows/:id", h.deleteWorkflow)
	r.POST("/workflows/:id/run", h.runWorkflow)

	r.GET("/workflows/:id/session", h.getSession)
	r.POST("/workflows/:id/nodes", h.addNode)
	r.PUT("/workflows/:id/nodes/:nodeId", h.updateNode)
	r.DELETE("/workflows/:id/nodes/:nodeId", h.removeNode)
	r.POST("/workflows/:id/edges", h.connect)
	r.DELETE("/workflows/:id/edges/:edgeId", h.disconnect)
	r.POST("/workflows/:id/undo", h.undo)
	r.POST("/workflows/:id/redo", h.redo)
	r.POST("/workflows/:id/save", h.saveSession)

	r.POST("/run", h.runAdHoc)
	r.POST("/n8n/import", h.importN8n)
	r.POST("/n8n/run", h.runN8n)

	r.GET("/runs", h.listRuns)
	r.DELETE("/runs", h.clearRuns)
	r.GET("/runs/:id", h.getRun)
	r.DELETE("/runs/:id", h.deleteRun)

	return r
}

func handleHealth(c *gin.Context) {
	sendSuccess(c, map[string]interface{}{"status": "healthy", "timestamp": time.Now().Unix(), "version": version})
}

func recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered", zap.Any("error", err), zap.String("path", c.Request.URL.Path))
				sendError(c, http.StatusInternalServerError, "internal server error")
				c.Abort()
			}
		}()
		c.Next()
	}
}

// requestLogger logs every request and records it in the HTTP metrics. The
// route template is used as the path label to keep cardinality bounded.
func requestLogger(logger *zap.Logger, collector *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		if collector != nil {
			collector.RecordHTTPRequest(c.Request.Method, route, status, duration)
		}
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", duration),
			zap.String("remote_addr", c.ClientIP()),
		)
	}
}

// Serve runs the API on cfg.Server.Addr until ctx is cancelled, then shuts
// down gracefully.
func Serve(ctx context.Context, a *app.App) error {
	cfg := a.Config.Server
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      NewRouter(a),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("api server listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
