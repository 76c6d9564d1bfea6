package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/vidqa/domain/entities"
	"github.com/satriahrh/vidqa/internal/websocket"
	"github.com/satriahrh/vidqa/usecase"
)

// Ingester creates sessions from media
type Ingester interface {
	Ingest(ctx context.Context, req usecase.IngestRequest) (*entities.Session, error)
	Transcribe(ctx context.Context, req usecase.IngestRequest) (entities.TranscriptIndex, error)
}

// Querier answers questions and reads sessions
type Querier interface {
	Ask(ctx context.Context, sessionID, question string) (*usecase.AskResult, error)
	Session(ctx context.Context, sessionID string) (*entities.Session, error)
}

// Dependencies are the services the routes delegate to. Hub, MCP and Auth
// are optional.
type Dependencies struct {
	Ingestion      Ingester
	Queries        Querier
	Hub            *websocket.Hub
	MCP            http.Handler
	Auth           echo.MiddlewareFunc
	MaxUploadBytes int64
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies, logger *zap.Logger) {
	h := &handler{
		ingestion:      deps.Ingestion,
		queries:        deps.Queries,
		hub:            deps.Hub,
		maxUploadBytes: deps.MaxUploadBytes,
		logger:         logger,
	}
	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = 25 << 20
	}
	e.HTTPErrorHandler = h.httpError

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "vidqa",
		})
	})

	var middleware []echo.MiddlewareFunc
	if deps.Auth != nil {
		middleware = append(middleware, deps.Auth)
	}
	g := e.Group("", middleware...)

	g.POST("/upload", h.upload)
	g.POST("/transcript", h.transcript)
	g.POST("/ask", h.ask)
	g.GET("/sessions/:id", h.getSession)

	if deps.Hub != nil {
		g.GET("/ws/sessions/:id", h.sessionSocket)
	}

	if deps.MCP != nil {
		g.Any("/mcp", echo.WrapHandler(deps.MCP))
	}
}
