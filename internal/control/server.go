// Package control serves the optional local HTTP control surface: attach
// requests, a status snapshot, a read-only output stream, and metrics. It
// never triggers a restart itself; it only appends to the request log the
// supervisor consumes.
package control

import (
	"net/http"
	"path/filepath"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/openattach/openattach/internal/config"
	"github.com/openattach/openattach/internal/metrics"
	"github.com/openattach/openattach/internal/pathcheck"
	"github.com/openattach/openattach/internal/requestlog"
	"github.com/openattach/openattach/internal/supervisor"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // bound to loopback; the address is operator-chosen
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Server holds the control server dependencies.
type Server struct {
	echo *echo.Echo
	cfg  *config.Config
	sup  *supervisor.Supervisor
}

// NewServer creates a control server with all routes configured.
func NewServer(cfg *config.Config, sup *supervisor.Supervisor) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, cfg: cfg, sup: sup}

	e.Use(middleware.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/status", s.status)
	e.POST("/attach", s.attach)
	e.GET("/stream", s.stream)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	return s
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Handler exposes the route tree for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) status(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sup.Snapshot())
}

type attachRequest struct {
	Path string `json:"path"`
}

// attach validates a candidate path and appends it to the request log. The
// running child picks it up on its next marker-triggered restart; this
// endpoint returns an acknowledgement only.
func (s *Server) attach(c echo.Context) error {
	var req attachRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
	}

	validated, err := pathcheck.Validate(req.Path, s.cfg.Root)
	if err != nil {
		metrics.AttachRequestsTotal.WithLabelValues("rejected").Inc()
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	logPath := s.cfg.RequestLog
	if !filepath.IsAbs(logPath) {
		logPath = filepath.Join(s.cfg.Root, logPath)
	}
	if err := requestlog.Append(logPath, validated); err != nil {
		metrics.AttachRequestsTotal.WithLabelValues("error").Inc()
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}

	metrics.AttachRequestsTotal.WithLabelValues("accepted").Inc()
	return c.JSON(http.StatusAccepted, map[string]string{
		"status": "queued",
		"path":   validated,
	})
}

// stream upgrades to a websocket and mirrors child output to the client,
// read-only. Client messages are drained and discarded.
func (s *Server) stream(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	chunks, cancel := s.sup.Monitor().Subscribe()
	defer cancel()

	// Drain client frames so pings are handled; nothing an observer sends
	// reaches the child.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case chunk := <-chunks:
			if err := ws.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				return nil
			}
		case <-done:
			return nil
		}
	}
}
