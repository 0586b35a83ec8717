package health

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ponytojas/mqtt-team-bridge/internal/bridge"
)

const serviceName = "multi-team-bridge"

// ConnectionChecker reports broker connectivity
type ConnectionChecker interface {
	IsConnected() bool
}

// StatsSource exposes bridge counters
type StatsSource interface {
	Snapshot() bridge.Snapshot
}

// Server serves /health and /stats
type Server struct {
	srv *http.Server
}

// NewRouter wires the health routes
func NewRouter(broker ConnectionChecker, stats StatsSource) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		if !broker.IsConnected() {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":           "degraded",
				"service":          serviceName,
				"broker_connected": false,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":           "healthy",
			"service":          serviceName,
			"broker_connected": true,
		})
	})

	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, stats.Snapshot())
	})

	return r
}

// NewServer creates the HTTP server; call Start to listen
func NewServer(addr string, broker ConnectionChecker, stats StatsSource) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(broker, stats),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start listens in the background
func (s *Server) Start() {
	go func() {
		log.Info().Str("component", "health").Str("addr", s.srv.Addr).Msg("Health server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Str("component", "health").Err(err).Msg("Health server failed")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
