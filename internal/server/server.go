package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jellydator/ttlcache/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/agenthands/rsgwm/internal/core"
	"github.com/agenthands/rsgwm/internal/metrics"
	"github.com/agenthands/rsgwm/internal/protocol"
)

const (
	maxEnvelopeBytes = 4 << 20
	replyCacheSize   = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Options struct {
	// ReplyCacheTTL keeps replies by queryId so a retransmitted request is
	// answered without being applied twice. Zero disables the cache.
	ReplyCacheTTL time.Duration
	PublishQueue  int
	Logger        *slog.Logger
}

type Server struct {
	WorldModel *core.WorldModel
	Metrics    *metrics.Metrics
	Hub        *Hub

	replies  *ttlcache.Cache[string, []byte]
	inflight singleflight.Group
	publish  chan []byte
	logger   *slog.Logger
}

func NewServer(wm *core.WorldModel, m *metrics.Metrics, hub *Hub, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	queue := opts.PublishQueue
	if queue <= 0 {
		queue = 1024
	}
	s := &Server{
		WorldModel: wm,
		Metrics:    m,
		Hub:        hub,
		publish:    make(chan []byte, queue),
		logger:     logger.With("component", "server"),
	}
	if opts.ReplyCacheTTL > 0 {
		s.replies = ttlcache.New[string, []byte](
			ttlcache.WithTTL[string, []byte](opts.ReplyCacheTTL),
			ttlcache.WithCapacity[string, []byte](replyCacheSize),
		)
	}
	return s
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.POST("/rsg", s.HandleEnvelope)
	r.POST("/rsg/publish", s.Publish)
	r.GET("/rsg/events", s.Events)
	r.GET("/healthz", s.Health)
	if s.Metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{})))
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

// HandleEnvelope applies one envelope and answers with its reply.
// Requests sharing a queryId are applied once: concurrent retransmits wait
// for the first and later ones are answered from the reply cache.
func (s *Server) HandleEnvelope(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEnvelopeBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	header, headerErr := protocol.Peek(body)
	var reply any
	if headerErr == nil && header.QueryID != "" && s.replies != nil {
		reply, err, _ = s.inflight.Do(header.QueryID, func() (any, error) {
			if item := s.replies.Get(header.QueryID); item != nil {
				return item.Value(), nil
			}
			data, err := s.apply(c.Request.Context(), body)
			if err != nil {
				return nil, err
			}
			s.replies.Set(header.QueryID, data, ttlcache.DefaultTTL)
			return data, nil
		})
	} else {
		reply, err = s.apply(c.Request.Context(), body)
	}
	if err != nil {
		s.logger.Error("failed to encode reply", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode reply"})
		return
	}

	status := http.StatusOK
	if headerErr != nil {
		status = http.StatusBadRequest
	}
	c.Data(status, "application/json", reply.([]byte))
}

func (s *Server) apply(ctx context.Context, body []byte) ([]byte, error) {
	return json.Marshal(s.WorldModel.Handle(ctx, body))
}

// Publish queues an envelope for fire-and-forget processing.
func (s *Server) Publish(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEnvelopeBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}
	if !s.enqueue(body) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "publish queue full"})
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) enqueue(data []byte) bool {
	select {
	case s.publish <- data:
		return true
	default:
		s.logger.Warn("publish queue full, dropping envelope")
		if s.Metrics != nil {
			s.Metrics.PublishDropped()
		}
		return false
	}
}

// Events upgrades the connection to a WebSocket that streams monitor
// events. Frames sent by the client are published like POST /rsg/publish.
func (s *Server) Events(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	cl := s.Hub.register(conn)
	defer s.Hub.unregister(cl)

	conn.SetReadLimit(maxEnvelopeBytes)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("event stream closed", "error", err)
			}
			return
		}
		s.enqueue(msg)
	}
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"root":        s.WorldModel.Root().String(),
		"entities":    s.WorldModel.Store.Len(),
		"subscribers": s.Hub.Subscribers(),
	})
}

// RunPublisher applies queued envelopes until ctx is done. Replies are
// discarded; failures are logged by the world model.
func (s *Server) RunPublisher(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-s.publish:
			s.WorldModel.Handle(ctx, data)
		}
	}
}

// ListenAndServe serves HTTP on addr and runs the publish worker until ctx
// is cancelled, then shuts both down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		s.RunPublisher(ctx)
		return nil
	})
	if s.replies != nil {
		go s.replies.Start()
	}
	g.Go(func() error {
		<-ctx.Done()
		if s.replies != nil {
			s.replies.Stop()
		}
		s.Hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
