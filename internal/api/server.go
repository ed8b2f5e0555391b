package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"metaphorlab/internal/assistant"
	"metaphorlab/internal/history"
	"metaphorlab/internal/queue"
	"metaphorlab/internal/storage"
	"metaphorlab/internal/view"
)

// History snapshot names.
const (
	SearchesKey = "searches"
	MoodsKey    = "moods"
)

type HistoryStore interface {
	SaveHistory(ctx context.Context, name string, snap history.Snapshot) error
	LoadHistory(ctx context.Context, name string) (history.Snapshot, error)
}

type FeedStore interface {
	AddFeed(ctx context.Context, url string) error
	RemoveFeed(ctx context.Context, url string) error
	GetFeeds(ctx context.Context) ([]string, error)
}

// Deps wires the server. Only Session and Repo are required.
type Deps struct {
	Session   *assistant.Session
	Repo      storage.AnalysisRepository
	History   HistoryStore
	Feeds     FeedStore
	Publisher queue.Publisher
	Logger    *zap.Logger
	PageSize  int
	TopK      int
}

type Server struct {
	echo      *echo.Echo
	session   *assistant.Session
	repo      storage.AnalysisRepository
	history   HistoryStore
	feeds     FeedStore
	publisher queue.Publisher
	hub       *Hub
	upgrader  websocket.Upgrader
	pageSize  int
	topK      int
	log       *zap.Logger
}

func NewServer(d Deps) *Server {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if d.PageSize <= 0 {
		d.PageSize = view.DefaultPageSize
	}
	if d.TopK <= 0 {
		d.TopK = 5
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		session:   d.Session,
		repo:      d.Repo,
		history:   d.History,
		feeds:     d.Feeds,
		publisher: d.Publisher,
		hub:       NewHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		pageSize: d.PageSize,
		topK:     d.TopK,
		log:      log.Named("api"),
	}

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			s.log.Info("request", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s.routes()

	return s
}

func (s *Server) routes() {
	s.echo.GET("/health", s.health)

	s.echo.POST("/api/analyze", s.analyze)
	s.echo.GET("/api/analyses", s.getAnalyses)
	s.echo.GET("/api/analyses/:id", s.getAnalysis)
	s.echo.POST("/api/route", s.route)
	s.echo.POST("/api/chat", s.chat)
	s.echo.POST("/api/jobs", s.submitJob)

	s.echo.GET("/api/history", s.getHistory)
	s.echo.DELETE("/api/history", s.clearHistory)
	s.echo.DELETE("/api/history/:index", s.removeHistory)
	s.echo.GET("/api/moods", s.getMoods)

	// Feed management
	s.echo.GET("/api/feeds", s.getFeeds)
	s.echo.POST("/api/feeds", s.addFeed)
	s.echo.DELETE("/api/feeds", s.removeFeed)

	s.echo.GET("/api/events", s.events)
	s.echo.GET("/api/ws", s.ws)
}

func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Broadcast(msg string) {
	s.hub.Broadcast(msg)
}

// RestoreHistory loads saved snapshots into the session trackers. Missing
// snapshots are not an error.
func (s *Server) RestoreHistory(ctx context.Context) error {
	if s.history == nil {
		return nil
	}
	for name, tr := range s.trackers() {
		snap, err := s.history.LoadHistory(ctx, name)
		if errors.Is(err, history.ErrSnapshotNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		tr.Restore(snap)
	}
	return nil
}

func (s *Server) persistHistory(ctx context.Context) {
	if s.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()

	for name, tr := range s.trackers() {
		if err := s.history.SaveHistory(ctx, name, tr.Snapshot()); err != nil {
			s.log.Warn("save history failed", zap.String("name", name), zap.Error(err))
		}
	}
}

func (s *Server) trackers() map[string]*history.Tracker {
	return map[string]*history.Tracker{
		SearchesKey: s.session.Searches(),
		MoodsKey:    s.session.Moods(),
	}
}
