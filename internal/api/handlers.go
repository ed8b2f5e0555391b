package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"metaphorlab/internal/domain"
	"metaphorlab/internal/history"
	"metaphorlab/internal/intent"
	"metaphorlab/internal/storage"
	"metaphorlab/internal/view"
)

type textRequest struct {
	Text string `json:"text"`
}

type messageRequest struct {
	Message string `json:"message"`
	Service string `json:"service"`
}

type analysisResponse struct {
	domain.Analysis
	Stale bool `json:"stale,omitempty"`
}

type pageResponse struct {
	ID string `json:"id"`
	view.Page
	Stats domain.Stats `json:"stats"`
}

type historyResponse struct {
	Recent    []string          `json:"recent"`
	Analytics history.Analytics `json:"analytics"`
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) analyze(c echo.Context) error {
	var req textRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return errorJSON(c, http.StatusBadRequest, "text required")
	}

	ctx := c.Request().Context()
	rs, stale := s.session.Analyze(ctx, req.Text)
	s.persistHistory(ctx)

	a := domain.Analysis{
		ID:        uuid.NewString(),
		Text:      req.Text,
		Source:    domain.SourceAPI,
		Results:   rs,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Save(ctx, a); err != nil {
		s.log.Error("archive failed", zap.String("id", a.ID), zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	s.publish(domain.Event{Type: domain.EventAnalysisCompleted, Analysis: &a, At: a.CreatedAt})
	return c.JSON(http.StatusOK, analysisResponse{Analysis: a, Stale: stale})
}

func (s *Server) getAnalyses(c echo.Context) error {
	limit, err := intQuery(c, "limit", 20)
	if err != nil || limit < 1 || limit > 100 {
		return errorJSON(c, http.StatusBadRequest, "limit must be between 1 and 100")
	}
	offset, err := intQuery(c, "offset", 0)
	if err != nil || offset < 0 {
		return errorJSON(c, http.StatusBadRequest, "offset must not be negative")
	}

	analyses, err := s.repo.FindAll(c.Request().Context(), limit, offset)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, analyses)
}

func (s *Server) getAnalysis(c echo.Context) error {
	cfg, err := viewConfig(c, s.pageSize)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	a, err := s.repo.FindByID(c.Request().Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "not found")
	}
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, pageResponse{
		ID:    a.ID,
		Page:  view.Derive(a.Results, cfg),
		Stats: a.Results.Stats(),
	})
}

func (s *Server) route(c echo.Context) error {
	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	return c.JSON(http.StatusOK, intent.Route(req.Message, domain.ParseService(req.Service)))
}

func (s *Server) chat(c echo.Context) error {
	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	reply, err := s.session.Handle(ctx, req.Message, domain.ParseService(req.Service))
	s.persistHistory(ctx)
	if err != nil {
		s.log.Warn("chat failed", zap.Error(err))
		return errorJSON(c, http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, reply)
}

func (s *Server) submitJob(c echo.Context) error {
	if s.publisher == nil {
		return errorJSON(c, http.StatusServiceUnavailable, "job queue not configured")
	}

	var req textRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return errorJSON(c, http.StatusBadRequest, "text required")
	}

	job := domain.AnalysisJob{
		ID:          uuid.NewString(),
		Text:        req.Text,
		Source:      domain.SourceAPI,
		SubmittedAt: time.Now().UTC(),
	}
	if err := s.publisher.Publish(c.Request().Context(), job); err != nil {
		s.log.Error("publish failed", zap.String("job_id", job.ID), zap.Error(err))
		return errorJSON(c, http.StatusServiceUnavailable, "failed to queue job")
	}

	s.publish(domain.Event{Type: domain.EventJobQueued, Job: &job, At: job.SubmittedAt})
	return c.JSON(http.StatusAccepted, map[string]string{"job_id": job.ID})
}

func (s *Server) getHistory(c echo.Context) error {
	tr := s.session.Searches()
	return c.JSON(http.StatusOK, historyResponse{Recent: tr.Recent(), Analytics: tr.Analytics(s.topK)})
}

func (s *Server) clearHistory(c echo.Context) error {
	s.session.Searches().Clear()
	s.historyChanged(c)
	return s.getHistory(c)
}

func (s *Server) removeHistory(c echo.Context) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "index must be an integer")
	}
	s.session.Searches().Remove(index)
	s.historyChanged(c)
	return s.getHistory(c)
}

func (s *Server) getMoods(c echo.Context) error {
	tr := s.session.Moods()
	return c.JSON(http.StatusOK, historyResponse{Recent: tr.Recent(), Analytics: tr.Analytics(s.topK)})
}

func (s *Server) getFeeds(c echo.Context) error {
	if s.feeds == nil {
		return errorJSON(c, http.StatusServiceUnavailable, "feed store not configured")
	}
	feeds, err := s.feeds.GetFeeds(c.Request().Context())
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, feeds)
}

func (s *Server) addFeed(c echo.Context) error {
	if s.feeds == nil {
		return errorJSON(c, http.StatusServiceUnavailable, "feed store not configured")
	}

	url := strings.TrimSpace(c.FormValue("url"))
	if url == "" || !(strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")) {
		return errorJSON(c, http.StatusBadRequest, "feed url required")
	}

	if err := s.feeds.AddFeed(c.Request().Context(), url); err != nil {
		return errorJSON(c, http.StatusInternalServerError, "failed to add")
	}
	return s.getFeeds(c)
}

func (s *Server) removeFeed(c echo.Context) error {
	if s.feeds == nil {
		return errorJSON(c, http.StatusServiceUnavailable, "feed store not configured")
	}

	if err := s.feeds.RemoveFeed(c.Request().Context(), c.QueryParam("url")); err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return s.getFeeds(c)
}

func (s *Server) historyChanged(c echo.Context) {
	s.persistHistory(c.Request().Context())
	s.publish(domain.Event{Type: domain.EventHistoryChanged, At: time.Now().UTC()})
}

func (s *Server) publish(ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Error("encode event", zap.Error(err))
		return
	}
	s.hub.Broadcast(string(data))
}

func intQuery(c echo.Context, name string, def int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func floatQuery(c echo.Context, name string, def float64) (float64, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	return strconv.ParseFloat(v, 64)
}

// viewConfig reads label, min, max, q, sort, dir, page and page_size and
// validates the result.
func viewConfig(c echo.Context, pageSize int) (view.Config, error) {
	cfg := view.DefaultConfig()
	cfg.PageSize = pageSize

	var err error
	if cfg.Label, err = view.ParseLabelFilter(c.QueryParam("label")); err != nil {
		return cfg, err
	}
	if cfg.SortKey, err = view.ParseSortKey(c.QueryParam("sort")); err != nil {
		return cfg, err
	}
	if cfg.SortDirection, err = view.ParseSortDirection(c.QueryParam("dir")); err != nil {
		return cfg, err
	}
	if cfg.MinConfidence, err = floatQuery(c, "min", cfg.MinConfidence); err != nil {
		return cfg, view.ErrInvalidRange
	}
	if cfg.MaxConfidence, err = floatQuery(c, "max", cfg.MaxConfidence); err != nil {
		return cfg, view.ErrInvalidRange
	}
	if cfg.Page, err = intQuery(c, "page", cfg.Page); err != nil {
		return cfg, view.ErrInvalidPage
	}
	if cfg.PageSize, err = intQuery(c, "page_size", cfg.PageSize); err != nil {
		return cfg, view.ErrInvalidPageSize
	}
	cfg.Keyword = c.QueryParam("q")

	return cfg, cfg.Validate()
}
