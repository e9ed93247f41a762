// Package server exposes the ingestion pipeline and review sessions over
// HTTP. Handlers are thin: decode, delegate, encode.
package server

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/stacklens/catalog-ingest/internal/config"
	"github.com/stacklens/catalog-ingest/internal/learn"
	"github.com/stacklens/catalog-ingest/internal/model"
	"github.com/stacklens/catalog-ingest/internal/pipeline"
	"github.com/stacklens/catalog-ingest/internal/session"
	"github.com/stacklens/catalog-ingest/internal/store"
)

// Server wires the pipeline, session manager and store behind a chi router.
type Server struct {
	cfg      *config.Config
	pipe     *pipeline.Pipeline
	sessions *session.Manager
	store    store.Store
	router   chi.Router
}

// New assembles the HTTP surface.
func New(cfg *config.Config, pipe *pipeline.Pipeline, sessions *session.Manager, st store.Store) *Server {
	s := &Server{
		cfg:      cfg,
		pipe:     pipe,
		sessions: sessions,
		store:    st,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/ingest", s.handleIngest)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/{id}", s.handleSessionGet)
			r.Delete("/{id}", s.handleSessionCancel)
			r.Post("/{id}/next", s.handleSessionNext)
			r.Post("/{id}/skip", s.handleSessionSkip)
			r.Post("/{id}/feedback", s.handleSessionFeedback)
			r.Post("/{id}/bulk-confirm", s.handleSessionBulkConfirm)
			r.Post("/{id}/confirm-all", s.handleSessionConfirmAll)
			r.Get("/{id}/sample", s.handleSessionSample)
		})

		r.Post("/learn", s.handleLearn)

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", s.handleTemplateList)
			r.Get("/{id}", s.handleTemplateGet)
			r.Delete("/{id}", s.handleTemplateDelete)
		})

		r.Route("/review", func(r chi.Router) {
			r.Get("/", s.handleReviewList)
			r.Post("/{id}/resolve", s.handleReviewResolve)
		})

		r.Get("/items", s.handleItemList)
	})

	s.router = r
	return s
}

// Handler returns the assembled router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ingestRequest carries a document batch. Data is base64 so binary formats
// survive JSON transport.
type ingestRequest struct {
	TenantID  string `json:"tenant_id"`
	Documents []struct {
		Name string `json:"name"`
		Data string `json:"data"`
	} `json:"documents"`
}

type ingestResponse struct {
	Items           []model.Item           `json:"items"`
	Excluded        []model.Item           `json:"excluded,omitempty"`
	Groups          []model.DuplicateGroup `json:"duplicate_groups,omitempty"`
	Relationships   []model.Relationship   `json:"relationships,omitempty"`
	Inconsistencies []model.Inconsistency  `json:"inconsistencies,omitempty"`
	Warnings        []string               `json:"warnings,omitempty"`
	SessionID       string                 `json:"session_id,omitempty"`
	DurationMS      int64                  `json:"duration_ms"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.TenantID == "" {
		writeError(w, http.StatusBadRequest, eris.New("tenant_id is required"))
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, eris.New("documents are required"))
		return
	}

	docs := make([]pipeline.Document, 0, len(req.Documents))
	for _, d := range req.Documents {
		data, err := base64.StdEncoding.DecodeString(d.Data)
		if err != nil {
			writeError(w, http.StatusBadRequest, eris.Wrapf(err, "document %s: invalid base64", d.Name))
			return
		}
		docs = append(docs, pipeline.Document{Name: d.Name, Data: data})
	}

	// Earlier review feedback steers this batch's extraction.
	steering := s.sessions.Steering(r.Context(), req.TenantID)

	result, err := s.pipe.Run(r.Context(), req.TenantID, docs, steering)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	resp := ingestResponse{
		Items:           result.Items,
		Excluded:        result.Excluded,
		Groups:          result.Groups,
		Relationships:   result.Report.Relationships,
		Inconsistencies: result.Report.Inconsistencies,
		Warnings:        result.Warnings,
		DurationMS:      result.Duration.Milliseconds(),
	}

	// Items below the review threshold open a review session.
	review := itemsNeedingReview(result.Items, s.cfg.Session.ReviewThreshold)
	if len(review) > 0 {
		sess, err := s.sessions.Create(r.Context(), req.TenantID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if err := s.sessions.AddItems(r.Context(), sess.ID, review); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		resp.SessionID = sess.ID
	}

	// Confident items persist immediately.
	confident := itemsAboveThreshold(result.Items, s.cfg.Session.ReviewThreshold)
	if s.store != nil && len(confident) > 0 {
		if _, err := s.store.SaveItems(r.Context(), confident); err != nil {
			zap.L().Error("server: save items", zap.Error(err))
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func itemsNeedingReview(items []model.Item, threshold float64) []model.Item {
	var out []model.Item
	for _, item := range items {
		if item.OverallConfidence() < threshold || len(item.FieldsNeedingReview()) > 0 {
			out = append(out, item)
		}
	}
	return out
}

func itemsAboveThreshold(items []model.Item, threshold float64) []model.Item {
	var out []model.Item
	for _, item := range items {
		if item.OverallConfidence() >= threshold && len(item.FieldsNeedingReview()) == 0 {
			out = append(out, item)
		}
	}
	return out
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	dist, err := s.sessions.ConfidenceDistribution(r.Context(), sess.ID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":      sess,
		"distribution": dist,
	})
}

func (s *Server) handleSessionCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleSessionNext(w http.ResponseWriter, r *http.Request) {
	batch, err := s.sessions.NextBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch": batch})
}

func (s *Server) handleSessionSkip(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Skip(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "skipped"})
}

func (s *Server) handleSessionFeedback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Feedback []model.Feedback `json:"feedback"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id := chi.URLParam(r, "id")
	corrections, err := s.sessions.ProcessFeedback(r.Context(), id, req.Feedback)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	for _, c := range corrections {
		if err := s.store.SaveCorrection(r.Context(), &c); err != nil {
			zap.L().Warn("server: save correction failed",
				zap.String("session", id),
				zap.Error(err),
			)
		}
	}
	s.persistCompleted(r, id)
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": string(sess.Status)})
}

func (s *Server) handleSessionBulkConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Threshold float64 `json:"threshold"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id := chi.URLParam(r, "id")
	n, err := s.sessions.BulkConfirm(r.Context(), id, req.Threshold)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.persistCompleted(r, id)
	writeJSON(w, http.StatusOK, map[string]any{"confirmed": n})
}

func (s *Server) handleSessionConfirmAll(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := s.sessions.ConfirmAll(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.persistCompleted(r, id)
	writeJSON(w, http.StatusOK, map[string]any{"confirmed": n})
}

// persistCompleted saves confirmed items and a session snapshot once a
// session reaches a terminal confirmed state. Failures are logged, not
// surfaced; the session itself already holds the reviewed items.
func (s *Server) persistCompleted(r *http.Request, id string) {
	if s.store == nil {
		return
	}
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil || sess.Status != model.SessionCompleted {
		return
	}
	if len(sess.Confirmed) > 0 {
		if _, err := s.store.SaveItems(r.Context(), sess.Confirmed); err != nil {
			zap.L().Error("server: persist session items",
				zap.String("session", id), zap.Error(err))
		}
	}
	if err := s.store.SaveSession(r.Context(), sess); err != nil {
		zap.L().Error("server: persist session snapshot",
			zap.String("session", id), zap.Error(err))
	}
}

func (s *Server) handleSessionSample(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(r.URL.Query().Get("n"))
	if n <= 0 {
		n = s.cfg.Session.BatchSize
	}
	sample, err := s.sessions.Sample(r.Context(), chi.URLParam(r, "id"), n)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sample": sample})
}

// handleLearn runs batch learning over the tenant's stored corrections and
// optionally folds the outcome back into one template.
func (s *Server) handleLearn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID   string `json:"tenant_id"`
		SessionID  string `json:"session_id,omitempty"`
		TemplateID string `json:"template_id,omitempty"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.TenantID == "" {
		writeError(w, http.StatusBadRequest, eris.New("tenant_id is required"))
		return
	}

	corrections, err := s.store.ListCorrections(r.Context(), req.TenantID, req.SessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	learner := learn.NewLearner(s.cfg.Learn.MinPatternSupport)
	result := learner.Learn(corrections, len(corrections))

	if req.TemplateID != "" && len(corrections) > 0 {
		tpl, err := s.store.GetTemplate(r.Context(), req.TemplateID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		accuracy := 1.0 - float64(len(result.Patterns))/float64(len(corrections)+1)
		learner.UpdateTemplate(tpl, result, accuracy)
		if err := s.store.SaveTemplate(r.Context(), tpl); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTemplateList(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, eris.New("tenant_id is required"))
		return
	}
	templates, err := s.store.ListTemplates(r.Context(), tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

func (s *Server) handleTemplateGet(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.store.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (s *Server) handleTemplateDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteTemplate(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleReviewList(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, eris.New("tenant_id is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.store.ListReview(r.Context(), tenantID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleReviewResolve(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ResolveReview(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func (s *Server) handleItemList(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, eris.New("tenant_id is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	items, err := s.store.ListItems(r.Context(), store.ItemFilter{
		TenantID: tenantID,
		ItemType: r.URL.Query().Get("item_type"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(addr string, shutdown <-chan struct{}) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-shutdown
		zap.L().Info("server: shutting down")
		_ = srv.Close()
	}()

	zap.L().Info("server: listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}
