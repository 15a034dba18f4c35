package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"articleforge/internal/service"
	"articleforge/internal/store"
)

// envelope is the fixed response shape every endpoint serializes to:
// {success, data?, message?, errors?, error?}.
type envelope struct {
	Success bool              `json:"success"`
	Data    any               `json:"data,omitempty"`
	Message string            `json:"message,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
	Error   string            `json:"error,omitempty"`
}

type articleRequest struct {
	Title             *string    `json:"title"`
	Slug              *string    `json:"slug"`
	Content           *string    `json:"content"`
	SourceURL         *string    `json:"source_url"`
	IsEnhanced        *bool      `json:"is_enhanced"`
	OriginalArticleID *int64     `json:"original_article_id"`
	References        []string   `json:"references"`
	EnhancedAt        *time.Time `json:"enhanced_at"`
	EnhancedBy        *string    `json:"enhanced_by"`
}

func (s *Server) listArticles(w http.ResponseWriter, r *http.Request) {
	filter := store.Filter{}
	q := r.URL.Query()
	if v := q.Get("original_only"); v != "" {
		only, err := strconv.ParseBool(v)
		if err != nil {
			writeEnvelope(w, http.StatusUnprocessableEntity, envelope{
				Success: false,
				Message: "Validation failed",
				Errors:  map[string]string{"original_only": "must be a boolean"},
			})
			return
		}
		filter.OriginalsOnly = only
	}
	if v := q.Get("original_article_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeEnvelope(w, http.StatusUnprocessableEntity, envelope{
				Success: false,
				Message: "Validation failed",
				Errors:  map[string]string{"original_article_id": "must be an integer"},
			})
			return
		}
		filter.OriginalArticleID = &id
	}

	articles, err := s.svc.List(r.Context(), filter)
	if err != nil {
		s.fail(w, "Failed to fetch articles", err)
		return
	}
	writeEnvelope(w, http.StatusOK, envelope{Success: true, Data: articles})
}

func (s *Server) createArticle(w http.ResponseWriter, r *http.Request) {
	var req articleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusUnprocessableEntity, envelope{
			Success: false,
			Message: "Validation failed",
			Errors:  map[string]string{"body": "invalid JSON"},
		})
		return
	}

	in := service.CreateInput{
		IsEnhanced:        req.IsEnhanced,
		OriginalArticleID: req.OriginalArticleID,
		References:        req.References,
		EnhancedAt:        req.EnhancedAt,
	}
	if req.Title != nil {
		in.Title = *req.Title
	}
	if req.Slug != nil {
		in.Slug = *req.Slug
	}
	if req.Content != nil {
		in.Content = *req.Content
	}
	if req.SourceURL != nil {
		in.SourceURL = *req.SourceURL
	}
	if req.EnhancedBy != nil {
		in.EnhancedBy = *req.EnhancedBy
	}

	a, err := s.svc.Create(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, "Failed to create article", err)
		return
	}
	writeEnvelope(w, http.StatusCreated, envelope{
		Success: true,
		Message: "Article created successfully",
		Data:    a,
	})
}

func (s *Server) getArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	detail, err := s.svc.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, "Failed to fetch article", err)
		return
	}
	writeEnvelope(w, http.StatusOK, envelope{Success: true, Data: detail})
}

func (s *Server) updateArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req articleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusUnprocessableEntity, envelope{
			Success: false,
			Message: "Validation failed",
			Errors:  map[string]string{"body": "invalid JSON"},
		})
		return
	}

	a, err := s.svc.Update(r.Context(), id, service.UpdateInput{
		Title:             req.Title,
		Slug:              req.Slug,
		Content:           req.Content,
		SourceURL:         req.SourceURL,
		IsEnhanced:        req.IsEnhanced,
		OriginalArticleID: req.OriginalArticleID,
		References:        req.References,
		EnhancedAt:        req.EnhancedAt,
		EnhancedBy:        req.EnhancedBy,
	})
	if err != nil {
		s.writeServiceError(w, "Failed to update article", err)
		return
	}
	writeEnvelope(w, http.StatusOK, envelope{
		Success: true,
		Message: "Article updated successfully",
		Data:    a,
	})
}

func (s *Server) deleteArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := s.svc.Delete(r.Context(), id); err != nil {
		s.writeServiceError(w, "Failed to delete article", err)
		return
	}
	writeEnvelope(w, http.StatusOK, envelope{
		Success: true,
		Message: "Article deleted successfully",
	})
}

func (s *Server) getComparison(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	version := 0
	if v := r.URL.Query().Get("version"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeEnvelope(w, http.StatusUnprocessableEntity, envelope{
				Success: false,
				Message: "Validation failed",
				Errors:  map[string]string{"version": "must be a positive integer"},
			})
			return
		}
		version = n
	}
	cmp, err := s.svc.Comparison(r.Context(), id, version)
	if err != nil {
		s.writeServiceError(w, "Failed to fetch comparison", err)
		return
	}
	writeEnvelope(w, http.StatusOK, envelope{Success: true, Data: cmp})
}

// runAutomation shells out to the enhancement pipeline and blocks until it
// finishes, returning the combined output. Long but deliberate: the streamed
// variant lives on the orchestrator.
func (s *Server) runAutomation(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeEnvelope(w, http.StatusInternalServerError, envelope{
			Success: false,
			Message: "Automation is not configured on this server",
		})
		return
	}
	output, exitCode, err := s.runner.RunCombined(r.Context(), "enhance")
	if err != nil {
		s.fail(w, "Failed to run automation", err)
		return
	}
	if output == "" {
		writeEnvelope(w, http.StatusInternalServerError, envelope{
			Success: false,
			Message: "Automation produced no output",
		})
		return
	}
	writeEnvelope(w, http.StatusOK, envelope{
		Success: true,
		Message: "Automation executed",
		Data: map[string]any{
			"output":      output,
			"return_code": exitCode,
		},
	})
}

func (s *Server) writeServiceError(w http.ResponseWriter, message string, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeEnvelope(w, http.StatusUnprocessableEntity, envelope{
			Success: false,
			Message: "Validation failed",
			Errors:  verr.Fields,
		})
	case errors.Is(err, store.ErrNotFound):
		writeEnvelope(w, http.StatusNotFound, envelope{
			Success: false,
			Message: "Article not found",
		})
	default:
		s.fail(w, message, err)
	}
}

func (s *Server) fail(w http.ResponseWriter, message string, err error) {
	s.logger.Error(message, zap.Error(err))
	writeEnvelope(w, http.StatusInternalServerError, envelope{
		Success: false,
		Message: message,
		Error:   err.Error(),
	})
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeEnvelope(w, http.StatusNotFound, envelope{
			Success: false,
			Message: "Article not found",
		})
		return 0, false
	}
	return id, true
}

func writeEnvelope(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}
