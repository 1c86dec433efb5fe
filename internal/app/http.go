package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
	log        logr.Logger
	now        func() time.Time
}

func NewHTTPServer(service *Service, corsOrigin string, log logr.Logger) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, log: log, now: time.Now}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withMiddleware)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/ready", s.handleReady)
		r.Post("/search", s.handleSearch)
		r.Post("/impressions", s.handleImpressions)
		r.Get("/tags", s.handleTags)
		r.Get("/admin/ranking", s.handleGetRanking)
		r.Post("/admin/ranking", s.handleUpdateRanking)
		r.Post("/admin/ranking/reload", s.handleReloadRanking)
	})
	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}
	for name, err := range s.service.Ready(ctx) {
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	var body searchRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	q, err := body.toQuery(s.now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := s.service.Search(r.Context(), body.scope(), q, body.Offset, body.Limit, body.record())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *HTTPServer) handleImpressions(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ThreadIDs []int64 `json:"threadIds"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	for _, id := range body.ThreadIDs {
		if err := requirePositive("threadIds", id); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	s.service.RecordImpressions(body.ThreadIDs)
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": len(body.ThreadIDs)})
}

func (s *HTTPServer) handleTags(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	var scope Scope
	for _, raw := range values["channelId"] {
		id, err := parseID("channelId", raw)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		scope.ChannelIDs = append(scope.ChannelIDs, id)
	}
	for field, dst := range map[string]**int64{"authorId": &scope.AuthorID, "collectionUserId": &scope.CollectionUserID} {
		raw := values.Get(field)
		if raw == "" {
			continue
		}
		id, err := parseID(field, raw)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		*dst = &id
	}

	tags, err := s.service.AvailableTags(r.Context(), scope)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if tags == nil {
		tags = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

func (s *HTTPServer) handleGetRanking(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Ranking())
}

func (s *HTTPServer) handleUpdateRanking(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ExplorationFactor *float64 `json:"explorationFactor"`
		StrengthWeight    *float64 `json:"strengthWeight"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	current := s.service.Ranking()
	c, weight := current.ExplorationFactor, current.StrengthWeight
	if body.ExplorationFactor != nil {
		c = *body.ExplorationFactor
	}
	if body.StrengthWeight != nil {
		weight = *body.StrengthWeight
	}
	p, err := s.service.UpdateRanking(r.Context(), c, weight)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *HTTPServer) handleReloadRanking(w http.ResponseWriter, r *http.Request) {
	p, err := s.service.ReloadRanking(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error(err, "request failed", "requestId", requestID(r.Context()), "path", r.URL.Path)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-Id", id)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(writer, r)

		s.log.V(1).Info("request",
			"requestId", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"durationMs", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-Id")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// decodeBody reads a JSON body. An empty body leaves target untouched.
func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func parseID(field, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, validationError(field, field+" must be an integer")
	}
	if err := requirePositive(field, id); err != nil {
		return 0, err
	}
	return id, nil
}
