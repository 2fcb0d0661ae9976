package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	errs "igresolver/pkg/errors"
	"igresolver/pkg/logger"
	"igresolver/pkg/resolver"
)

// Pinger reports backend health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers serves the resolver routes
type Handlers struct {
	api    resolver.API
	health Pinger
	logger logger.Logger
}

// NewRouter builds the routes. health may be nil.
func NewRouter(api resolver.API, health Pinger, log logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	h := &Handlers{api: api, health: health, logger: log}

	r := mux.NewRouter()
	r.Use(RequestLogger(log))

	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	ig := r.PathPrefix("/instagram").Subrouter()
	ig.HandleFunc("/p/{shortcode}", h.GetPost).Methods(http.MethodGet)
	ig.HandleFunc("/s/{user_name}", h.GetStories).Methods(http.MethodGet)
	ig.HandleFunc("/s/{user_name}/{story_id}", h.GetStory).Methods(http.MethodGet)
	ig.HandleFunc("/u/{user_name}", h.GetUser).Methods(http.MethodGet)
	return r
}

func (h *Handlers) GetPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.api.GetPost(r.Context(), mux.Vars(r)["shortcode"])
	h.respond(w, r, post, err)
}

func (h *Handlers) GetStories(w http.ResponseWriter, r *http.Request) {
	reel, err := h.api.GetStories(r.Context(), mux.Vars(r)["user_name"])
	h.respond(w, r, reel, err)
}

func (h *Handlers) GetStory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	story, err := h.api.GetStory(r.Context(), vars["user_name"], vars["story_id"])
	h.respond(w, r, story, err)
}

func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.api.GetUser(r.Context(), mux.Vars(r)["user_name"])
	h.respond(w, r, user, err)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			status = map[string]string{"status": "degraded", "cache": err.Error()}
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, status)
}

func (h *Handlers) respond(w http.ResponseWriter, r *http.Request, v interface{}, err error) {
	if err != nil {
		h.logger.WithContext(r.Context()).WithError(err).ErrorWithFields("request failed", map[string]interface{}{
			"path": r.URL.Path,
		})
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// statusFor maps a resolution error to an HTTP status
func statusFor(err error) int {
	switch errs.TypeOf(err) {
	case errs.ErrorTypeInvalidCharacter:
		return http.StatusBadRequest
	case errs.ErrorTypeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
