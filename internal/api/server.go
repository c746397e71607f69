// Package api exposes the HTTP surface: submissions, canvas listing, public
// code lookup and media URLs. All placement logic lives in admission; the
// handlers here only translate the wire format.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AppachchiCodes/The-Human-Monument/internal/admission"
	"github.com/AppachchiCodes/The-Human-Monument/internal/config"
	"github.com/AppachchiCodes/The-Human-Monument/internal/model"
	"github.com/AppachchiCodes/The-Human-Monument/internal/ratelimit"
	"github.com/AppachchiCodes/The-Human-Monument/internal/shortid"
	"github.com/AppachchiCodes/The-Human-Monument/internal/storage"
)

// MediaSigner produces retrievable URLs for payload blobs.
type MediaSigner interface {
	PresignGet(ctx context.Context, objectKey string, ttl time.Duration) (string, error)
}

// Server exposes HTTP endpoints for contributions.
type Server struct {
	cfg         *config.Config
	store       storage.Store
	svc         *admission.Service
	media       MediaSigner
	submitLimit *ratelimit.Limiter
	readLimit   *ratelimit.Limiter
	log         *logrus.Logger
	server      *http.Server
	once        sync.Once
}

// New constructs a Server. media may be nil when no blob store is wired;
// limiters may be nil to disable rate limiting (tests, dev mode).
func New(cfg *config.Config, store storage.Store, svc *admission.Service, media MediaSigner, submitLimit, readLimit *ratelimit.Limiter, log *logrus.Logger) *Server {
	return &Server{
		cfg:         cfg,
		store:       store,
		svc:         svc,
		media:       media,
		submitLimit: submitLimit,
		readLimit:   readLimit,
		log:         log,
	}
}

// Handler builds the route table. Exposed separately from Run for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/contributions", s.handleContributions)
	mux.HandleFunc("/contributions/", s.handleContributionRoute)
	return s.corsMiddleware(s.loggingMiddleware(mux))
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:    s.cfg.Address,
			Handler: s.Handler(),
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.WithField("address", s.cfg.Address).Info("api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleContributions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !s.allow(w, r, s.submitLimit, "Too many contributions from this address. Please try again later.") {
			return
		}
		s.handleSubmit(w, r)
	case http.MethodGet:
		if !s.allow(w, r, s.readLimit, "Too many requests. Please slow down.") {
			return
		}
		s.handleList(w, r)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleContributionRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.allow(w, r, s.readLimit, "Too many requests. Please slow down.") {
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/contributions/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	if parts[0] == "stats" {
		s.handleStats(w, r)
		return
	}
	code := strings.ToUpper(parts[0])
	if len(parts) == 1 {
		s.handleLookup(w, r, code)
		return
	}
	if parts[1] == "media" {
		s.handleMedia(w, r, code)
		return
	}
	respondError(w, http.StatusNotFound, "not found")
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes()+1024*1024)

	req, err := s.decodeSubmit(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.SourceAddr = clientIP(r)

	c, err := s.svc.Submit(ctx, *req)
	if err != nil {
		switch {
		case errors.Is(err, admission.ErrValidation):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			s.log.WithError(err).Error("submission failed")
			respondError(w, http.StatusInternalServerError, "could not create contribution")
		}
		return
	}
	respondJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: "Contribution created successfully",
		Data:    publicView(c),
	})
}

// decodeSubmit accepts either a JSON body (TEXT, DRAWING) or a multipart
// form carrying an image or audio file alongside the kind field.
func (s *Server) decodeSubmit(r *http.Request) (*admission.Request, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		return s.decodeMultipart(r)
	}
	var body struct {
		Kind    string `json:"kind"`
		Content string `json:"content"`
		Drawing string `json:"drawing"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, errors.New("expecting a JSON or multipart body")
	}
	return &admission.Request{
		Kind:    model.Kind(strings.ToUpper(body.Kind)),
		Content: body.Content,
		Drawing: body.Drawing,
	}, nil
}

func (s *Server) decodeMultipart(r *http.Request) (*admission.Request, error) {
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes()); err != nil {
		return nil, errors.New("could not parse multipart form")
	}
	req := &admission.Request{
		Kind:    model.Kind(strings.ToUpper(r.FormValue("kind"))),
		Content: r.FormValue("content"),
		Drawing: r.FormValue("drawing"),
	}
	for _, field := range []string{"image", "audio"} {
		file, _, err := r.FormFile(field)
		if err != nil {
			continue
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("could not read %s upload", field)
		}
		req.Data = data
		break
	}
	return req, nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", s.cfg.PageLimit)
	if page < 1 || limit < 1 || limit > s.cfg.PageLimitCap {
		respondError(w, http.StatusBadRequest, "invalid pagination parameters")
		return
	}
	result, err := s.store.List(r.Context(), page, limit)
	if err != nil {
		s.log.WithError(err).Error("list failed")
		respondError(w, http.StatusInternalServerError, "could not list contributions")
		return
	}
	views := make([]contributionView, 0, len(result.Contributions))
	for i := range result.Contributions {
		views = append(views, publicView(&result.Contributions[i]))
	}
	respondJSON(w, http.StatusOK, envelope{
		Success: true,
		Data:    views,
		Pagination: &pagination{
			Page:  result.Page,
			Limit: result.Limit,
			Total: result.Total,
			Pages: result.Pages,
		},
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.log.WithError(err).Error("stats failed")
		respondError(w, http.StatusInternalServerError, "could not compute stats")
		return
	}
	respondJSON(w, http.StatusOK, envelope{Success: true, Data: stats})
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request, code string) {
	if !shortid.Valid(code) {
		respondError(w, http.StatusBadRequest, "invalid contribution code format")
		return
	}
	c, err := s.store.GetByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "contribution not found")
			return
		}
		s.log.WithError(err).Error("lookup failed")
		respondError(w, http.StatusInternalServerError, "could not look up contribution")
		return
	}
	respondJSON(w, http.StatusOK, envelope{Success: true, Data: publicView(c)})
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request, code string) {
	if !shortid.Valid(code) {
		respondError(w, http.StatusBadRequest, "invalid contribution code format")
		return
	}
	c, err := s.store.GetByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "contribution not found")
			return
		}
		s.log.WithError(err).Error("lookup failed")
		respondError(w, http.StatusInternalServerError, "could not look up contribution")
		return
	}
	if c.ObjectKey == "" || s.media == nil {
		respondError(w, http.StatusNotFound, "contribution has no media")
		return
	}
	url, err := s.media.PresignGet(r.Context(), c.ObjectKey, s.cfg.SignedURLTTL)
	if err != nil {
		s.log.WithError(err).Error("presign failed")
		respondError(w, http.StatusInternalServerError, "could not generate media url")
		return
	}
	respondJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]string{"url": url}})
}

// allow applies a rate limiter; a nil limiter always passes. Limiter errors
// fail open so a Redis outage does not take submissions down with it.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, limiter *ratelimit.Limiter, msg string) bool {
	if limiter == nil {
		return true
	}
	ok, retry, err := limiter.Allow(r.Context(), clientIP(r))
	if err != nil {
		s.log.WithError(err).Warn("rate limiter unavailable")
		return true
	}
	if !ok {
		s.log.WithField("ip", clientIP(r)).Warn("rate limit exceeded")
		w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
		respondError(w, http.StatusTooManyRequests, msg)
		return false
	}
	return true
}

type envelope struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	Pagination *pagination `json:"pagination,omitempty"`
}

type pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type contributionView struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content,omitempty"`
	HasMedia  bool      `json:"hasMedia"`
	CreatedAt time.Time `json:"createdAt"`
}

func publicView(c *model.Contribution) contributionView {
	return contributionView{
		ID:        c.ID,
		Code:      c.PublicCode,
		X:         c.X,
		Y:         c.Y,
		Kind:      string(c.Kind),
		Content:   c.Content,
		HasMedia:  c.ObjectKey != "",
		CreatedAt: c.CreatedAt,
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, envelope{Success: false, Error: msg})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return parsed
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, found := strings.Cut(fwd, ","); found {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Info("request")
	})
}
