package server

import (
	"encoding/json"
	"html/template"
	"io"
	"log/slog"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/jo-hoe/leafdoctor/internal/common"
	"github.com/jo-hoe/leafdoctor/internal/config"
	"github.com/jo-hoe/leafdoctor/internal/diagnosis"
	"github.com/jo-hoe/leafdoctor/internal/storage"
	"github.com/jo-hoe/leafdoctor/internal/web"
)

// multipartOverhead is allowed on top of the image limit for boundaries and form fields.
const multipartOverhead = 1 << 20

type Service struct {
	Log       *slog.Logger
	Cfg       *config.Config
	Requester *diagnosis.Requester
	Reader    *storage.Reader
	Templates *template.Template // defaults to web.Templates
}

// NewHTTPServer builds the http.Server with routes and middleware.
func NewHTTPServer(svc *Service) *http.Server {
	return &http.Server{
		Addr:         svc.Cfg.Server.Addr,
		Handler:      svc.Routes(),
		ReadTimeout:  svc.Cfg.Server.ReadTimeout,
		WriteTimeout: svc.Cfg.Server.WriteTimeout,
		IdleTimeout:  svc.Cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(svc.logger().Handler(), slog.LevelError),
	}
}

// Routes returns the router serving the page, the JSON API and static assets.
func (svc *Service) Routes() http.Handler {
	log := svc.logger()

	r := chi.NewRouter()
	r.Use(requestID)
	if svc.Cfg.Server.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))
	r.Use(securityHeaders)

	r.Get(common.PathHealthz, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle(common.PathStatic+"*", http.StripPrefix(common.PathStatic, http.FileServer(http.FS(web.StaticFS))))
	r.Get(common.PathIndex, svc.handleIndex)

	r.Group(func(r chi.Router) {
		r.Use(rateLimit(svc.Cfg.Server.RatePerMinute, svc.Cfg.Server.RateBurst))
		r.Use(svc.limitBody)
		r.Post(common.PathDiagnose, svc.handleDiagnoseForm)
		r.Post(common.PathDiagnoses, svc.handleDiagnoseAPI)
	})
	return r
}

func (svc *Service) logger() *slog.Logger {
	// Fallback to a discard logger if none provided to avoid nil deref in tests or minimal setups.
	if svc.Log == nil {
		return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	return svc.Log
}

func (svc *Service) templates() *template.Template {
	if svc.Templates != nil {
		return svc.Templates
	}
	return web.Templates
}

func (svc *Service) maxUpload() int64 {
	return svc.Cfg.Server.MaxUploadSize.Int64()
}

// bodyLimit is the largest accepted request body: one image plus multipart framing.
func (svc *Service) bodyLimit() int64 {
	limit := svc.maxUpload()
	if limit > math.MaxInt64-multipartOverhead {
		return math.MaxInt64
	}
	return limit + multipartOverhead
}

func (svc *Service) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if svc.maxUpload() > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, svc.bodyLimit())
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(common.HeaderContentType, common.ContentTypeJSON)
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(v)
}
