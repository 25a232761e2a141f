package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/jo-hoe/leafdoctor/internal/common"
	"github.com/jo-hoe/leafdoctor/internal/util"
)

// requestID takes X-Request-Id from the client or assigns a new UUID, stores it
// where chi's GetReqID finds it and echoes it on the response.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(common.HeaderRequestID))
		if id == "" || len(id) > 128 {
			id = util.NewID()
		}
		w.Header().Set(common.HeaderRequestID, id)
		ctx := context.WithValue(r.Context(), chimw.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.Info("http",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).String(),
				"remote", r.RemoteAddr,
				"request_id", chimw.GetReqID(r.Context()))
		})
	}
}

func recoveryMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Error("panic", "err", fmt.Sprint(rec), "path", r.URL.Path, "request_id", chimw.GetReqID(r.Context()))
					http.Error(w, "internal error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// securityHeaders sets recommended security headers on every response.
// The camera stays allowed for this origin since the page captures photos.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(self)")
		h.Set("Content-Security-Policy", "default-src 'self'; img-src 'self' blob: data:; media-src 'self' blob:")
		next.ServeHTTP(w, r)
	})
}

// maxTrackedClients bounds the limiter map; the least recently seen client is evicted beyond it.
const maxTrackedClients = 10000

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ipLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rate      rate.Limit
	burst     int
	idleTTL   time.Duration
	maxSize   int
	lastSweep time.Time
	now       func() time.Time
}

// newIPLimiter forgets a client once it has been idle for idleTTL. By then its
// bucket would have refilled, so dropping it changes nothing for that client.
func newIPLimiter(r rate.Limit, burst int, idleTTL time.Duration) *ipLimiter {
	return &ipLimiter{
		visitors: make(map[string]*visitor),
		rate:     r,
		burst:    burst,
		idleTTL:  idleTTL,
		maxSize:  maxTrackedClients,
		now:      time.Now,
	}
}

func (ipl *ipLimiter) get(ip string) *rate.Limiter {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()

	now := ipl.now()
	if now.Sub(ipl.lastSweep) >= ipl.idleTTL {
		ipl.sweep(now)
	}

	v, ok := ipl.visitors[ip]
	if !ok {
		if len(ipl.visitors) >= ipl.maxSize {
			ipl.sweep(now)
			if len(ipl.visitors) >= ipl.maxSize {
				ipl.evictOldest()
			}
		}
		v = &visitor{limiter: rate.NewLimiter(ipl.rate, ipl.burst)}
		ipl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// sweep drops clients idle for at least idleTTL. Callers hold mu.
func (ipl *ipLimiter) sweep(now time.Time) {
	for ip, v := range ipl.visitors {
		if now.Sub(v.lastSeen) >= ipl.idleTTL {
			delete(ipl.visitors, ip)
		}
	}
	ipl.lastSweep = now
}

func (ipl *ipLimiter) evictOldest() {
	var oldestIP string
	var oldest time.Time
	for ip, v := range ipl.visitors {
		if oldestIP == "" || v.lastSeen.Before(oldest) {
			oldestIP, oldest = ip, v.lastSeen
		}
	}
	delete(ipl.visitors, oldestIP)
}

func (ipl *ipLimiter) size() int {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()
	return len(ipl.visitors)
}

// rateLimit allows perMinute submissions per client IP with the given burst.
// A non-positive perMinute disables limiting.
func rateLimit(perMinute, burst int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(h http.Handler) http.Handler { return h }
	}
	return newRateLimiter(perMinute, burst).middleware
}

func newRateLimiter(perMinute, burst int) *ipLimiter {
	if burst <= 0 {
		burst = 1
	}
	interval := time.Minute / time.Duration(perMinute)
	idle := time.Duration(burst) * interval
	if idle < time.Minute {
		idle = time.Minute
	}
	return newIPLimiter(rate.Every(interval), burst, idle)
}

func (ipl *ipLimiter) middleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ipl.get(clientIP(r)).Allow() {
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// clientIP keys on RemoteAddr. Forwarding headers only reach it through chi's
// RealIP, which Routes installs when server.trustProxy is set.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
