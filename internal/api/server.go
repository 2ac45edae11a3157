// Package api serves read-only rarity queries over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/plates-cli/internal/model"
)

// Querier answers the rarity questions exposed by the API.
type Querier interface {
	TotalRecordCount(ctx context.Context) (int64, error)
	Check(ctx context.Context, v int) (model.SegmentStatistic, error)
	Leaderboard(ctx context.Context, n int, rarest bool) ([]model.SegmentCount, error)
}

// Options configures the HTTP server.
type Options struct {
	AllowedOrigins []string
	RateLimit      float64 // requests per second across all clients
	RateBurst      int
}

// Server routes HTTP requests to a Querier.
type Server struct {
	q       Querier
	opts    Options
	limiter *rate.Limiter
}

// New creates a Server. A zero RateLimit disables rate limiting.
func New(q Querier, opts Options) *Server {
	s := &Server{q: q, opts: opts}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return s
}

// Handler builds the router with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", handler(s.getHealth))

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Get("/count", handler(s.getCount))
		r.Get("/segments/{value}", handler(s.getSegment))
		r.Get("/top", handler(s.getTop))
	})

	return r
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, r, errTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func handler(f func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := f(w, r); err != nil {
			writeError(w, r, err)
		}
	}
}
