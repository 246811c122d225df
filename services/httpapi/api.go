package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"allepoints-backend/services/collector"
	"allepoints-backend/services/directory"
	"allepoints-backend/services/pointstore"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

type Options struct {
	// static bearer token the dashboard sends, empty leaves the api
	// open
	AccessToken string
	// browser origins allowed to call us, defaults to every origin
	AllowedOrigins []string
	// requests per minute per ip, 0 disables rate limiting
	RateLimit int
	// how long points and history reads may be served from cache
	CacheTTL time.Duration
}

type Handler struct {
	directory  directory.Service
	pointstore pointstore.Store
	collector  *collector.Service
	options    Options

	cache *expirable.LRU[string, []byte]
}

func NewHandler(
	directoryService directory.Service,
	store pointstore.Store,
	collectorService *collector.Service,
	options Options,
) *Handler {
	if options.CacheTTL == 0 {
		options.CacheTTL = time.Second * 30
	}
	return &Handler{
		directory:  directoryService,
		pointstore: store,
		collector:  collectorService,
		options:    options,
		cache:      expirable.NewLRU[string, []byte](2048, nil, options.CacheTTL),
	}
}

// Router builds the full middleware stack around Routes.
func (h *Handler) Router() chi.Router {
	origins := h.options.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	if h.options.RateLimit > 0 {
		r.Use(httprate.Limit(
			h.options.RateLimit,
			1*time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED",
					"too many requests, slow down")
			}),
		))
	}

	h.Routes(r)
	return r
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.Healthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.authMiddleware)

		r.Get("/members", h.ListMembers)
		r.Get("/members/{id}", h.GetMember)
		r.Get("/members/{id}/points", h.GetMemberPoints)
		r.Get("/members/{id}/points/history", h.GetPointsHistory)
		r.Get("/members/{id}/points/series", h.GetPointsSeries)
		r.Get("/points/summary", h.GetSummary)
		r.Post("/sync", h.TriggerSync)
	})
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.options.AccessToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED",
				"no authorization header provided")
			return
		}
		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED",
				"the authorization header must use the Bearer scheme")
			return
		}
		if token != h.options.AccessToken {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED",
				"invalid access token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.InfoContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"took", time.Since(start),
		)
	})
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{
		Error: errorDetail{Code: code, Message: message},
	})
}
