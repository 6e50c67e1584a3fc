package http

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/folio-cms/media/internal/config"
	"github.com/folio-cms/media/internal/content"
	"github.com/folio-cms/media/internal/media"
	"github.com/folio-cms/media/internal/storage"
)

const version = "1.0.0"

type Server struct {
	config       *config.Config
	logger       zerolog.Logger
	urls         *storage.URLManager
	mediaHandler *media.Handler
	normalizer   *content.Normalizer
}

func NewServer(
	cfg *config.Config,
	logger zerolog.Logger,
	urls *storage.URLManager,
	mediaHandler *media.Handler,
	normalizer *content.Normalizer,
) *Server {
	return &Server{
		config:       cfg,
		logger:       logger,
		urls:         urls,
		mediaHandler: mediaHandler,
		normalizer:   normalizer,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.LoggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.HealthCheck)

	// Public config endpoint (no auth required)
	r.Get("/api/config", s.HandleConfig)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.AuthMiddleware)

		r.Route("/media", func(r chi.Router) {
			r.Get("/", s.mediaHandler.HandleList)
			r.Post("/", s.mediaHandler.HandleUpload)
			r.Put("/", s.mediaHandler.HandleReplace)
			r.Delete("/", s.mediaHandler.HandleDelete)

			r.Post("/import", s.mediaHandler.HandleImport)
			r.Post("/copy", s.mediaHandler.HandleCopy)
			r.Get("/exists", s.mediaHandler.HandleExists)
			r.Get("/urls", s.mediaHandler.HandleURLs)
			r.Get("/check", s.mediaHandler.HandleCheck)
			r.Get("/resolve", s.mediaHandler.HandleResolve)
		})

		r.Post("/content/normalize", s.HandleNormalize)
	})

	return r
}

func (s *Server) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("ip", r.RemoteAddr).
			Str("user_agent", r.UserAgent()).
			Msg("request")
	})
}

// AuthMiddleware requires the admin bearer token. Without a configured token
// requests pass in development and are refused in production.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	token := []byte(s.config.AdminAPIToken)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(token) == 0 {
			if s.config.IsProduction() {
				s.logger.Warn().Msg("ADMIN_API_TOKEN is not set, refusing admin request")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), token) != 1 {
			s.logger.Debug().Str("path", r.URL.Path).Msg("authentication failed")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   version,
		"storage":   s.config.StorageDriver,
	})
}

// HandleConfig exposes the public bases so the frontend can build image URLs.
func (s *Server) HandleConfig(w http.ResponseWriter, r *http.Request) {
	bases := s.urls.Bases()

	cdn := bases[storage.URLCustomDomain]
	if cdn == "" {
		cdn = bases[storage.URLDirect]
	}
	if cdn == "" {
		cdn = bases[storage.URLDevDomain]
	}

	writeJSON(w, map[string]any{
		"cdnBaseUrl": cdn,
		"bases":      bases,
	})
}

func (s *Server) HandleNormalize(w http.ResponseWriter, r *http.Request) {
	var req content.NormalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.HTML == "" {
		http.Error(w, "HTML content required", http.StatusBadRequest)
		return
	}

	result, err := s.normalizer.Normalize(r.Context(), &req)
	if err != nil {
		s.logger.Debug().Err(err).Msg("failed to normalize content")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, result)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
