package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/paperstudio/platform/internal/auth"
	"github.com/paperstudio/platform/internal/chat"
	"github.com/paperstudio/platform/internal/config"
	"github.com/paperstudio/platform/internal/intelligence"
	"github.com/paperstudio/platform/internal/policy"
	"github.com/paperstudio/platform/internal/storage"
	"github.com/paperstudio/platform/internal/store"
	"github.com/paperstudio/platform/internal/studio"
	"github.com/paperstudio/platform/internal/upload"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run() error {
	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := store.New(ctx, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	backends := storage.Load(ctx, cfg.Storage.Backends, log.Logger)
	if len(backends) > 0 {
		log.Info().Int("count", len(backends)).Msg("storage backends enabled")
	}
	objects := storage.NewFanout(backends, cfg.Storage.Strict, log.Logger)

	intel := intelligence.NewClient(cfg.Intelligence.BaseURL)
	validator := policy.NewFileValidatorFromEnv()
	issuer := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL)
	identity := auth.NewService(db, issuer, auth.NewBroadcaster(), cfg.Server.SiteURL, cfg.Auth.ConfirmationTTL, log.Logger)

	srv := &apiServer{
		db:        db,
		objects:   objects,
		intel:     intel,
		validator: validator,
		identity:  identity,
		uploads:   upload.NewRegistry(),
		uploader:  upload.NewOrchestrator(validator, intel, objects, db, log.Logger),
		chats:     chat.NewManager(),
		studios:   studio.NewManager(),
		logger:    log.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", srv.handleSignUp)
		r.Post("/signin", srv.handleSignIn)
		r.Post("/signout", srv.handleSignOut)
		r.Get("/session", srv.handleSession)
		r.Get("/confirm", srv.handleConfirmQuery)
		r.Post("/confirm", srv.handleConfirmTokens)
		r.Get("/events", srv.handleSessionEvents)
	})

	r.Group(func(r chi.Router) {
		r.Use(srv.requireUser)
		r.Post("/documents", srv.handleUpload)
		r.Get("/uploads/{id}/progress", srv.handleUploadProgress)
		r.Get("/documents", srv.handleListDocuments)
		r.Get("/documents/{id}", srv.handleGetDocument)
		r.Delete("/documents/{id}", srv.handleDeleteDocument)
		r.Get("/documents/{id}/download", srv.handleDownloadURL)
		r.Get("/documents/{id}/chat", srv.handleChatState)
		r.Post("/documents/{id}/chat/index", srv.handleChatIndex)
		r.Post("/documents/{id}/chat/messages", srv.handleChatSend)
		r.Get("/documents/{id}/studio", srv.handleStudioState)
		r.Post("/documents/{id}/studio/summary", srv.handleGenerateSummary)
		r.Post("/documents/{id}/studio/quiz", srv.handleGenerateQuiz)
		r.Post("/documents/{id}/studio/mind-map", srv.handleGenerateMindMap)
		r.Get("/documents/{id}/studio/mind-map", srv.handleDownloadMindMap)
		r.Post("/documents/{id}/studio/faqs", srv.handleGenerateFAQ)
		r.Post("/documents/{id}/studio/quiz/answers", srv.handleQuizAnswer)
		r.Post("/documents/{id}/studio/quiz/next", srv.handleQuizNext)
		r.Post("/documents/{id}/studio/quiz/prev", srv.handleQuizPrev)
		r.Post("/documents/{id}/studio/quiz/submit", srv.handleQuizSubmit)
		r.Post("/documents/{id}/studio/quiz/reset", srv.handleQuizReset)
	})

	log.Info().Str("addr", cfg.Server.Bind).Msg("server listening")
	return http.ListenAndServe(cfg.Server.Bind, r)
}

type apiServer struct {
	db        *store.Store
	objects   *storage.Fanout
	intel     *intelligence.Client
	validator *policy.FileValidator
	identity  *auth.Service
	uploads   *upload.Registry
	uploader  *upload.Orchestrator
	chats     *chat.Manager
	studios   *studio.Manager
	logger    zerolog.Logger
}

type ctxKey int

const userKey ctxKey = iota

// requireUser authenticates the bearer token and stashes the user in the
// request context.
func (s *apiServer) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		user, err := s.identity.SessionUser(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid session")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

func currentUser(r *http.Request) *store.User {
	user, _ := r.Context().Value(userKey).(*store.User)
	return user
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

// corsMiddleware allows browser calls from the SPA dev server.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
