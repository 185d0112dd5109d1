// Package server is the composition root: it turns a config.Config into a
// running HTTP server.
//
// DEPENDENCY INJECTION FLOW:
//
//	config → store (sqlite | memory)
//	       → cache (redis | memory) → blocklist
//	       → file storage (local | s3)
//	       → mailer (smtp | log)
//	       → services → handlers → routes
//
// Everything is built in New and handed down explicitly; nothing below this
// package reads the environment or holds process-wide state.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/sakif/smilecook/internal/auth"
	"github.com/sakif/smilecook/internal/cache"
	"github.com/sakif/smilecook/internal/config"
	"github.com/sakif/smilecook/internal/handler"
	"github.com/sakif/smilecook/internal/mailer"
	"github.com/sakif/smilecook/internal/metrics"
	"github.com/sakif/smilecook/internal/middleware"
	"github.com/sakif/smilecook/internal/repository"
	"github.com/sakif/smilecook/internal/repository/memory"
	sqliteRepo "github.com/sakif/smilecook/internal/repository/sqlite"
	"github.com/sakif/smilecook/internal/service"
	"github.com/sakif/smilecook/internal/storage"
)

// shutdownTimeout is how long in-flight requests get after SIGINT/SIGTERM.
const shutdownTimeout = 30 * time.Second

// Server owns the router and every resource that must be released on
// shutdown (database pool, redis client).
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	cache   cache.Cache
	closers []io.Closer
}

// New builds every dependency described by cfg and registers the routes.
// On error, whatever was already opened is closed again.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		metrics: metrics.New(),
	}

	if err := s.setup(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) setup(ctx context.Context) error {
	recipes, users, err := s.openStore(ctx)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	c, err := s.openCache(ctx)
	if err != nil {
		return fmt.Errorf("connecting cache: %w", err)
	}
	s.cache = c

	files, uploadDir, err := s.openStorage(ctx)
	if err != nil {
		return fmt.Errorf("opening file storage: %w", err)
	}

	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.AccessTokenTTL, s.config.RefreshTokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	blocklist := auth.NewBlocklist(c)
	passwords := auth.NewPasswordService()

	baseURL := s.config.PublicBaseURL
	activation := func(token string) string {
		return baseURL + "/users/activate/" + token
	}

	images := storage.NewProcessor(s.config.ImageWorkers)

	recipeSvc := service.NewRecipeService(recipes, users, c, files, images, s.metrics, s.logger)
	userSvc := service.NewUserService(users, passwords, tokens, s.newMailer(), files, images, activation, s.metrics, s.logger)
	authSvc := service.NewAuthService(users, passwords, tokens, blocklist, s.logger)

	s.routes(routeDeps{
		recipes:   handler.NewRecipeHandler(recipeSvc, baseURL, s.logger),
		users:     handler.NewUserHandler(userSvc, recipeSvc, baseURL, s.logger),
		tokens:    handler.NewTokenHandler(authSvc, s.logger),
		authn:     auth.NewAuthenticator(tokens, blocklist, s.logger),
		uploadDir: uploadDir,
	})
	return nil
}

func (s *Server) openStore(ctx context.Context) (repository.RecipeRepository, repository.UserRepository, error) {
	if s.config.Store == config.StoreMemory {
		s.logger.Warn("using in-memory store; data is lost on restart")
		return memory.NewRecipeStore(), memory.NewUserStore(), nil
	}

	// Make sure the data directory exists (like `mkdir -p`).
	if dir := filepath.Dir(s.config.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	db, err := sqliteRepo.New(ctx, s.config.DBPath)
	if err != nil {
		return nil, nil, err
	}
	s.closers = append(s.closers, db)
	return db.Recipes(), db.Users(), nil
}

func (s *Server) openCache(ctx context.Context) (cache.Cache, error) {
	if s.config.RedisAddr == "" {
		return cache.NewMemory(), nil
	}

	r, err := cache.NewRedis(ctx, cache.RedisOptions{
		Addr:      s.config.RedisAddr,
		Password:  s.config.RedisPassword,
		DB:        s.config.RedisDB,
		Namespace: "smilecook:",
	})
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, r)
	return r, nil
}

// openStorage returns the file backend and, for local storage, the
// directory to serve under /uploads.
func (s *Server) openStorage(ctx context.Context) (storage.Storage, string, error) {
	if s.config.Storage == config.StorageS3 {
		st, err := storage.NewS3(ctx, storage.S3Options{
			Region:    s.config.S3Region,
			Endpoint:  s.config.S3Endpoint,
			AccessKey: s.config.S3AccessKey,
			SecretKey: s.config.S3SecretKey,
			Bucket:    s.config.S3Bucket,
			PublicURL: s.config.S3PublicURL,
		})
		return st, "", err
	}

	local, err := storage.NewLocal(s.config.UploadDir, s.config.PublicBaseURL)
	if err != nil {
		return nil, "", err
	}
	return local, local.Root(), nil
}

func (s *Server) newMailer() mailer.Mailer {
	if s.config.SMTPHost == "" {
		s.logger.Warn("SMTP_HOST not set; activation emails are only logged")
		return mailer.NewLog(s.logger)
	}
	return mailer.NewSMTP(mailer.SMTPConfig{
		Host:     s.config.SMTPHost,
		Port:     s.config.SMTPPort,
		Username: s.config.SMTPUsername,
		Password: s.config.SMTPPassword,
		From:     s.config.SMTPFrom,
	})
}

type routeDeps struct {
	recipes   *handler.RecipeHandler
	users     *handler.UserHandler
	tokens    *handler.TokenHandler
	authn     *auth.Authenticator
	uploadDir string
}

// routes registers middleware and handlers.
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID  - tags each request (logged by Logger)
//  2. RealIP     - client IP from proxy headers, used by the rate limiter;
//     only mounted with TRUST_PROXY_HEADERS, since the headers are
//     client-controlled otherwise
//  3. Recoverer  - panics become 500s
//  4. Logger     - one line per request
//  5. Metrics    - prometheus counters by route pattern
//  6. CORS
//
// The rate limiter only guards the API; /healthz and /metrics stay open
// for health checkers and scrapers.
func (s *Server) routes(d routeDeps) {
	s.router.Use(chimiddleware.RequestID)
	if s.config.TrustProxyHeaders {
		s.router.Use(chimiddleware.RealIP)
	}
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(cors.New(cors.Options{
		AllowedOrigins: s.config.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{"Retry-After", "X-Request-Id"},
		// Tokens travel in the Authorization header, never in cookies.
		AllowCredentials: false,
	}).Handler)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	if d.uploadDir != "" {
		fileServer := http.FileServer(http.Dir(d.uploadDir))
		s.router.Handle(storage.URLPrefix+"/*", http.StripPrefix(storage.URLPrefix+"/", fileServer))
	}

	s.router.Group(func(r chi.Router) {
		if s.config.RateLimitPerHour > 0 {
			limiter := middleware.NewIPRateLimiter(middleware.PerHour(s.config.RateLimitPerHour), s.config.RateLimitBurst)
			r.Use(limiter.Middleware)
		}

		r.Post("/token", d.tokens.HandleLogin)
		r.With(d.authn.RequireRefresh).Post("/refresh", d.tokens.HandleRefresh)
		r.With(d.authn.RequireAuth).Post("/revoke", d.tokens.HandleRevoke)

		r.Route("/recipes", func(r chi.Router) {
			r.With(d.authn.OptionalAuth).Get("/", d.recipes.HandleList)
			r.With(d.authn.RequireAuth).Post("/", d.recipes.HandleCreate)

			r.Route("/{id}", func(r chi.Router) {
				r.With(d.authn.OptionalAuth).Get("/", d.recipes.HandleGet)

				r.Group(func(r chi.Router) {
					r.Use(d.authn.RequireAuth)
					r.Put("/", d.recipes.HandleReplace)
					r.Patch("/", d.recipes.HandlePatch)
					r.Delete("/", d.recipes.HandleDelete)
					r.Put("/publish", d.recipes.HandlePublish)
					r.Delete("/publish", d.recipes.HandleUnpublish)
					r.Put("/cover", d.recipes.HandleCover)
				})
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/", d.users.HandleRegister)
			r.Get("/activate/{token}", d.users.HandleActivate)
			r.With(d.authn.RequireAuth).Put("/avatar", d.users.HandleAvatar)
			r.With(d.authn.OptionalAuth).Get("/{username}", d.users.HandleGet)
			r.With(d.authn.OptionalAuth).Get("/{username}/recipes", d.users.HandleRecipes)
		})

		r.With(d.authn.RequireAuth).Get("/me", d.users.HandleMe)
	})
}

// pinger is implemented by backends that can report their health.
type pinger interface {
	Ping(ctx context.Context) error
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if p, ok := s.cache.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			s.logger.Warn("health check: cache unreachable", slog.String("error", err.Error()))
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"status":%q}`+"\n", status)
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Close releases the database and cache connections.
func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up
// to shutdownTimeout and closes every resource.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second, // uploads
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", s.config.PublicBaseURL),
			slog.String("store", s.config.Store),
			slog.String("storage", s.config.Storage),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
