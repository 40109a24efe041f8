// Package api is the HTTP gateway: auth endpoints that front the identity
// provider, the profile surface, and the generation endpoints that drive
// each user's orchestrator runtime.
package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	jwtware "github.com/gofiber/jwt/v3"
	jwt "github.com/golang-jwt/jwt/v4"

	"github.com/prepdeck/prepdeck/internal/config"
	"github.com/prepdeck/prepdeck/internal/models"
	"github.com/prepdeck/prepdeck/internal/orchestrator"
	"github.com/prepdeck/prepdeck/internal/profile"
	"github.com/prepdeck/prepdeck/internal/session"
)

type Server struct {
	app      *fiber.App
	cfg      *config.Config
	sessions *session.Store
	store    *profile.Store
	profiles *profile.Cache
	manager  *orchestrator.Manager
	logger   *slog.Logger
}

func NewServer(cfg *config.Config, sessions *session.Store, store *profile.Store, profiles *profile.Cache, manager *orchestrator.Manager, log *slog.Logger) *Server {
	app := fiber.New()

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${ip} ${method} ${path} ${status}\n",
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        cfg.Server.MaxRequests,
		Expiration: cfg.Server.RequestTimeout,
	}))

	server := &Server{
		app:      app,
		cfg:      cfg,
		sessions: sessions,
		store:    store,
		profiles: profiles,
		manager:  manager,
		logger:   log,
	}

	// Routes
	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	api := s.app.Group("/api")

	// Public routes
	api.Post("/auth/signup", s.handleSignUp)
	api.Post("/auth/signin", s.handleSignIn)

	// Protected routes
	protected := api.Use(jwtware.New(jwtware.Config{
		SigningKey: []byte(s.cfg.JWT.Secret),
	}))
	protected.Post("/auth/signout", s.handleSignOut)
	protected.Get("/profile", s.handleGetProfile)
	protected.Put("/profile/preferences", s.handleUpdatePreferences)
	protected.Post("/generate", s.handleGenerate)
	protected.Post("/generate/answers", s.handleGenerateAnswers)
	protected.Get("/generate/status", s.handleGenerateStatus)
}

func (s *Server) Start() error {
	return s.app.Listen(s.cfg.Server.Port)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// currentUserID reads the subject claim jwtware verified.
func currentUserID(c *fiber.Ctx) string {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return ""
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return sub
}

// runtime resolves the caller's orchestrator runtime, writing the 401
// itself when there is none. A valid gateway token without an attached
// runtime means the session was signed out or the gateway restarted;
// either way the caller must sign in again.
func (s *Server) runtime(c *fiber.Ctx) (*orchestrator.Runtime, string, bool) {
	userID := currentUserID(c)
	if userID == "" {
		_ = c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid token",
		})
		return nil, "", false
	}
	rt, ok := s.manager.Runtime(userID)
	if !ok {
		_ = c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "No active session, sign in again",
		})
		return nil, "", false
	}
	return rt, userID, true
}

// statusForKind maps orchestrator error kinds onto HTTP statuses. Upstream
// failures read as a bad gateway: the request was fine, the model call was
// not.
func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.ErrAuthRequired:
		return fiber.StatusUnauthorized
	case models.ErrValidationFailed:
		return fiber.StatusBadRequest
	case models.ErrRateLimited:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusBadGateway
	}
}

func (s *Server) requestError(c *fiber.Ctx, err error) error {
	kind := models.KindOf(err)
	status := statusForKind(kind)

	body := fiber.Map{
		"error": err.Error(),
		"kind":  kind,
	}
	var re *models.RequestError
	if errors.As(err, &re) {
		// The in-flight rejection names a conflicting request and carries
		// its own status.
		if kind == models.ErrValidationFailed && re.Status != 0 {
			status = re.Status
		}
		if re.Stats != nil {
			body["stats"] = re.Stats
		}
	}

	return c.Status(status).JSON(body)
}
