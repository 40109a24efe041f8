package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/prepdeck/prepdeck/internal/models"
	"github.com/prepdeck/prepdeck/internal/session"
)

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"type"`
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
}

func (s *Server) handleSignUp(c *fiber.Ctx) error {
	return s.handleCredentials(c, s.sessions.SignUp)
}

func (s *Server) handleSignIn(c *fiber.Ctx) error {
	return s.handleCredentials(c, s.sessions.SignIn)
}

func (s *Server) handleCredentials(c *fiber.Ctx, authenticate func(email, password string) (*models.Session, error)) error {
	var req CredentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Email == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Email and password are required",
		})
	}

	s.logger.Info("Authentication attempt", "email", req.Email)

	sess, err := authenticate(req.Email, req.Password)
	if err != nil {
		if err == session.ErrNotReady {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Authentication service is starting up",
			})
		}
		s.logger.Error("Authentication failed", "error", err, "email", req.Email)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	// The gateway mints its own token; the provider token stays server-side
	// with the session, attached to upstream calls on the user's behalf.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sess.UserID,
		"email": sess.Email,
		"exp":   time.Now().Add(s.cfg.JWT.Expiration).Unix(),
		"iat":   time.Now().Unix(),
	})

	tokenString, err := token.SignedString([]byte(s.cfg.JWT.Secret))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate token",
		})
	}

	s.logger.Info("User authenticated", "user_id", sess.UserID, "email", sess.Email)

	return c.JSON(AuthResponse{
		Token:     tokenString,
		TokenType: "Bearer",
		UserID:    sess.UserID,
		Email:     sess.Email,
	})
}

// handleSignOut clears the session synchronously. The response never waits
// on the provider's token revocation; that runs in the background and a
// failure there is logged, not surfaced.
func (s *Server) handleSignOut(c *fiber.Ctx) error {
	userID := currentUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid token",
		})
	}

	s.sessions.SignOut(userID)

	return c.JSON(fiber.Map{
		"signed_out": true,
	})
}
