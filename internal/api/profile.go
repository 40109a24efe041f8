package api

import (
	"github.com/gofiber/fiber/v2"
)

// handleGetProfile serves the cached profile plus the derived quota view.
// The cache is the read path; the authoritative row only gets touched by
// the orchestrator's reconciliation.
func (s *Server) handleGetProfile(c *fiber.Ctx) error {
	_, userID, ok := s.runtime(c)
	if !ok {
		return nil
	}

	p, ok := s.profiles.Get(userID)
	if !ok {
		fetched, err := s.profiles.Fetch(c.Context(), userID)
		if err != nil {
			s.logger.Error("Failed to fetch profile", "error", err, "user_id", userID)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to fetch profile",
			})
		}
		p = *fetched
	}

	return c.JSON(fiber.Map{
		"profile": p,
		"quota":   s.profiles.Quota(userID),
	})
}

type PreferencesRequest struct {
	PreferredSubjects []string `json:"preferred_subjects"`
}

// handleUpdatePreferences writes preferences through the store. The store
// publishes the resulting delta on the push channel, so the caller's other
// devices converge without polling.
func (s *Server) handleUpdatePreferences(c *fiber.Ctx) error {
	_, userID, ok := s.runtime(c)
	if !ok {
		return nil
	}

	var req PreferencesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if len(req.PreferredSubjects) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "At least one preferred subject is required",
		})
	}

	p, err := s.store.UpdatePreferences(c.Context(), userID, req.PreferredSubjects)
	if err != nil {
		s.logger.Error("Failed to update preferences", "error", err, "user_id", userID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update preferences",
		})
	}

	return c.JSON(fiber.Map{
		"profile": p,
	})
}
