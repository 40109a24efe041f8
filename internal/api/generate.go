package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/prepdeck/prepdeck/internal/models"
)

// handleGenerate runs one generation cycle. The call blocks until the model
// responds; the status endpoint reports progress for anyone polling in the
// meantime.
func (s *Server) handleGenerate(c *fiber.Ctx) error {
	rt, userID, ok := s.runtime(c)
	if !ok {
		return nil
	}

	var req models.GenerationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.ModelID == "" {
		req.ModelID = s.cfg.Generator.DefaultModel
	}

	result, err := rt.Generator.Generate(c.Context(), req)
	if err != nil {
		return s.requestError(c, err)
	}

	return c.JSON(fiber.Map{
		"questions":      result.Questions,
		"question_count": result.QuestionCount,
		"quota":          s.profiles.Quota(userID),
	})
}

type AnswersRequest struct {
	Questions []string `json:"questions"`
}

// handleGenerateAnswers requests model answers for a batch of questions.
// The response aligns positionally with the request: answers[i] answers
// questions[i].
func (s *Server) handleGenerateAnswers(c *fiber.Ctx) error {
	rt, userID, ok := s.runtime(c)
	if !ok {
		return nil
	}

	var req AnswersRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	set, err := rt.Answers.GenerateAll(c.Context(), req.Questions)
	if err != nil {
		return s.requestError(c, err)
	}

	return c.JSON(fiber.Map{
		"answers": set.Answers,
		"quota":   s.profiles.Quota(userID),
	})
}

func (s *Server) handleGenerateStatus(c *fiber.Ctx) error {
	rt, userID, ok := s.runtime(c)
	if !ok {
		return nil
	}

	return c.JSON(fiber.Map{
		"generation": rt.Generator.Status(),
		"answers":    rt.Answers.Status(),
		"quota":      s.profiles.Quota(userID),
	})
}
