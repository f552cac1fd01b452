package control

import (
	"github.com/gofiber/fiber/v2"

	"github.com/playforge/iap-emulator/internal/domain"
)

type advanceRequest struct {
	Days    int64 `json:"days"`
	Hours   int64 `json:"hours"`
	Minutes int64 `json:"minutes"`
}

// AdvanceTime handles POST /emulator/time/advance
func (h *Handler) AdvanceTime(c *fiber.Ctx) error {
	var req advanceRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, domain.NewInvalidArgumentError("invalid request body"))
	}

	result, err := h.controller.Advance(c.UserContext(), req.Days, req.Hours, req.Minutes)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(result)
}

type setTimeRequest struct {
	TimestampMillis int64 `json:"timestamp_millis"`
}

// SetTime handles POST /emulator/time/set
func (h *Handler) SetTime(c *fiber.Ctx) error {
	var req setTimeRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, domain.NewInvalidArgumentError("invalid request body"))
	}
	if req.TimestampMillis <= 0 {
		return writeError(c, domain.NewInvalidArgumentError("timestamp_millis must be positive"))
	}

	result, err := h.controller.SetTime(c.UserContext(), req.TimestampMillis)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(result)
}

// ResetTime handles POST /emulator/time/reset
func (h *Handler) ResetTime(c *fiber.Ctx) error {
	return c.JSON(h.controller.ResetTime())
}

// GetTime handles GET /emulator/time
func (h *Handler) GetTime(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"virtual_time_millis": h.controller.NowMillis()})
}
