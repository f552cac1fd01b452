package control

import (
	"github.com/gofiber/fiber/v2"

	"github.com/playforge/iap-emulator/internal/domain"
	"github.com/playforge/iap-emulator/internal/engine"
	"github.com/playforge/iap-emulator/internal/purchases"
)

type createSubscriptionRequest struct {
	UserID          string `json:"user_id"`
	SubscriptionID  string `json:"subscription_id"`
	PackageName     string `json:"package_name"`
	StartTimeMillis int64  `json:"start_time_millis"`
	WithTrial       bool   `json:"with_trial"`
	CountryCode     string `json:"country_code"`
}

// CreateSubscription handles POST /emulator/subscriptions
func (h *Handler) CreateSubscription(c *fiber.Ctx) error {
	var req createSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, domain.NewInvalidArgumentError("invalid request body"))
	}

	record, err := h.engine.Create(c.UserContext(), engine.CreateRequest{
		UserID:          req.UserID,
		SubscriptionID:  req.SubscriptionID,
		PackageName:     req.PackageName,
		StartTimeMillis: req.StartTimeMillis,
		WithTrial:       req.WithTrial,
		CountryCode:     req.CountryCode,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(record)
}

// ListSubscriptions handles GET /emulator/subscriptions with optional
// user_id and state filters.
func (h *Handler) ListSubscriptions(c *fiber.Ctx) error {
	if userID := c.Query("user_id"); userID != "" {
		return c.JSON(fiber.Map{"subscriptions": h.subsStore.ByUser(userID)})
	}
	return c.JSON(fiber.Map{"subscriptions": h.subsStore.All()})
}

type renewRequest struct {
	RenewalTimeMillis int64 `json:"renewal_time_millis"`
}

// RenewSubscription handles POST /emulator/subscriptions/{token}/renew
func (h *Handler) RenewSubscription(c *fiber.Ctx) error {
	var req renewRequest
	c.BodyParser(&req)

	record, err := h.engine.Renew(c.UserContext(), c.Params("token"), req.RenewalTimeMillis)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(record)
}

type cancelRequest struct {
	Reason    *int `json:"reason"`
	Immediate bool `json:"immediate"`
}

// CancelSubscription handles POST /emulator/subscriptions/{token}/cancel
func (h *Handler) CancelSubscription(c *fiber.Ctx) error {
	var req cancelRequest
	c.BodyParser(&req)

	reason := domain.CancelUser
	if req.Reason != nil {
		reason = domain.CancelReason(*req.Reason)
	}

	record, err := h.engine.Cancel(c.UserContext(), c.Params("token"), reason, req.Immediate)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(record)
}

type pauseRequest struct {
	DurationMillis int64 `json:"duration_millis"`
	DurationDays   int64 `json:"duration_days"`
}

// PauseSubscription handles POST /emulator/subscriptions/{token}/pause
func (h *Handler) PauseSubscription(c *fiber.Ctx) error {
	var req pauseRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, domain.NewInvalidArgumentError("invalid request body"))
	}

	duration := req.DurationMillis
	if duration == 0 {
		duration = req.DurationDays * 86_400_000
	}

	record, err := h.engine.Pause(c.UserContext(), c.Params("token"), duration)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(record)
}

// ResumeSubscription handles POST /emulator/subscriptions/{token}/resume
func (h *Handler) ResumeSubscription(c *fiber.Ctx) error {
	record, err := h.engine.Resume(c.UserContext(), c.Params("token"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(record)
}

// FailPayment handles POST /emulator/subscriptions/{token}/payment/fail
func (h *Handler) FailPayment(c *fiber.Ctx) error {
	record, err := h.engine.SimulatePaymentFailure(c.UserContext(), c.Params("token"), 0)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(record)
}

// RecoverPayment handles POST /emulator/subscriptions/{token}/payment/recover
func (h *Handler) RecoverPayment(c *fiber.Ctx) error {
	record, err := h.engine.RecoverFromPaymentFailure(c.UserContext(), c.Params("token"), 0)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(record)
}

type createPurchaseRequest struct {
	UserID      string `json:"user_id"`
	ProductID   string `json:"product_id"`
	PackageName string `json:"package_name"`
	Quantity    int    `json:"quantity"`
}

// CreatePurchase handles POST /emulator/purchases
func (h *Handler) CreatePurchase(c *fiber.Ctx) error {
	var req createPurchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, domain.NewInvalidArgumentError("invalid request body"))
	}

	record, err := h.purchases.Create(c.UserContext(), purchases.CreateRequest{
		UserID:      req.UserID,
		ProductID:   req.ProductID,
		PackageName: req.PackageName,
		Quantity:    req.Quantity,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(record)
}

// ListPurchases handles GET /emulator/purchases with an optional user_id
// filter.
func (h *Handler) ListPurchases(c *fiber.Ctx) error {
	if userID := c.Query("user_id"); userID != "" {
		return c.JSON(fiber.Map{"purchases": h.purchStore.ByUser(userID)})
	}
	return c.JSON(fiber.Map{"purchases": h.purchStore.All()})
}
