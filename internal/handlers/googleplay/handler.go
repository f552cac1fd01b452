package googleplay

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/playforge/iap-emulator/internal/domain"
	"github.com/playforge/iap-emulator/internal/engine"
	"github.com/playforge/iap-emulator/internal/purchases"
)

// Handler serves the androidpublisher v3 purchase surface.
type Handler struct {
	engine    *engine.Engine
	purchases *purchases.Manager
	logger    *zap.Logger
}

// NewHandler creates a new Handler
func NewHandler(eng *engine.Engine, manager *purchases.Manager, logger *zap.Logger) *Handler {
	return &Handler{engine: eng, purchases: manager, logger: logger}
}

// Register mounts the androidpublisher routes. Verb calls like
// "tokens/{token}:cancel" put the colon inside the final path segment, so
// the POST routes capture the whole segment and split it here.
func (h *Handler) Register(app *fiber.App) {
	v3 := app.Group("/androidpublisher/v3/applications/:packageName/purchases")

	v3.Get("/subscriptions/:subscriptionId/tokens/:token", h.GetSubscription)
	v3.Post("/subscriptions/:subscriptionId/tokens/:tokenVerb", h.SubscriptionVerb)

	v3.Get("/products/:productId/tokens/:token", h.GetProduct)
	v3.Post("/products/:productId/tokens/:tokenVerb", h.ProductVerb)
}

func splitTokenVerb(raw string) (token, verb string) {
	if idx := strings.LastIndex(raw, ":"); idx >= 0 {
		return raw[:idx], raw[idx+1:]
	}
	return raw, ""
}

// GetSubscription handles
// GET /androidpublisher/v3/applications/{package}/purchases/subscriptions/{id}/tokens/{token}
func (h *Handler) GetSubscription(c *fiber.Ctx) error {
	record, err := h.engine.Get(c.Params("token"))
	if err != nil {
		return writeError(c, err)
	}
	if record.PackageName != c.Params("packageName") || record.SubscriptionID != c.Params("subscriptionId") {
		return notFound(c, "purchase token does not match the requested application or subscription")
	}
	return c.JSON(subscriptionResource(record))
}

// SubscriptionVerb handles the cancel, revoke, refund, defer and
// acknowledge verbs.
func (h *Handler) SubscriptionVerb(c *fiber.Ctx) error {
	token, verb := splitTokenVerb(c.Params("tokenVerb"))

	record, err := h.engine.Get(token)
	if err != nil {
		return writeError(c, err)
	}
	if record.PackageName != c.Params("packageName") || record.SubscriptionID != c.Params("subscriptionId") {
		return notFound(c, "purchase token does not match the requested application or subscription")
	}

	ctx := c.UserContext()
	switch verb {
	case "cancel":
		_, err = h.engine.Cancel(ctx, token, domain.CancelDeveloper, false)
		if err != nil {
			return writeError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)

	case "revoke":
		_, err = h.engine.Revoke(ctx, token, 0)
		if err != nil {
			return writeError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)

	case "acknowledge":
		_, err = h.engine.Acknowledge(ctx, token)
		if err != nil {
			return writeError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)

	case "defer":
		return h.deferSubscription(c, token)

	default:
		return writeError(c, domain.NewInvalidArgumentError("unknown verb "+strconv.Quote(verb)))
	}
}

type deferRequest struct {
	DeferralInfo struct {
		ExpectedExpiryTimeMillis string `json:"expectedExpiryTimeMillis"`
		DesiredExpiryTimeMillis  string `json:"desiredExpiryTimeMillis"`
	} `json:"deferralInfo"`
}

type deferResponse struct {
	NewExpiryTimeMillis string `json:"newExpiryTimeMillis"`
}

func (h *Handler) deferSubscription(c *fiber.Ctx, token string) error {
	var req deferRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, domain.NewInvalidArgumentError("invalid request body"))
	}
	desired, err := strconv.ParseInt(req.DeferralInfo.DesiredExpiryTimeMillis, 10, 64)
	if err != nil {
		return writeError(c, domain.NewInvalidArgumentError("desiredExpiryTimeMillis must be a millisecond timestamp"))
	}

	if req.DeferralInfo.ExpectedExpiryTimeMillis != "" {
		expected, err := strconv.ParseInt(req.DeferralInfo.ExpectedExpiryTimeMillis, 10, 64)
		if err != nil {
			return writeError(c, domain.NewInvalidArgumentError("expectedExpiryTimeMillis must be a millisecond timestamp"))
		}
		record, err := h.engine.Get(token)
		if err != nil {
			return writeError(c, err)
		}
		if record.ExpiryTimeMillis != expected {
			return writeError(c, domain.NewInvalidArgumentError("expectedExpiryTimeMillis does not match current expiry").
				WithDetail("current_expiry_millis", record.ExpiryTimeMillis))
		}
	}

	record, err := h.engine.Defer(c.UserContext(), token, desired)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(deferResponse{NewExpiryTimeMillis: millisString(record.ExpiryTimeMillis)})
}

// GetProduct handles
// GET /androidpublisher/v3/applications/{package}/purchases/products/{id}/tokens/{token}
func (h *Handler) GetProduct(c *fiber.Ctx) error {
	record, err := h.purchases.Get(c.Params("token"))
	if err != nil {
		return writeError(c, err)
	}
	if record.PackageName != c.Params("packageName") || record.ProductID != c.Params("productId") {
		return notFound(c, "purchase token does not match the requested application or product")
	}
	return c.JSON(productResource(record))
}

// ProductVerb handles the acknowledge and consume verbs for one-time
// products.
func (h *Handler) ProductVerb(c *fiber.Ctx) error {
	token, verb := splitTokenVerb(c.Params("tokenVerb"))

	record, err := h.purchases.Get(token)
	if err != nil {
		return writeError(c, err)
	}
	if record.PackageName != c.Params("packageName") || record.ProductID != c.Params("productId") {
		return notFound(c, "purchase token does not match the requested application or product")
	}

	ctx := c.UserContext()
	switch verb {
	case "acknowledge":
		_, err = h.purchases.Acknowledge(ctx, token)
	case "consume":
		_, err = h.purchases.Consume(ctx, token)
	default:
		return writeError(c, domain.NewInvalidArgumentError("unknown verb "+strconv.Quote(verb)))
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
