// Package control exposes the emulator's out-of-band surface: direct
// lifecycle manipulation, virtual-clock commands and store inspection. None
// of these routes exist in the real Play API.
package control

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/playforge/iap-emulator/internal/domain"
	"github.com/playforge/iap-emulator/internal/domain/ports"
	"github.com/playforge/iap-emulator/internal/engine"
	"github.com/playforge/iap-emulator/internal/purchases"
	"github.com/playforge/iap-emulator/internal/timectrl"
)

// testNotifier is the slice of the event dispatcher backing the
// test-notification endpoint.
type testNotifier interface {
	PublishTestEvent(ctx context.Context, packageName string) bool
}

// Handler serves the /emulator control surface.
type Handler struct {
	engine         *engine.Engine
	purchases      *purchases.Manager
	controller     *timectrl.Controller
	catalog        ports.ProductCatalog
	subsStore      ports.SubscriptionStore
	purchStore     ports.PurchaseStore
	notifier       testNotifier
	defaultPackage string
	logger         *zap.Logger
}

// NewHandler creates a new Handler
func NewHandler(
	eng *engine.Engine,
	manager *purchases.Manager,
	controller *timectrl.Controller,
	catalog ports.ProductCatalog,
	subsStore ports.SubscriptionStore,
	purchStore ports.PurchaseStore,
	notifier testNotifier,
	defaultPackage string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		engine:         eng,
		purchases:      manager,
		controller:     controller,
		catalog:        catalog,
		subsStore:      subsStore,
		purchStore:     purchStore,
		notifier:       notifier,
		defaultPackage: defaultPackage,
		logger:         logger,
	}
}

// Register mounts the control routes.
func (h *Handler) Register(app *fiber.App) {
	emu := app.Group("/emulator")

	emu.Get("/status", h.Status)
	emu.Get("/products", h.ListProducts)
	emu.Post("/reset", h.Reset)
	emu.Post("/notifications/test", h.SendTestNotification)

	emu.Post("/purchases", h.CreatePurchase)
	emu.Get("/purchases", h.ListPurchases)

	emu.Post("/subscriptions", h.CreateSubscription)
	emu.Get("/subscriptions", h.ListSubscriptions)
	emu.Post("/subscriptions/:token/renew", h.RenewSubscription)
	emu.Post("/subscriptions/:token/cancel", h.CancelSubscription)
	emu.Post("/subscriptions/:token/pause", h.PauseSubscription)
	emu.Post("/subscriptions/:token/resume", h.ResumeSubscription)
	emu.Post("/subscriptions/:token/payment/fail", h.FailPayment)
	emu.Post("/subscriptions/:token/payment/recover", h.RecoverPayment)

	emu.Post("/time/advance", h.AdvanceTime)
	emu.Post("/time/set", h.SetTime)
	emu.Post("/time/reset", h.ResetTime)
	emu.Get("/time", h.GetTime)
}

func writeError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	switch {
	case domain.IsNotFound(err):
		code = fiber.StatusNotFound
	case domain.IsConflict(err):
		code = fiber.StatusConflict
	case domain.IsInvalidArgument(err), domain.IsInvalidState(err),
		domain.CodeOf(err) == domain.ErrCodeGraceNotConfigured:
		code = fiber.StatusBadRequest
	}

	body := fiber.Map{"error": err.Error(), "code": string(domain.CodeOf(err))}
	if domainErr, ok := domain.AsError(err); ok && len(domainErr.Details) > 0 {
		body["details"] = domainErr.Details
	}
	return c.Status(code).JSON(body)
}

// Status handles GET /emulator/status
func (h *Handler) Status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"virtual_time_millis": h.controller.NowMillis(),
		"subscriptions":       h.subsStore.Stats(),
		"purchases":           h.purchStore.Count(),
		"products":            len(h.catalog.All("")),
	})
}

// productView is a catalog entry with its price rendered for display.
type productView struct {
	domain.ProductDefinition
	DisplayPrice string `json:"display_price"`
}

// ListProducts handles GET /emulator/products
func (h *Handler) ListProducts(c *fiber.Ctx) error {
	productType := domain.ProductType(c.Query("type"))
	definitions := h.catalog.All(productType)

	products := make([]productView, 0, len(definitions))
	for _, def := range definitions {
		products = append(products, productView{
			ProductDefinition: *def,
			DisplayPrice:      def.DisplayPrice(),
		})
	}
	return c.JSON(fiber.Map{"products": products})
}

// Reset handles POST /emulator/reset, clearing both stores.
func (h *Handler) Reset(c *fiber.Ctx) error {
	h.subsStore.Clear()
	h.purchStore.Clear()
	h.logger.Info("emulator state reset")
	return c.JSON(fiber.Map{"status": "reset"})
}

type testNotificationRequest struct {
	PackageName string `json:"package_name"`
}

// SendTestNotification handles POST /emulator/notifications/test,
// publishing the same payload the Play console's "send test notification"
// action produces.
func (h *Handler) SendTestNotification(c *fiber.Ctx) error {
	var req testNotificationRequest
	c.BodyParser(&req)

	packageName := req.PackageName
	if packageName == "" {
		packageName = h.defaultPackage
	}

	delivered := h.notifier.PublishTestEvent(c.UserContext(), packageName)
	return c.JSON(fiber.Map{"delivered": delivered, "package_name": packageName})
}
