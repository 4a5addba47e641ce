package handlers

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-shop/analytics"
	"github.com/saiset-co/sai-shop/cache"
	"github.com/saiset-co/sai-shop/middleware"
	"github.com/saiset-co/sai-shop/repository"
	"github.com/saiset-co/sai-shop/types"
	"github.com/saiset-co/sai-shop/utils"
)

const (
	defaultProductTTL = 10 * time.Minute
	defaultOrderTTL   = 5 * time.Minute
	defaultAdminTTL   = 5 * time.Minute
)

// Dependencies wires the handlers to storage and outbound services. Events may be nil.
type Dependencies struct {
	Logger  types.Logger
	Repos   *repository.Repositories
	Cache   *cache.Store
	Payment types.PaymentGateway
	Media   types.MediaStore
	Events  types.ActionBroker
	Shop    *types.ShopConfig
	Clock   analytics.Clock
}

type Handlers struct {
	logger    types.Logger
	repos     *repository.Repositories
	cache     *cache.Store
	dashboard *analytics.Dashboard
	payment   types.PaymentGateway
	media     types.MediaStore
	events    types.ActionBroker
	shop      types.ShopConfig
	clock     analytics.Clock
}

func New(deps Dependencies) *Handlers {
	shop := types.ShopConfig{}
	if deps.Shop != nil {
		shop = *deps.Shop
	}
	if shop.ProductsPerPage <= 0 {
		shop.ProductsPerPage = 8
	}
	if shop.Currency == "" {
		shop.Currency = "inr"
	}
	if shop.MaxPhotos <= 0 {
		shop.MaxPhotos = 5
	}
	if shop.ProductTTL <= 0 {
		shop.ProductTTL = defaultProductTTL
	}
	if shop.OrderTTL <= 0 {
		shop.OrderTTL = defaultOrderTTL
	}
	if shop.AdminTTL <= 0 {
		shop.AdminTTL = defaultAdminTTL
	}

	clock := deps.Clock
	if clock == nil {
		clock = analytics.SystemClock{}
	}

	return &Handlers{
		logger:    deps.Logger,
		repos:     deps.Repos,
		cache:     deps.Cache,
		dashboard: analytics.NewDashboard(deps.Repos, clock),
		payment:   deps.Payment,
		media:     deps.Media,
		events:    deps.Events,
		shop:      shop,
		clock:     clock,
	}
}

func (h *Handlers) RegisterRoutes(router types.HTTPRouter) {
	h.registerUserRoutes(router)
	h.registerProductRoutes(router)
	h.registerOrderRoutes(router)
	h.registerPaymentRoutes(router)
	h.registerDashboardRoutes(router)
}

// invalidate purges the keys of req. A failing cache never fails the mutation
// that already committed; the keys simply expire on their TTL.
func (h *Handlers) invalidate(ctx context.Context, req cache.InvalidationRequest) {
	if err := h.cache.Invalidate(ctx, req); err != nil {
		h.logger.Error("Cache invalidation failed",
			zap.Strings("keys", req.Keys()),
			zap.Error(err))
	}
}

func (h *Handlers) publish(action string, payload interface{}) {
	if h.events == nil {
		return
	}

	if err := h.events.Publish(action, payload); err != nil {
		h.logger.Warn("Failed to publish event",
			zap.String("action", action),
			zap.Error(err))
	}
}

// fail writes err and logs anything that is not a client mistake.
func (h *Handlers) fail(ctx *fasthttp.RequestCtx, err error) {
	if status, _ := utils.StatusFor(err); status >= fasthttp.StatusInternalServerError {
		fields := []zap.Field{
			zap.ByteString("method", ctx.Method()),
			zap.ByteString("path", ctx.Path()),
			zap.Error(err),
		}
		if metadata := middleware.MetadataFrom(ctx); metadata != nil {
			fields = append(fields, zap.String("request_id", metadata.RequestID))
		}
		h.logger.Error("Request failed", fields...)
	}

	utils.WriteError(ctx, err)
}

// decode parses a JSON body into target. An empty or malformed body is a validation failure.
func decode[T any](ctx *fasthttp.RequestCtx, target *T) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return types.Errorf(types.ErrValidation, "Please add all fields")
	}

	if err := utils.Unmarshal(body, target); err != nil {
		return types.Errorf(types.ErrValidation, "Invalid request body")
	}
	return nil
}

// notFound rewrites a repository miss into the client-facing message.
func notFound(err error, message string) error {
	if types.IsError(err, types.ErrNotFound) || types.IsError(err, types.ErrInvalidID) {
		return types.Errorf(types.ErrNotFound, "%s", message)
	}
	return err
}

func ok(ctx *fasthttp.RequestCtx, status int, fields map[string]interface{}) {
	fields["success"] = true
	utils.WriteJSON(ctx, status, fields)
}
