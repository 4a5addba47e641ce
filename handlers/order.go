package handlers

import (
	"context"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-shop/cache"
	"github.com/saiset-co/sai-shop/middleware"
	"github.com/saiset-co/sai-shop/types"
	"github.com/saiset-co/sai-shop/utils"
)

type newOrderRequest struct {
	ShippingInfo    *types.ShippingInfo `json:"shippingInfo"`
	OrderItems      []types.OrderItem   `json:"orderItems"`
	User            string              `json:"user"`
	Subtotal        *float64            `json:"subtotal"`
	Tax             *float64            `json:"tax"`
	ShippingCharges *float64            `json:"shippingCharges"`
	Discount        *float64            `json:"discount"`
	Total           *float64            `json:"total"`
}

func (r newOrderRequest) complete() bool {
	return r.ShippingInfo != nil && len(r.OrderItems) > 0 && r.User != "" &&
		r.Subtotal != nil && r.Tax != nil && r.ShippingCharges != nil &&
		r.Discount != nil && r.Total != nil
}

type orderUser struct {
	ID   string `json:"internal_id"`
	Name string `json:"name"`
}

// populatedOrder replaces the stored user id with the user's id and name.
type populatedOrder struct {
	types.Order
	User orderUser `json:"user"`
}

type orderEvent struct {
	OrderID string            `json:"orderId"`
	User    string            `json:"user"`
	Status  types.OrderStatus `json:"status"`
	Total   float64           `json:"total,omitempty"`
}

func (h *Handlers) registerOrderRoutes(router types.HTTPRouter) {
	group := router.Group("/api/v1/order")

	group.POST("/new", h.newOrder)
	group.GET("/my", h.myOrders)
	group.GET("/all", h.allOrders).WithMiddlewares(middleware.NameAdmin)
	group.GET("/{id}", h.getOrder)
	group.PUT("/{id}", h.processOrder).WithMiddlewares(middleware.NameAdmin)
	group.DELETE("/{id}", h.deleteOrder).WithMiddlewares(middleware.NameAdmin)
}

func (h *Handlers) newOrder(ctx *fasthttp.RequestCtx) {
	var req newOrderRequest
	if err := decode(ctx, &req); err != nil {
		h.fail(ctx, err)
		return
	}

	if !req.complete() {
		h.fail(ctx, types.Errorf(types.ErrValidation, "Please provide all the required fields"))
		return
	}

	order := types.Order{
		ShippingInfo:    *req.ShippingInfo,
		User:            req.User,
		Subtotal:        *req.Subtotal,
		Tax:             *req.Tax,
		ShippingCharges: *req.ShippingCharges,
		Discount:        *req.Discount,
		Total:           *req.Total,
		Status:          types.OrderProcessing,
		OrderItems:      req.OrderItems,
	}
	if err := utils.Validate(order); err != nil {
		h.fail(ctx, err)
		return
	}

	productIDs, err := h.checkStock(ctx, order.OrderItems)
	if err != nil {
		h.fail(ctx, err)
		return
	}

	stockChanged := cache.InvalidationRequest{Product: true, Admin: true, ProductIDs: productIDs}

	if err := h.reduceStock(ctx, order.OrderItems); err != nil {
		h.invalidate(ctx, stockChanged)
		h.fail(ctx, err)
		return
	}

	created, err := h.repos.Orders.Create(ctx, order)
	if err != nil {
		h.restoreStock(ctx, order.OrderItems)
		h.invalidate(ctx, stockChanged)
		h.fail(ctx, err)
		return
	}

	h.invalidate(ctx, cache.InvalidationRequest{
		Product:    true,
		Order:      true,
		Admin:      true,
		ProductIDs: productIDs,
		OrderID:    created.ID,
		UserID:     created.User,
	})

	h.publish(types.ActionOrderCreated, orderEvent{
		OrderID: created.ID,
		User:    created.User,
		Status:  created.Status,
		Total:   created.Total,
	})

	ok(ctx, fasthttp.StatusCreated, map[string]interface{}{"message": "Order created successfully"})
}

// checkStock verifies every line can be served before anything is written and
// returns the distinct product ids involved.
func (h *Handlers) checkStock(ctx context.Context, items []types.OrderItem) ([]string, error) {
	wanted := make(map[string]int, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, seen := wanted[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		wanted[item.ProductID] += item.Quantity
	}

	for _, id := range ids {
		product, err := h.repos.Products.FindByID(ctx, id)
		if err != nil {
			return nil, notFound(err, "Product not found")
		}
		if product.Stock < wanted[id] {
			return nil, types.Errorf(types.ErrInsufficientStock, "Insufficient stock for %s", product.Name)
		}
	}

	return ids, nil
}

// reduceStock decrements stock line by line. When a line fails, the lines
// already applied are restored before the error is returned.
func (h *Handlers) reduceStock(ctx context.Context, items []types.OrderItem) error {
	for i, item := range items {
		err := h.repos.Products.Update(ctx, item.ProductID, map[string]interface{}{
			"$inc": map[string]interface{}{"stock": -item.Quantity},
		})
		if err != nil {
			h.restoreStock(ctx, items[:i])
			return notFound(err, "Product not found")
		}
	}
	return nil
}

func (h *Handlers) restoreStock(ctx context.Context, items []types.OrderItem) {
	for _, item := range items {
		err := h.repos.Products.Update(ctx, item.ProductID, map[string]interface{}{
			"$inc": map[string]interface{}{"stock": item.Quantity},
		})
		if err != nil {
			h.logger.Error("Failed to restore stock",
				zap.String("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err))
		}
	}
}

func (h *Handlers) myOrders(ctx *fasthttp.RequestCtx) {
	userID := string(ctx.QueryArgs().Peek("id"))
	if userID == "" {
		h.fail(ctx, types.Errorf(types.ErrValidation, "Please provide user id"))
		return
	}

	orders, err := cache.Remember(ctx, h.cache, cache.MyOrdersKey(userID), h.shop.OrderTTL,
		func(ctx context.Context) ([]types.Order, error) {
			return h.repos.Orders.ByUser(ctx, userID)
		})
	if err != nil {
		h.fail(ctx, err)
		return
	}

	ok(ctx, fasthttp.StatusOK, map[string]interface{}{"orders": orders})
}

func (h *Handlers) allOrders(ctx *fasthttp.RequestCtx) {
	orders, err := cache.Remember(ctx, h.cache, cache.KeyAllOrders, h.shop.OrderTTL,
		func(ctx context.Context) ([]populatedOrder, error) {
			orders, err := h.repos.Orders.All(ctx)
			if err != nil {
				return nil, err
			}
			return h.populate(ctx, orders...)
		})
	if err != nil {
		h.fail(ctx, err)
		return
	}

	ok(ctx, fasthttp.StatusOK, map[string]interface{}{"orders": orders})
}

func (h *Handlers) getOrder(ctx *fasthttp.RequestCtx) {
	id := utils.PathParam(ctx, "id")

	order, err := cache.Remember(ctx, h.cache, cache.OrderKey(id), h.shop.OrderTTL,
		func(ctx context.Context) (populatedOrder, error) {
			order, err := h.repos.Orders.FindByID(ctx, id)
			if err != nil {
				return populatedOrder{}, err
			}

			populated, err := h.populate(ctx, order)
			if err != nil {
				return populatedOrder{}, err
			}
			return populated[0], nil
		})
	if err != nil {
		h.fail(ctx, notFound(err, "Order not found"))
		return
	}

	ok(ctx, fasthttp.StatusOK, map[string]interface{}{"order": order})
}

func (h *Handlers) processOrder(ctx *fasthttp.RequestCtx) {
	id := utils.PathParam(ctx, "id")

	order, err := h.repos.Orders.FindByID(ctx, id)
	if err != nil {
		h.fail(ctx, notFound(err, "Order not found"))
		return
	}

	next, advanced := order.Status.Next()
	if !advanced {
		h.fail(ctx, types.Errorf(types.ErrOrderDelivered, "Order is already delivered"))
		return
	}

	err = h.repos.Orders.Update(ctx, id, map[string]interface{}{
		"$set": map[string]interface{}{"status": string(next)},
	})
	if err != nil {
		h.fail(ctx, notFound(err, "Order not found"))
		return
	}

	h.invalidate(ctx, cache.InvalidationRequest{Order: true, Admin: true, OrderID: id, UserID: order.User})
	h.publish(types.ActionOrderStatusChanged, orderEvent{OrderID: id, User: order.User, Status: next})

	ok(ctx, fasthttp.StatusOK, map[string]interface{}{"message": "Order processed successfully"})
}

func (h *Handlers) deleteOrder(ctx *fasthttp.RequestCtx) {
	id := utils.PathParam(ctx, "id")

	order, err := h.repos.Orders.FindByID(ctx, id)
	if err != nil {
		h.fail(ctx, notFound(err, "Order not found"))
		return
	}

	if err := h.repos.Orders.DeleteOne(ctx, id); err != nil {
		h.fail(ctx, notFound(err, "Order not found"))
		return
	}

	h.invalidate(ctx, cache.InvalidationRequest{Order: true, Admin: true, OrderID: id, UserID: order.User})
	h.publish(types.ActionOrderDeleted, orderEvent{OrderID: id, User: order.User, Status: order.Status})

	ok(ctx, fasthttp.StatusOK, map[string]interface{}{"message": "Order deleted successfully"})
}

// populate resolves the user of every order. Users that no longer exist keep
// their id with an empty name.
func (h *Handlers) populate(ctx context.Context, orders ...types.Order) ([]populatedOrder, error) {
	names := make(map[string]string)
	result := make([]populatedOrder, 0, len(orders))

	for _, order := range orders {
		name, known := names[order.User]
		if !known {
			user, err := h.repos.Users.FindByID(ctx, order.User)
			switch {
			case err == nil:
				name = user.Name
			case types.IsError(err, types.ErrNotFound), types.IsError(err, types.ErrInvalidID):
			default:
				return nil, err
			}
			names[order.User] = name
		}

		result = append(result, populatedOrder{
			Order: order,
			User:  orderUser{ID: order.User, Name: name},
		})
	}

	return result, nil
}
