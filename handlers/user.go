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

type newUserRequest struct {
	ID     string       `json:"_id"`
	Name   string       `json:"name"`
	Email  string       `json:"email"`
	Photo  string       `json:"photo"`
	Gender types.Gender `json:"gender"`
	Role   types.Role   `json:"role"`
	DOB    string       `json:"dob"`
}

func (h *Handlers) registerUserRoutes(router types.HTTPRouter) {
	group := router.Group("/api/v1/user")

	group.POST("/new", h.newUser)
	group.GET("/all", h.allUsers).WithMiddlewares(middleware.NameAdmin)
	group.GET("/{id}", h.getUser)
	group.DELETE("/{id}", h.deleteUser).WithMiddlewares(middleware.NameAdmin)
}

func (h *Handlers) newUser(ctx *fasthttp.RequestCtx) {
	var req newUserRequest
	if err := decode(ctx, &req); err != nil {
		h.fail(ctx, err)
		return
	}

	if req.ID == "" || req.Name == "" || req.Email == "" || req.Photo == "" || req.Gender == "" || req.DOB == "" {
		h.fail(ctx, types.Errorf(types.ErrValidation, "Please add all fields"))
		return
	}

	existing, err := h.repos.Users.FindByID(ctx, req.ID)
	switch {
	case err == nil:
		ok(ctx, fasthttp.StatusOK, map[string]interface{}{"message": "Welcome back, " + existing.Name})
		return
	case !types.IsError(err, types.ErrNotFound):
		h.fail(ctx, err)
		return
	}

	role := req.Role
	if role == "" {
		role = types.RoleUser
	}

	user := types.User{
		Document: types.Document{ID: req.ID},
		Name:     req.Name,
		Email:    req.Email,
		Photo:    req.Photo,
		Gender:   req.Gender,
		Role:     role,
		DOB:      normalizeDate(req.DOB),
	}
	user.Age = user.AgeAt(h.clock.Now())

	if err := utils.Validate(user); err != nil {
		h.fail(ctx, err)
		return
	}

	created, err := h.repos.Users.Create(ctx, user)
	if err != nil {
		h.fail(ctx, err)
		return
	}

	h.invalidate(ctx, cache.InvalidationRequest{Admin: true})

	ok(ctx, fasthttp.StatusCreated, map[string]interface{}{"message": "Welcome, " + created.Name})
}

func (h *Handlers) allUsers(ctx *fasthttp.RequestCtx) {
	users, err := h.repos.Users.All(ctx)
	if err != nil {
		h.fail(ctx, err)
		return
	}

	now := h.clock.Now()
	for i := range users {
		users[i].Age = users[i].AgeAt(now)
	}

	ok(ctx, fasthttp.StatusOK, map[string]interface{}{"users": users})
}

func (h *Handlers) getUser(ctx *fasthttp.RequestCtx) {
	user, err := h.repos.Users.FindByID(ctx, utils.PathParam(ctx, "id"))
	if err != nil {
		h.fail(ctx, notFound(err, "User not found"))
		return
	}

	user.Age = user.AgeAt(h.clock.Now())
	ok(ctx, fasthttp.StatusOK, map[string]interface{}{"user": user})
}

func (h *Handlers) deleteUser(ctx *fasthttp.RequestCtx) {
	id := utils.PathParam(ctx, "id")
	if err := h.repos.Users.DeleteOne(ctx, id); err != nil {
		h.fail(ctx, notFound(err, "User not found"))
		return
	}

	// Populated order views embed the user's name.
	h.invalidate(ctx, cache.InvalidationRequest{Admin: true, Order: true, UserID: id})
	h.forgetOrdersOf(ctx, id)

	ok(ctx, fasthttp.StatusOK, map[string]interface{}{"message": "User deleted successfully"})
}

func (h *Handlers) forgetOrdersOf(ctx context.Context, userID string) {
	orders, err := h.repos.Orders.ByUser(ctx, userID)
	if err != nil {
		h.logger.Warn("Failed to list orders of deleted user", zap.String("user_id", userID), zap.Error(err))
		return
	}

	keys := make([]string, 0, len(orders))
	for _, order := range orders {
		keys = append(keys, cache.OrderKey(order.ID))
	}
	if err := h.cache.Delete(ctx, keys...); err != nil {
		h.logger.Error("Cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// SeedDemoAdmin creates the demo admin account when it does not exist yet.
func (h *Handlers) SeedDemoAdmin(ctx context.Context) error {
	id := h.shop.DemoAdminID
	if id == "" {
		return nil
	}

	_, err := h.repos.Users.FindByID(ctx, id)
	if err == nil {
		return nil
	}
	if !types.IsError(err, types.ErrNotFound) {
		return err
	}

	admin := types.User{
		Document: types.Document{ID: id},
		Name:     "Demo Admin",
		Email:    "demo@techkart.com",
		Photo:    "https://api.dicebear.com/7.x/avataaars/svg?seed=TechKartDemo",
		Role:     types.RoleAdmin,
		Gender:   types.GenderMale,
		DOB:      "1995-01-01",
	}
	admin.Age = admin.AgeAt(h.clock.Now())

	if _, err := h.repos.Users.Create(ctx, admin); err != nil {
		return types.WrapError(err, "failed to seed demo admin")
	}

	h.invalidate(ctx, cache.InvalidationRequest{Admin: true})
	return nil
}

// normalizeDate accepts "2006-01-02" or an RFC 3339 timestamp and keeps the date part.
func normalizeDate(value string) string {
	if len(value) > 10 && value[10] == 'T' {
		return value[:10]
	}
	return value
}
