package handlers

import (
	"math"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-shop/middleware"
	"github.com/saiset-co/sai-shop/types"
	"github.com/saiset-co/sai-shop/utils"
)

type paymentRequest struct {
	Amount float64 `json:"amount"`
}

type couponRequest struct {
	Code   string  `json:"code"`
	Amount float64 `json:"amount"`
}

func (h *Handlers) registerPaymentRoutes(router types.HTTPRouter) {
	group := router.Group("/api/v1/payment")

	group.POST("/create", h.createPaymentIntent)
	group.GET("/discount", h.applyDiscount)

	coupons := group.Group("/coupon").WithMiddlewares(middleware.NameAdmin)
	coupons.POST("/new", h.newCoupon)
	coupons.GET("/all", h.allCoupons)
	coupons.GET("/{id}", h.getCoupon)
	coupons.PUT("/{id}", h.updateCoupon)
	coupons.DELETE("/{id}", h.deleteCoupon)
}

func (h *Handlers) createPaymentIntent(ctx *fasthttp.RequestCtx) {
	var req paymentRequest
	if err := decode(ctx, &req); err != nil {
		h.fail(ctx, err)
		return
	}

	if req.Amount <= 0 {
		h.fail(ctx, types.Errorf(types.ErrValidation, "Please provide a valid amount"))
		return
	}

	minor := int64(math.Round(req.Amount * 100))
	secret, err := h.payment.CreatePaymentIntent(ctx, minor, h.shop.Currency)
	if err != nil {
		h.fail(ctx, err)
		return
	}

	ok(ctx, fasthttp.StatusCreated, map[string]interface{}{"clientSecret": secret})
}

func (h *Handlers) applyDiscount(ctx *fasthttp.RequestCtx) {
	code := strings.TrimSpace(string(ctx.QueryArgs().Peek("code")))
	if code == "" {
		h.fail(ctx, types.Errorf(types.ErrValidation, "Please provide a valid coupon code"))
		return
	}

	coupon, err := h.repos.Coupons.ByCode(ctx, code)
	if types.IsError(err, types.ErrNotFound) {
		h.fail(ctx, types.Errorf(types.ErrValidation, "Invalid Coupon Code"))
		return
	}
	if err != nil {
		h.fail(ctx, err)
		return
	}

	ok(ctx, fasthttp.StatusOK, map[string]interface{}{"discount": coupon.Amount})
}

func (h *Handlers) newCoupon(ctx *fasthttp.RequestCtx) {
	var req couponRequest
	if err := decode(ctx, &req); err != nil {
		h.fail(ctx, err)
		return
	}

	coupon := types.Coupon{Code: strings.TrimSpace(req.Code), Amount: req.Amount}
	if coupon.Code == "" || coupon.Amount == 0 {
		h.fail(ctx, types.Errorf(types.ErrValidation, "Please provide all required fields"))
		return
	}
	if err := utils.Validate(coupon); err != nil {
		h.fail(ctx, err)
		return
	}

	_, err := h.repos.Coupons.ByCode(ctx, coupon.Code)
	switch {
	case err == nil:
		h.fail(ctx, types.Errorf(types.ErrDuplicate, "Coupon code already exists"))
		return
	case !types.IsError(err, types.ErrNotFound):
		h.fail(ctx, err)
		return
	}

	created, err := h.repos.Coupons.Create(ctx, coupon)
	if err != nil {
		h.fail(ctx, err)
		return
	}

	ok(ctx, fasthttp.StatusCreated, map[string]interface{}{
		"message": "Coupon created successfully",
		"coupon":  created,
	})
}

func (h *Handlers) allCoupons(ctx *fasthttp.RequestCtx) {
	coupons, err := h.repos.Coupons.All(ctx)
	if err != nil {
		h.fail(ctx, err)
		return
	}

	ok(ctx, fasthttp.StatusOK, map[string]interface{}{"coupons": coupons})
}

func (h *Handlers) getCoupon(ctx *fasthttp.RequestCtx) {
	coupon, err := h.repos.Coupons.FindByID(ctx, utils.PathParam(ctx, "id"))
	if err != nil {
		h.fail(ctx, notFound(err, "Invalid Coupon ID"))
		return
	}

	ok(ctx, fasthttp.StatusOK, map[string]interface{}{"coupon": coupon})
}

func (h *Handlers) updateCoupon(ctx *fasthttp.RequestCtx) {
	id := utils.PathParam(ctx, "id")

	var req couponRequest
	if err := decode(ctx, &req); err != nil {
		h.fail(ctx, err)
		return
	}

	code := strings.TrimSpace(req.Code)
	if code == "" || req.Amount == 0 {
		h.fail(ctx, types.Errorf(types.ErrValidation, "Please provide all required fields"))
		return
	}

	coupon, err := h.repos.Coupons.FindByID(ctx, id)
	if err != nil {
		h.fail(ctx, notFound(err, "Invalid Coupon ID"))
		return
	}

	if code != coupon.Code {
		other, err := h.repos.Coupons.ByCode(ctx, code)
		switch {
		case err == nil && other.ID != id:
			h.fail(ctx, types.Errorf(types.ErrDuplicate, "Coupon code already exists"))
			return
		case err != nil && !types.IsError(err, types.ErrNotFound):
			h.fail(ctx, err)
			return
		}
	}

	coupon.Code = code
	coupon.Amount = req.Amount
	if err := utils.Validate(coupon); err != nil {
		h.fail(ctx, err)
		return
	}

	if err := h.repos.Coupons.Save(ctx, coupon); err != nil {
		h.fail(ctx, notFound(err, "Invalid Coupon ID"))
		return
	}

	ok(ctx, fasthttp.StatusOK, map[string]interface{}{
		"message": "Coupon updated successfully",
		"coupon":  coupon,
	})
}

func (h *Handlers) deleteCoupon(ctx *fasthttp.RequestCtx) {
	if err := h.repos.Coupons.DeleteOne(ctx, utils.PathParam(ctx, "id")); err != nil {
		h.fail(ctx, notFound(err, "Invalid Coupon ID"))
		return
	}

	ok(ctx, fasthttp.StatusOK, map[string]interface{}{"message": "Coupon deleted successfully"})
}
