package handlers

import (
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-shop/cache"
	"github.com/saiset-co/sai-shop/middleware"
	"github.com/saiset-co/sai-shop/types"
)

func (h *Handlers) registerDashboardRoutes(router types.HTTPRouter) {
	group := router.Group("/api/v1/dashboard").WithMiddlewares(middleware.NameAdmin)

	group.GET("/stats", h.dashboardStats)
	group.GET("/pie", h.pieCharts)
	group.GET("/bar", h.barCharts)
	group.GET("/line", h.lineCharts)
}

func (h *Handlers) dashboardStats(ctx *fasthttp.RequestCtx) {
	stats, err := cache.Remember(ctx, h.cache, cache.KeyAdminStats, h.shop.AdminTTL, h.dashboard.Stats)
	if err != nil {
		h.fail(ctx, err)
		return
	}

	ok(ctx, fasthttp.StatusOK, map[string]interface{}{"stats": stats})
}

func (h *Handlers) pieCharts(ctx *fasthttp.RequestCtx) {
	charts, err := cache.Remember(ctx, h.cache, cache.KeyAdminPieCharts, h.shop.AdminTTL, h.dashboard.Pie)
	if err != nil {
		h.fail(ctx, err)
		return
	}

	ok(ctx, fasthttp.StatusOK, map[string]interface{}{"charts": charts})
}

func (h *Handlers) barCharts(ctx *fasthttp.RequestCtx) {
	charts, err := cache.Remember(ctx, h.cache, cache.KeyAdminBarCharts, h.shop.AdminTTL, h.dashboard.Bar)
	if err != nil {
		h.fail(ctx, err)
		return
	}

	ok(ctx, fasthttp.StatusOK, map[string]interface{}{"charts": charts})
}

func (h *Handlers) lineCharts(ctx *fasthttp.RequestCtx) {
	charts, err := cache.Remember(ctx, h.cache, cache.KeyAdminLineChart, h.shop.AdminTTL, h.dashboard.Line)
	if err != nil {
		h.fail(ctx, err)
		return
	}

	ok(ctx, fasthttp.StatusOK, map[string]interface{}{"charts": charts})
}
