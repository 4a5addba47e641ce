package action

import (
	"time"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-shop/types"
	"github.com/saiset-co/sai-shop/utils"
)

const webhookParam = "webhook"

// RegisterRoutes exposes webhook administration under /api/v1/webhook. Every route
// goes through the admin guard.
func (wm *WebhookManager) RegisterRoutes(router types.HTTPRouter) {
	group := router.Group("/api/v1/webhook").
		WithMiddlewares("admin").
		WithTimeout(wm.timeout + 5*time.Second)

	group.POST("/new", wm.handleCreate)
	group.GET("/all", wm.handleList)
	group.GET("/{webhook}", wm.handleGet)
	group.PUT("/{webhook}", wm.handleUpdate)
	group.DELETE("/{webhook}", wm.handleDelete)
	group.POST("/{webhook}/test", wm.handleTest)
}

func (wm *WebhookManager) handleCreate(ctx *types.RequestCtx) {
	var request WebhookCreateRequest
	if err := utils.Unmarshal(ctx.PostBody(), &request); err != nil {
		utils.WriteError(ctx, types.Errorf(types.ErrValidation, "Invalid JSON payload"))
		return
	}

	webhook, err := wm.Create(ctx, request)
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	utils.WriteJSON(ctx, fasthttp.StatusCreated, map[string]interface{}{
		"success": true,
		"webhook": webhook,
	})
}

func (wm *WebhookManager) handleList(ctx *types.RequestCtx) {
	webhooks, err := wm.List(ctx)
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	utils.WriteJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"success":  true,
		"webhooks": webhooks,
		"total":    len(webhooks),
	})
}

func (wm *WebhookManager) handleGet(ctx *types.RequestCtx) {
	webhook, err := wm.Get(ctx, utils.PathParam(ctx, webhookParam))
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	utils.WriteJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"success": true,
		"webhook": webhook,
	})
}

func (wm *WebhookManager) handleUpdate(ctx *types.RequestCtx) {
	var request WebhookUpdateRequest
	if err := utils.Unmarshal(ctx.PostBody(), &request); err != nil {
		utils.WriteError(ctx, types.Errorf(types.ErrValidation, "Invalid JSON payload"))
		return
	}

	webhook, err := wm.Update(ctx, utils.PathParam(ctx, webhookParam), request)
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	utils.WriteJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"success": true,
		"webhook": webhook,
	})
}

func (wm *WebhookManager) handleDelete(ctx *types.RequestCtx) {
	if err := wm.Delete(ctx, utils.PathParam(ctx, webhookParam)); err != nil {
		utils.WriteError(ctx, err)
		return
	}

	utils.WriteMessage(ctx, fasthttp.StatusOK, true, "Webhook Deleted Successfully")
}

func (wm *WebhookManager) handleTest(ctx *types.RequestCtx) {
	webhook, err := wm.Get(ctx, utils.PathParam(ctx, webhookParam))
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	message := &types.ActionMessage{
		MessageID: "test-" + webhook.ID,
		Action:    webhook.Event + ".test",
		Payload:   map[string]interface{}{"test": true},
		Timestamp: wm.now().UTC(),
		Source:    messageSource,
	}

	body, err := utils.Marshal(message)
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	err = wm.Deliver(ctx, webhook, message, body)

	response := map[string]interface{}{
		"success":   err == nil,
		"delivered": err == nil,
	}
	if err != nil {
		response["message"] = err.Error()
	}

	utils.WriteJSON(ctx, fasthttp.StatusOK, response)
}
