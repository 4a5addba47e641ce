package utils

import (
	"errors"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-shop/types"
)

type errorStatus struct {
	err    error
	status int
}

var errorStatuses = []errorStatus{
	{types.ErrNotFound, fasthttp.StatusNotFound},
	{types.ErrValidation, fasthttp.StatusBadRequest},
	{types.ErrInvalidID, fasthttp.StatusBadRequest},
	{types.ErrInvalidParameter, fasthttp.StatusBadRequest},
	{types.ErrOrderDelivered, fasthttp.StatusBadRequest},
	{types.ErrInsufficientStock, fasthttp.StatusBadRequest},
	{types.ErrDuplicate, fasthttp.StatusConflict},
	{types.ErrUnauthorized, fasthttp.StatusUnauthorized},
	{types.ErrForbidden, fasthttp.StatusForbidden},
	{types.ErrBodyTooLarge, fasthttp.StatusRequestEntityTooLarge},
	{types.ErrRateLimitExceeded, fasthttp.StatusTooManyRequests},
	{types.ErrClientIsDisabled, fasthttp.StatusServiceUnavailable},
	{types.ErrHealthIsNotRunning, fasthttp.StatusServiceUnavailable},
	{types.ErrUpstream, fasthttp.StatusBadGateway},
}

// StatusFor maps a domain error onto an HTTP status. Unknown errors are 500.
func StatusFor(err error) (int, error) {
	for _, entry := range errorStatuses {
		if errors.Is(err, entry.err) {
			return entry.status, entry.err
		}
	}
	return fasthttp.StatusInternalServerError, nil
}

// WriteError answers with the error envelope. Upstream and unknown failures
// do not leak their detail to the client.
func WriteError(ctx *fasthttp.RequestCtx, err error) {
	status, base := StatusFor(err)

	switch {
	case base == nil:
		CreateErrorResponse(ctx)
	case errors.Is(base, types.ErrUpstream):
		WriteMessage(ctx, status, false, "Upstream service unavailable")
	default:
		WriteMessage(ctx, status, false, types.UserMessage(err, base))
	}
}

func setNoCache(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	ctx.Response.Header.Set("Pragma", "no-cache")
	ctx.Response.Header.Set("Expires", "0")

	if requestID := string(ctx.Request.Header.Peek("X-Request-ID")); requestID != "" {
		ctx.Response.Header.Set("X-Request-ID", requestID)
	}
}

// WriteJSON serializes data with sonic; encoding failures fall back to CreateErrorResponse.
func WriteJSON(ctx *fasthttp.RequestCtx, statusCode int, data interface{}) {
	body, err := Marshal(data)
	if err != nil {
		CreateErrorResponse(ctx)
		return
	}

	ctx.SetStatusCode(statusCode)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func WriteMessage(ctx *fasthttp.RequestCtx, statusCode int, success bool, message string) {
	WriteJSON(ctx, statusCode, map[string]interface{}{
		"success": success,
		"message": message,
	})
}

func CreateErrorResponse(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusInternalServerError)
	ctx.SetContentType("application/json")
	setNoCache(ctx)

	ctx.SetBodyString(`{"success":false,"message":"Internal Server Error"}`)
}

func CreateUnauthorizedResponse(ctx *fasthttp.RequestCtx, message string) {
	ctx.SetStatusCode(fasthttp.StatusUnauthorized)
	setNoCache(ctx)
	WriteMessage(ctx, fasthttp.StatusUnauthorized, false, message)
}

// PathParam returns a route parameter captured by the router, or "".
func PathParam(ctx *fasthttp.RequestCtx, name string) string {
	value, _ := ctx.UserValue(name).(string)
	return value
}
