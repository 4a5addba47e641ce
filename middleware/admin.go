package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-shop/types"
	"github.com/saiset-co/sai-shop/utils"
)

// UserRoles resolves the role of a user id.
type UserRoles interface {
	RoleOf(ctx context.Context, id string) (types.Role, error)
}

// AdminMiddleware lets a request through only when ?id= names an admin user.
// It is opt-in: routes enable it with WithMiddlewares("admin").
type AdminMiddleware struct {
	logger      types.Logger
	users       UserRoles
	adminConfig *AdminConfig
	weight      int
}

type AdminConfig struct {
	QueryParam string `json:"query_param"`
	Timeout    string `json:"timeout"`
	timeout    time.Duration
}

func NewAdminMiddleware(config *types.MiddlewareItemConfig, users UserRoles, logger types.Logger) *AdminMiddleware {
	var adminConfig = &AdminConfig{
		QueryParam: "id",
		Timeout:    "5s",
	}

	if config != nil && config.Params != nil {
		err := utils.UnmarshalConfig(config.Params, adminConfig)
		if err != nil {
			logger.Error("Failed to unmarshal Admin middleware config", zap.Error(err))
		}
	}

	timeout, err := time.ParseDuration(adminConfig.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 5 * time.Second
	}
	adminConfig.timeout = timeout

	return &AdminMiddleware{
		logger:      logger,
		users:       users,
		adminConfig: adminConfig,
		weight:      weightOf(NameAdmin, config),
	}
}

func (a *AdminMiddleware) Name() string { return NameAdmin }
func (a *AdminMiddleware) Weight() int  { return a.weight }
func (a *AdminMiddleware) OptIn() bool  { return true }

func (a *AdminMiddleware) Handle(ctx *types.RequestCtx, next func(*types.RequestCtx), _ *types.RouteConfig) {
	id := string(ctx.QueryArgs().Peek(a.adminConfig.QueryParam))
	if id == "" {
		utils.WriteError(ctx, types.Errorf(types.ErrUnauthorized, "Login Required"))
		return
	}

	lookupCtx, cancel := context.WithTimeout(context.Background(), a.adminConfig.timeout)
	defer cancel()

	role, err := a.users.RoleOf(lookupCtx, id)
	switch {
	case types.IsError(err, types.ErrNotFound), types.IsError(err, types.ErrInvalidID):
		utils.WriteError(ctx, types.Errorf(types.ErrNotFound, "Invalid Id"))
		return
	case err != nil:
		a.logger.Error("Failed to resolve user role", zap.String("user_id", id), zap.Error(err))
		utils.WriteError(ctx, err)
		return
	}

	if role != types.RoleAdmin {
		a.logger.Warn("Admin route denied", zap.String("user_id", id), zap.ByteString("path", ctx.Path()))
		utils.WriteError(ctx, types.Errorf(types.ErrForbidden, "Unauthorized access"))
		return
	}

	next(ctx)
}
