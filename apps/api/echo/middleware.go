package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ecolage/core/user"
)

// adminMiddleware allows admin users holding one of roles; no roles allows every admin.
func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			actor, err := contextActor(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context actor")
			}
			if actor.HasRolePrefix(user.RoleAdmin) && actor.HasAnyRole(roles...) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// financeMiddleware guards money movements: payments, scholarships and documentary fees.
func financeMiddleware() echo.MiddlewareFunc {
	return adminMiddleware(user.FinanceRoles...)
}

// configMiddleware guards the fee configuration: classes, tranches, amounts and discount rules.
func configMiddleware() echo.MiddlewareFunc {
	return adminMiddleware(user.ConfigRoles...)
}
