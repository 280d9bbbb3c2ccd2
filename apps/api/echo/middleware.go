package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/manabi/core/material"
	"github.com/trezcool/manabi/core/user"
)

// adminMiddleware only lets admins through.
func adminMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if !claims.IsAdmin {
				return errHttpForbidden
			}
			// roles may have changed since the token was issued
			usr, err := getContextUser(ctx, svc, claims)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if !usr.IsAdmin() {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

// materialCtxMiddleware loads the material `:id` visible to the context user as the context object.
func materialCtxMiddleware(usrSvc *user.Service, svc *material.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, usrSvc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}

			m, err := svc.Get(ctx.Request().Context(), ctx.Param("id"), ctxUsr)
			if err != nil {
				if errors.Cause(err) == material.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding material")
			}
			ctx.Set(contextObjectKey, m)
			return next(ctx)
		}
	}
}

// nodeCtxMiddleware loads the node `:id` as the context object, and its material as the
// context material. Nodes of materials invisible to the context user are not found.
func nodeCtxMiddleware(usrSvc *user.Service, svc *material.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, usrSvc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}

			reqCtx := ctx.Request().Context()
			n, err := svc.GetNode(reqCtx, ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == material.ErrNodeNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding node")
			}
			m, err := svc.Get(reqCtx, n.MaterialID, ctxUsr)
			if err != nil {
				if errors.Cause(err) == material.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding material")
			}
			ctx.Set(contextObjectKey, n)
			ctx.Set(contextMaterialKey, m)
			return next(ctx)
		}
	}
}
