package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/manabi/core/progress"
	"github.com/trezcool/manabi/core/user"
)

type progressApi struct {
	usrSvc *user.Service
	svc    *progress.Service
}

func registerProgressAPI(g *echo.Group, jwt echo.MiddlewareFunc, usrSvc *user.Service, svc *progress.Service) {
	api := progressApi{usrSvc: usrSvc, svc: svc}

	pg := g.Group("/progress", jwt)
	pg.GET("", api.query)
	pg.GET("/statuses", api.queryStatuses)
}

// Handlers

func (api *progressApi) query(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var filter progress.QueryFilter
	if err = ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []progress.Progress{})
	}

	records, err := api.svc.QueryForUser(ctx.Request().Context(), ctxUsr, filter)
	if err != nil {
		return errors.Wrap(err, "querying progress")
	}
	if records == nil {
		records = []progress.Progress{}
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *progressApi) queryStatuses(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, progress.Statuses)
}
