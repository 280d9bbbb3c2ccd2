package echoapi

import (
	"net/http"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/manabi/core/material"
	"github.com/trezcool/manabi/core/progress"
	"github.com/trezcool/manabi/core/user"
)

var errNodeNotFoundInCtx = errors.New("node object not found in echo.Context")

type nodeApi struct {
	usrSvc   *user.Service
	svc      *material.Service
	progSvc  *progress.Service
	validate *validator.Validate
}

func registerNodeAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	usrSvc *user.Service,
	svc *material.Service,
	progSvc *progress.Service,
	validate *validator.Validate,
) {
	api := nodeApi{usrSvc: usrSvc, svc: svc, progSvc: progSvc, validate: validate}

	dg := g.Group("/nodes/:id", jwt, nodeCtxMiddleware(usrSvc, svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.GET("/descendants", api.descendants)
	dg.POST("/progress", api.recordProgress)
}

func ctxNode(ctx echo.Context) (material.Node, material.Material, error) {
	n, ok := ctx.Get(contextObjectKey).(material.Node)
	if !ok {
		return material.Node{}, material.Material{}, errors.Wrap(errNodeNotFoundInCtx, "retrieving object from context")
	}
	m, err := ctxMaterial(ctx, contextMaterialKey)
	return n, m, err
}

// editableNode returns the context node if the context user can edit its material.
func (api *nodeApi) editableNode(ctx echo.Context) (material.Node, user.User, error) {
	n, m, err := ctxNode(ctx)
	if err != nil {
		return material.Node{}, user.User{}, err
	}
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return material.Node{}, user.User{}, errors.Wrap(err, "getting context user")
	}
	if !api.svc.CanEdit(m, ctxUsr) {
		return material.Node{}, user.User{}, errHttpForbidden
	}
	return n, ctxUsr, nil
}

// Handlers

func (api *nodeApi) retrieve(ctx echo.Context) error {
	n, _, err := ctxNode(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *nodeApi) update(ctx echo.Context) error {
	n, ctxUsr, err := api.editableNode(ctx)
	if err != nil {
		return err
	}

	var data material.UpdateNode
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateNode")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	n, err = api.svc.UpdateNode(ctx.Request().Context(), n, data, ctxUsr)
	if err != nil {
		return errors.Wrap(err, "updating node")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *nodeApi) destroy(ctx echo.Context) error {
	n, ctxUsr, err := api.editableNode(ctx)
	if err != nil {
		return err
	}

	count, err := api.svc.DeleteNode(ctx.Request().Context(), n, ctxUsr)
	if err != nil {
		return errors.Wrap(err, "deleting node")
	}
	return ctx.JSON(http.StatusOK, DeleteResponse{Deleted: count})
}

func (api *nodeApi) descendants(ctx echo.Context) error {
	n, _, err := ctxNode(ctx)
	if err != nil {
		return err
	}

	set, err := api.svc.DescendantIDs(ctx.Request().Context(), n)
	if err != nil {
		return errors.Wrap(err, "computing descendants")
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ctx.JSON(http.StatusOK, DescendantsResponse{IDs: ids})
}

func (api *nodeApi) recordProgress(ctx echo.Context) error {
	n, _, err := ctxNode(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data progress.NewProgress
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewProgress")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	p, err := api.progSvc.Record(ctx.Request().Context(), ctxUsr, n, data.Status)
	if err != nil {
		return errors.Wrap(err, "recording progress")
	}
	return ctx.JSON(http.StatusCreated, p)
}

type (
	DeleteResponse struct {
		Deleted int `json:"deleted"`
	}

	DescendantsResponse struct {
		IDs []string `json:"ids"`
	}
)
