package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/manabi/core/material"
	"github.com/trezcool/manabi/core/progress"
	"github.com/trezcool/manabi/core/user"
)

var errMaterialNotFoundInCtx = errors.New("material object not found in echo.Context")

type materialApi struct {
	usrSvc   *user.Service
	svc      *material.Service
	progSvc  *progress.Service
	validate *validator.Validate
}

func registerMaterialAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	usrSvc *user.Service,
	svc *material.Service,
	progSvc *progress.Service,
	validate *validator.Validate,
) {
	api := materialApi{usrSvc: usrSvc, svc: svc, progSvc: progSvc, validate: validate}

	mg := g.Group("/materials", jwt)
	mg.GET("", api.query)
	mg.POST("", api.create)
	mg.POST("/templates", api.createTemplate, adminMiddleware(usrSvc))

	// detail endpoints
	dg := mg.Group("/:id", materialCtxMiddleware(usrSvc, svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.POST("/duplicate", api.duplicate)
	dg.POST("/nodes", api.createNode)
	dg.GET("/progress", api.progressSummary)
}

func ctxMaterial(ctx echo.Context, key string) (material.Material, error) {
	m, ok := ctx.Get(key).(material.Material)
	if !ok {
		return material.Material{}, errors.Wrap(errMaterialNotFoundInCtx, "retrieving object from context")
	}
	return m, nil
}

// Handlers

func (api *materialApi) query(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	filter := new(material.QueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []material.Material{})
	}
	filter.IsTemplate = queryBool(ctx, "is_template")
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	materials, err := api.svc.Query(ctx.Request().Context(), ctxUsr, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying materials")
	}
	if materials == nil {
		materials = []material.Material{}
	}
	return ctx.JSON(http.StatusOK, materials)
}

func (api *materialApi) create(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data material.NewMaterial
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMaterial")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	m, err := api.svc.Create(ctx.Request().Context(), data, ctxUsr)
	if err != nil {
		return errors.Wrap(err, "creating material")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *materialApi) createTemplate(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data material.NewMaterial
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMaterial")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	m, err := api.svc.CreateTemplate(ctx.Request().Context(), data, ctxUsr)
	if err != nil {
		return errors.Wrap(err, "creating template")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *materialApi) retrieve(ctx echo.Context) error {
	m, err := ctxMaterial(ctx, contextObjectKey)
	if err != nil {
		return err
	}

	detail, err := api.svc.Detail(ctx.Request().Context(), m)
	if err != nil {
		return errors.Wrap(err, "getting material detail")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *materialApi) update(ctx echo.Context) error {
	m, err := ctxMaterial(ctx, contextObjectKey)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !api.svc.CanEdit(m, ctxUsr) {
		return errHttpForbidden
	}

	var data material.UpdateMaterial
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateMaterial")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	m, err = api.svc.Update(ctx.Request().Context(), m, data, ctxUsr)
	if err != nil {
		return errors.Wrap(err, "updating material")
	}
	return ctx.JSON(http.StatusOK, m)
}

// duplicate copies the template into a material owned by the context user.
// ?preserve_hierarchy=true keeps the node tree; copies are flattened otherwise.
func (api *materialApi) duplicate(ctx echo.Context) error {
	m, err := ctxMaterial(ctx, contextObjectKey)
	if err != nil {
		return err
	}
	if !m.IsTemplate {
		return errHttpNotFound
	}
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var opts material.DuplicateOptions
	if preserve := queryBool(ctx, "preserve_hierarchy"); preserve != nil {
		opts.PreserveHierarchy = *preserve
	}

	dup, err := api.svc.Duplicate(ctx.Request().Context(), m, ctxUsr, opts)
	if err != nil {
		return errors.Wrap(err, "duplicating material")
	}
	return ctx.JSON(http.StatusCreated, dup)
}

func (api *materialApi) createNode(ctx echo.Context) error {
	m, err := ctxMaterial(ctx, contextObjectKey)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !api.svc.CanEdit(m, ctxUsr) {
		return errHttpForbidden
	}

	var data material.NewNode
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewNode")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	n, err := api.svc.CreateNode(ctx.Request().Context(), m, data, ctxUsr)
	if err != nil {
		return errors.Wrap(err, "creating node")
	}
	return ctx.JSON(http.StatusCreated, n)
}

func (api *materialApi) progressSummary(ctx echo.Context) error {
	m, err := ctxMaterial(ctx, contextObjectKey)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	reqCtx := ctx.Request().Context()
	nodes, err := api.svc.Nodes(reqCtx, m)
	if err != nil {
		return errors.Wrap(err, "getting material nodes")
	}
	sum, err := api.progSvc.Summary(reqCtx, ctxUsr, m.ID, nodes)
	if err != nil {
		return errors.Wrap(err, "summarizing progress")
	}
	return ctx.JSON(http.StatusOK, sum)
}
