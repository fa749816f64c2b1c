package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ecolage/core/docfee"
)

type docFeeApi struct {
	svc      *docfee.Service
	validate *validator.Validate
}

func registerDocFeeAPI(g *echo.Group, deps *Deps) {
	api := docFeeApi{svc: deps.DocFeeSvc, validate: deps.Validate}

	fg := g.Group("/documentary-fees", adminMiddleware())
	fg.GET("", api.query)
	fg.POST("", api.create, financeMiddleware())
	fg.GET("/:id", api.retrieve)
	fg.PUT("/:id", api.update, financeMiddleware())
	fg.POST("/:id/:action", api.transition, financeMiddleware())
}

func (api *docFeeApi) create(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	var data docfee.NewFee
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFee")
	}

	fee, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating documentary fee")
	}
	return ctx.JSON(http.StatusCreated, fee)
}

func (api *docFeeApi) query(ctx echo.Context) error {
	filter := new(docfee.Filter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []docfee.Fee{})
	}

	fees, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying documentary fees")
	}
	if fees == nil {
		fees = []docfee.Fee{}
	}
	return ctx.JSON(http.StatusOK, fees)
}

func (api *docFeeApi) retrieve(ctx echo.Context) error {
	fee, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding documentary fee")
	}
	return ctx.JSON(http.StatusOK, fee)
}

func (api *docFeeApi) update(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	var data docfee.UpdateFee
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateFee")
	}

	fee, err := api.svc.Update(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating documentary fee")
	}
	return ctx.JSON(http.StatusOK, fee)
}

// transition applies `:action` (validate|cancel) to a pending fee. A cancel may carry a reason.
func (api *docFeeApi) transition(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	var data docfee.TransitionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TransitionRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	action := docfee.Action(ctx.Param("action"))
	fee, err := api.svc.Transition(ctx.Request().Context(), actor, ctx.Param("id"), action, data.Reason)
	if err != nil {
		return errors.Wrap(err, "transitioning documentary fee")
	}
	return ctx.JSON(http.StatusOK, fee)
}
