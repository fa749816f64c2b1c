package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ecolage/core/tranche"
)

type trancheApi struct {
	svc *tranche.Service
}

func registerTrancheAPI(g *echo.Group, deps *Deps) {
	api := trancheApi{svc: deps.TrancheSvc}

	tg := g.Group("/tranches", adminMiddleware())
	tg.GET("", api.query)
	tg.POST("", api.create, configMiddleware())
	tg.PUT("/order", api.reorder, configMiddleware())
	tg.GET("/:id", api.retrieve)
	tg.PUT("/:id", api.update, configMiddleware())
	tg.GET("/:id/deletion-impact", api.deletionImpact)
	tg.DELETE("/:id", api.destroy, configMiddleware())

	ag := g.Group("/class-amounts", adminMiddleware())
	ag.GET("", api.queryClassAmounts)
	ag.PUT("", api.setClassAmount, configMiddleware())
	ag.DELETE("/:class_id/:tranche_id", api.destroyClassAmount, configMiddleware())
}

func (api *trancheApi) create(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	var data tranche.NewTranche
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTranche")
	}

	tr, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating tranche")
	}
	return ctx.JSON(http.StatusCreated, tr)
}

func (api *trancheApi) query(ctx echo.Context) error {
	tranches, err := api.svc.List(ctx.Request().Context(), boolParam(ctx, "active_only", false))
	if err != nil {
		return errors.Wrap(err, "querying tranches")
	}
	if tranches == nil {
		tranches = []tranche.Tranche{}
	}
	return ctx.JSON(http.StatusOK, tranches)
}

func (api *trancheApi) retrieve(ctx echo.Context) error {
	tr, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding tranche")
	}
	return ctx.JSON(http.StatusOK, tr)
}

func (api *trancheApi) update(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	var data tranche.UpdateTranche
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTranche")
	}

	tr, err := api.svc.Update(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating tranche")
	}
	return ctx.JSON(http.StatusOK, tr)
}

// reorder takes a list of {tranche_id, order} and returns every tranche in its new order.
func (api *trancheApi) reorder(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	var entries []tranche.OrderEntry
	if err := ctx.Bind(&entries); err != nil {
		return errors.Wrap(err, "binding to []OrderEntry")
	}

	tranches, err := api.svc.Reorder(ctx.Request().Context(), actor, entries)
	if err != nil {
		return errors.Wrap(err, "reordering tranches")
	}
	return ctx.JSON(http.StatusOK, tranches)
}

func (api *trancheApi) deletionImpact(ctx echo.Context) error {
	impact, err := api.svc.DeletionImpact(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "computing deletion impact")
	}
	return ctx.JSON(http.StatusOK, impact)
}

// destroy deletes an unused tranche; a tranche in use needs `?confirm=true`.
func (api *trancheApi) destroy(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}

	res, err := api.svc.Delete(ctx.Request().Context(), actor, ctx.Param("id"), boolParam(ctx, "confirm", false))
	if err != nil {
		return errors.Wrap(err, "deleting tranche")
	}
	return ctx.JSON(http.StatusOK, res)
}

// Class amounts

func (api *trancheApi) queryClassAmounts(ctx echo.Context) error {
	var filter tranche.ClassAmountFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []tranche.ClassAmount{})
	}

	amounts, err := api.svc.ListClassAmounts(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying class amounts")
	}
	if amounts == nil {
		amounts = []tranche.ClassAmount{}
	}
	return ctx.JSON(http.StatusOK, amounts)
}

func (api *trancheApi) setClassAmount(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	var data tranche.SetClassAmount
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetClassAmount")
	}

	amount, err := api.svc.SetClassAmount(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "setting class amount")
	}
	return ctx.JSON(http.StatusOK, amount)
}

func (api *trancheApi) destroyClassAmount(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}

	err = api.svc.DeleteClassAmount(ctx.Request().Context(), actor, ctx.Param("class_id"), ctx.Param("tranche_id"))
	if err != nil {
		return errors.Wrap(err, "deleting class amount")
	}
	return ctx.NoContent(http.StatusNoContent)
}
