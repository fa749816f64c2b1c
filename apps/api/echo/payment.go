package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/payment"
	"github.com/trezcool/ecolage/services/idempotency"
)

const (
	idempotencyKeyHeader   = "Idempotency-Key"
	msgDuplicateSubmission = "this payment has already been submitted"

	// releasing a key outlives the request, which may have been cancelled
	releaseTimeout = 5 * time.Second
)

type paymentApi struct {
	svc         *payment.Service
	idempotency idempotency.Store
	logger      core.Logger
}

func registerPaymentAPI(g *echo.Group, deps *Deps) {
	api := paymentApi{
		svc:         deps.PaymentSvc,
		idempotency: deps.Idempotency,
		logger:      deps.Logger,
	}

	// a "/students/:id" group would shadow the student routes, see registerSchoolAPI
	g.POST("/students/:id/payments", api.allocate, financeMiddleware())
	g.GET("/students/:id/payment-status", api.status, adminMiddleware())
	g.GET("/students/:id/contributions", api.queryContributions, adminMiddleware())
	g.PUT("/students/:id/contributions", api.setContribution, financeMiddleware())

	pg := g.Group("/payments", adminMiddleware())
	pg.GET("", api.query)
	pg.GET("/:id", api.retrieve)

	schg := g.Group("/scholarships", adminMiddleware())
	schg.GET("", api.queryScholarships)
	schg.POST("", api.createScholarship, financeMiddleware())
	schg.POST("/:id/deactivate", api.deactivateScholarship, financeMiddleware())

	dg := g.Group("/discount-rules", adminMiddleware())
	dg.GET("", api.queryDiscountRules)
	dg.POST("", api.createDiscountRule, configMiddleware())
	dg.POST("/:id/deactivate", api.deactivateDiscountRule, configMiddleware())
}

// allocate records a payment. A repeated Idempotency-Key is rejected until the key expires;
// the key is released when the payment fails, so that the request can be corrected and retried.
func (api *paymentApi) allocate(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	var data payment.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	data.StudentID = ctx.Param("id")

	reqCtx := ctx.Request().Context()
	key := ctx.Request().Header.Get(idempotencyKeyHeader)
	if key != "" && api.idempotency != nil {
		key = actor.UserID + ":" + key
		ok, err := api.idempotency.Reserve(reqCtx, key)
		if err != nil {
			return errors.Wrap(err, "reserving idempotency key")
		}
		if !ok {
			return core.NewConflictError(msgDuplicateSubmission, map[string]string{"idempotency_key": ctx.Request().Header.Get(idempotencyKeyHeader)})
		}
	}

	res, err := api.svc.Allocate(reqCtx, actor, data)
	if err != nil {
		if key != "" && api.idempotency != nil {
			api.releaseKey(key, actor)
		}
		return errors.Wrap(err, "allocating payment")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *paymentApi) releaseKey(key string, actor core.Actor) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := api.idempotency.Release(ctx, key); err != nil {
		api.logger.Warn("releasing idempotency key", err, actor)
	}
}

func (api *paymentApi) status(ctx echo.Context) error {
	status, err := api.svc.Status(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting payment status")
	}
	return ctx.JSON(http.StatusOK, status)
}

func (api *paymentApi) query(ctx echo.Context) error {
	filter := new(payment.PaymentFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to PaymentFilter")
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	payments, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if payments == nil {
		payments = []payment.Payment{}
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *paymentApi) retrieve(ctx echo.Context) error {
	pmt, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding payment")
	}
	return ctx.JSON(http.StatusOK, pmt)
}

// Physical contributions

func (api *paymentApi) queryContributions(ctx echo.Context) error {
	contributions, err := api.svc.ListContributions(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying physical contributions")
	}
	if contributions == nil {
		contributions = []payment.PhysicalContribution{}
	}
	return ctx.JSON(http.StatusOK, contributions)
}

func (api *paymentApi) setContribution(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	var data payment.SetContribution
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetContribution")
	}

	contribution, err := api.svc.SetPhysicalContribution(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "setting physical contribution")
	}
	return ctx.JSON(http.StatusOK, contribution)
}

// Scholarships

func (api *paymentApi) queryScholarships(ctx echo.Context) error {
	scholarships, err := api.svc.ListScholarships(
		ctx.Request().Context(), ctx.QueryParam("student_id"), boolParam(ctx, "active_only", false),
	)
	if err != nil {
		return errors.Wrap(err, "querying scholarships")
	}
	if scholarships == nil {
		scholarships = []payment.Scholarship{}
	}
	return ctx.JSON(http.StatusOK, scholarships)
}

func (api *paymentApi) createScholarship(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	var data payment.NewScholarship
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewScholarship")
	}

	scholarship, err := api.svc.CreateScholarship(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating scholarship")
	}
	return ctx.JSON(http.StatusCreated, scholarship)
}

func (api *paymentApi) deactivateScholarship(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}

	scholarship, err := api.svc.DeactivateScholarship(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deactivating scholarship")
	}
	return ctx.JSON(http.StatusOK, scholarship)
}

// Discount rules

func (api *paymentApi) queryDiscountRules(ctx echo.Context) error {
	rules, err := api.svc.ListDiscountRules(ctx.Request().Context(), boolParam(ctx, "active_only", false))
	if err != nil {
		return errors.Wrap(err, "querying discount rules")
	}
	if rules == nil {
		rules = []payment.DiscountRule{}
	}
	return ctx.JSON(http.StatusOK, rules)
}

func (api *paymentApi) createDiscountRule(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	var data payment.NewDiscountRule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDiscountRule")
	}

	rule, err := api.svc.CreateDiscountRule(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating discount rule")
	}
	return ctx.JSON(http.StatusCreated, rule)
}

func (api *paymentApi) deactivateDiscountRule(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}

	rule, err := api.svc.DeactivateDiscountRule(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deactivating discount rule")
	}
	return ctx.JSON(http.StatusOK, rule)
}
