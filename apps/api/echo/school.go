package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ecolage/core/school"
)

type schoolApi struct {
	svc *school.Service
}

func registerSchoolAPI(g *echo.Group, deps *Deps) {
	api := schoolApi{svc: deps.SchoolSvc}

	cg := g.Group("/classes", adminMiddleware())
	cg.POST("", api.createClass, configMiddleware())
	cg.GET("", api.queryClasses)
	cg.GET("/:id", api.retrieveClass)
	cg.GET("/:id/series", api.queryClassSeries)

	sg := g.Group("/series", adminMiddleware())
	sg.POST("", api.createSeries, configMiddleware())
	sg.GET("", api.querySeries)

	stg := g.Group("/students", adminMiddleware())
	stg.POST("", api.enrollStudent)
	stg.GET("", api.queryStudents)
	stg.GET("/:id", api.retrieveStudent)
	stg.PUT("/:id", api.updateStudent)
}

// Classes

func (api *schoolApi) createClass(ctx echo.Context) error {
	var data school.NewClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	class, err := api.svc.CreateClass(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, class)
}

func (api *schoolApi) queryClasses(ctx echo.Context) error {
	classes, err := api.svc.ListClasses(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	if classes == nil {
		classes = []school.Class{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *schoolApi) retrieveClass(ctx echo.Context) error {
	class, err := api.svc.GetClass(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding class")
	}
	return ctx.JSON(http.StatusOK, class)
}

func (api *schoolApi) queryClassSeries(ctx echo.Context) error {
	class, err := api.svc.GetClass(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding class")
	}
	return api.listSeries(ctx, class.ID)
}

// Series

func (api *schoolApi) createSeries(ctx echo.Context) error {
	var data school.NewSeries
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSeries")
	}
	series, err := api.svc.CreateSeries(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating class series")
	}
	return ctx.JSON(http.StatusCreated, series)
}

func (api *schoolApi) querySeries(ctx echo.Context) error {
	return api.listSeries(ctx, ctx.QueryParam("class_id"))
}

func (api *schoolApi) listSeries(ctx echo.Context, classID string) error {
	series, err := api.svc.ListSeries(ctx.Request().Context(), classID)
	if err != nil {
		return errors.Wrap(err, "querying class series")
	}
	if series == nil {
		series = []school.ClassSeries{}
	}
	return ctx.JSON(http.StatusOK, series)
}

// Students

func (api *schoolApi) enrollStudent(ctx echo.Context) error {
	var data school.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	student, err := api.svc.EnrollStudent(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "enrolling student")
	}
	return ctx.JSON(http.StatusCreated, student)
}

func (api *schoolApi) queryStudents(ctx echo.Context) error {
	filter := new(school.StudentFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.Student{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	students, err := api.svc.QueryStudents(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []school.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *schoolApi) retrieveStudent(ctx echo.Context) error {
	student, err := api.svc.GetStudent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding student")
	}
	return ctx.JSON(http.StatusOK, student)
}

func (api *schoolApi) updateStudent(ctx echo.Context) error {
	var data school.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	student, err := api.svc.UpdateStudent(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, student)
}
