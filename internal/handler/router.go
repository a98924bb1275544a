package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sumire/hiring/internal/service"
)

// Services groups the services the HTTP API exposes.
type Services struct {
	Pipelines    *service.PipelineService
	Jobs         *service.JobService
	Applications *service.ApplicationService
	Tokens       Tokens
	TokenTTL     time.Duration
}

// NewRouter builds the echo instance with every route registered.
func NewRouter(svc Services) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewAppValidator()
	e.HTTPErrorHandler = HTTPErrorHandler

	e.Use(middleware.RequestID())
	e.Use(RequestLogger())
	e.Use(middleware.Recover())

	e.GET("/health", func(c echo.Context) error {
		return JSON(c, http.StatusOK, map[string]string{"status": "ok"})
	})

	pipelines := NewPipelineHandler(svc.Pipelines)
	jobs := NewJobHandler(svc.Jobs)
	apps := NewApplicationHandler(svc.Applications)
	auth := NewAuthHandler(svc.Tokens, svc.TokenTTL)

	api := e.Group("/api/v1", JWTAuth(svc.Tokens))

	api.GET("/me", auth.Me)
	api.POST("/auth/refresh", auth.Refresh)

	api.POST("/pipelines", pipelines.CreatePipeline)
	api.GET("/pipelines", pipelines.ListPipelines)
	api.POST("/pipelines/import", pipelines.ImportPipeline)
	api.POST("/pipelines/default", pipelines.CreateDefaultPipeline)
	api.GET("/pipelines/:id", pipelines.GetPipeline)
	api.PATCH("/pipelines/:id", pipelines.UpdatePipeline)
	api.DELETE("/pipelines/:id", pipelines.DeletePipeline)
	api.GET("/pipelines/:id/validation", pipelines.ValidatePipeline)

	api.POST("/pipelines/:id/stages", pipelines.CreateStage)
	api.GET("/pipelines/:id/stages", pipelines.ListStages)
	api.PUT("/pipelines/:id/stages/order", pipelines.ReorderStages)
	api.GET("/stages/:id", pipelines.GetStage)
	api.PATCH("/stages/:id", pipelines.UpdateStage)
	api.DELETE("/stages/:id", pipelines.DeleteStage)

	api.POST("/pipelines/:id/transitions", pipelines.CreateTransition)
	api.GET("/pipelines/:id/transitions", pipelines.ListTransitions)
	api.GET("/transitions/:id", pipelines.GetTransition)
	api.PATCH("/transitions/:id", pipelines.UpdateTransition)
	api.DELETE("/transitions/:id", pipelines.DeleteTransition)

	api.POST("/jobs", jobs.CreateJob)
	api.GET("/jobs", jobs.ListJobs)
	api.GET("/jobs/:id", jobs.GetJob)
	api.PUT("/jobs/:id/pipeline", jobs.AssignPipeline)
	api.GET("/jobs/:id/transitions", jobs.ListTransitions)
	api.POST("/jobs/:id/transitions", jobs.TransitionJob)

	api.POST("/jobs/:id/applications", apps.CreateApplication)
	api.GET("/jobs/:id/applications", apps.ListApplications)
	api.GET("/applications/:id", apps.GetApplication)
	api.POST("/applications/:id/stage", apps.ChangeStage)
	api.GET("/applications/:id/next-stages", apps.NextStages)
	api.POST("/applications/:id/status", apps.UpdateStatus)

	return e
}
