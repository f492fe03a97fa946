package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/admissions/core/enrollment"
	"github.com/trezcool/admissions/core/learner"
)

const (
	notificationSent   = "sent"
	notificationFailed = "failed"
)

type learnerApi struct {
	users         UserService
	svc           LearnerService
	enrollmentSvc EnrollmentService
	validate      *validator.Validate
}

func registerLearnerAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := learnerApi{
		users:         deps.UserSvc,
		svc:           deps.LearnerSvc,
		enrollmentSvc: deps.EnrollmentSvc,
		validate:      deps.Validate,
	}

	lg := g.Group("/learners")

	// public self-registration
	lg.POST("", api.register)

	// staff endpoints
	sg := lg.Group("/:id", jwt, staffMiddleware())
	sg.GET("", api.retrieve)
	sg.POST("/accept", api.accept)
	sg.POST("/reject", api.reject)
}

// Handlers

func (api *learnerApi) register(ctx echo.Context) error {
	var data learner.NewLearner
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLearner")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	l, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering learner")
	}
	return ctx.JSON(http.StatusCreated, l)
}

func (api *learnerApi) retrieve(ctx echo.Context) error {
	l, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding learner by ID")
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *learnerApi) accept(ctx echo.Context) error {
	staff, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	res, err := api.enrollmentSvc.Accept(ctx.Request().Context(), ctx.Param("id"), staff)
	if err != nil {
		return &outcomeError{err: err}
	}

	resp := AcceptResponse{Outcome: enrollment.OutcomeApplied, Learner: res.Learner}
	if res.Account != nil {
		resp.AccountID = res.Account.ID
		resp.Notification = notificationSent
		if !res.Notified {
			resp.Notification = notificationFailed
		}
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *learnerApi) reject(ctx echo.Context) error {
	staff, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	l, err := api.enrollmentSvc.Reject(ctx.Request().Context(), ctx.Param("id"), staff)
	if err != nil {
		return &outcomeError{err: err}
	}
	return ctx.JSON(http.StatusOK, RejectResponse{Outcome: enrollment.OutcomeApplied, Learner: l})
}

type (
	// AcceptResponse.Notification is "sent" or "failed"; empty when no account was created.
	AcceptResponse struct {
		Outcome      enrollment.Outcome `json:"outcome"`
		Learner      learner.Learner    `json:"learner"`
		AccountID    string             `json:"account_id,omitempty"`
		Notification string             `json:"notification,omitempty"`
	}

	RejectResponse struct {
		Outcome enrollment.Outcome `json:"outcome"`
		Learner learner.Learner    `json:"learner"`
	}
)
