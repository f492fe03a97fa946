package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/admissions/core/user"
)

type enrollmentApi struct {
	runner BackfillRunner
}

func registerEnrollmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := enrollmentApi{runner: deps.Backfill}

	eg := g.Group("/enrollment", jwt)
	eg.POST("/backfill", api.backfill, adminMiddleware(user.RoleAdminOwner))
}

func (api *enrollmentApi) backfill(ctx echo.Context) error {
	report, err := api.runner.Run(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "running backfill")
	}
	return ctx.JSON(http.StatusOK, report)
}
