package compilesvc

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	compilemw "github.com/tombwork/tomblang/internal/compilesvc/middleware"
	"github.com/tombwork/tomblang/internal/tomblang"
)

// httpCompileRequest/httpCompileResponse mirror CompileRequest/CompileResponse
// for JSON-over-HTTP callers that don't speak gRPC.
type httpCompileRequest struct {
	Source string `json:"source"`
}

type httpCompileResponse struct {
	RequestID  string           `json:"requestId"`
	SourceHash string           `json:"sourceHash"`
	Modules    []CompiledModule `json:"modules"`
	Signature  []byte           `json:"signature,omitempty"`
}

// NewEcho builds the REST façade for svc: POST /v1/compile, guarded by a
// per-caller rate limiter, with a CORS/Gzip/BodyLimit middleware stack in
// front of it.
func NewEcho(svc *Service, rateLimit compilemw.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.CORS())
	e.Use(middleware.Gzip())
	e.Use(middleware.BodyLimit("2M"))
	e.Use(compilemw.RateLimit(rateLimit))

	e.POST("/v1/compile", func(c echo.Context) error {
		var req httpCompileRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		if req.Source == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "source is required")
		}

		result, err := svc.Compile(c.Request().Context(), req.Source)
		if err != nil {
			if ce, ok := err.(*tomblang.CompilerError); ok {
				return echo.NewHTTPError(http.StatusUnprocessableEntity, ce.Error())
			}
			return echo.NewHTTPError(http.StatusInternalServerError, "compilation failed")
		}

		return c.JSON(http.StatusOK, httpCompileResponse{
			RequestID:  result.RequestID,
			SourceHash: result.SourceHash,
			Modules:    toWireModules(result.Modules),
			Signature:  result.Signature,
		})
	})

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	return e
}
