package algorithm

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mpi/mpi/internal/platform/auth"
)

type Handler struct {
	svc *Service

	// tuningEnabled gates configuration uploads; reads stay open so
	// operators can always inspect what is deployed.
	tuningEnabled bool
}

func NewHandler(svc *Service, tuningEnabled bool) *Handler {
	return &Handler{svc: svc, tuningEnabled: tuningEnabled}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/algorithm", h.List)
	g.GET("/algorithm/:label", h.Get)
	g.POST("/algorithm", h.Create, auth.RequireRole("tuner"))
}

func (h *Handler) List(c echo.Context) error {
	algorithms, err := h.svc.List(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	if algorithms == nil {
		algorithms = []*Algorithm{}
	}
	return c.JSON(http.StatusOK, map[string][]*Algorithm{"algorithms": algorithms})
}

func (h *Handler) Get(c echo.Context) error {
	a, err := h.svc.Get(c.Request().Context(), c.Param("label"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Create(c echo.Context) error {
	if !h.tuningEnabled {
		return echo.NewHTTPError(http.StatusForbidden, "algorithm uploads are disabled")
	}
	var a Algorithm
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.Create(c.Request().Context(), &a); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"label": a.Label})
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidAlgorithm):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "algorithm not found")
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, "algorithm label already exists")
	case errors.Is(err, ErrUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage unavailable")
	}
	return err
}
