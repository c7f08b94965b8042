package linkage

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mpi/mpi/internal/domain/algorithm"
	"github.com/mpi/mpi/internal/domain/mpi"
	"github.com/mpi/mpi/internal/platform/auth"
	"github.com/mpi/mpi/internal/platform/hl7v2"
	"github.com/mpi/mpi/internal/platform/pii"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/link", h.Link, auth.RequireRole("linker"))
	g.POST("/link/hl7v2", h.LinkHL7, auth.RequireRole("linker"))
}

func (h *Handler) Link(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	resp, err := h.svc.Link(c.Request().Context(), &req)
	if err != nil {
		return linkError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// LinkHL7 accepts a raw HL7 v2 message carrying a PID segment, extracts the
// demographics, and links them like any other record. The algorithm label
// may be passed as a query parameter.
func (h *Handler) LinkHL7(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable request body")
	}
	msg, err := hl7v2.Parse(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := hl7v2.ExtractRecord(msg)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	req := &Request{Record: *rec, Algorithm: c.QueryParam("algorithm")}
	if msg.SendingFacility != "" {
		src := msg.SendingFacility
		req.ExternalPersonSource = &src
	}
	resp, err := h.svc.Link(c.Request().Context(), req)
	if err != nil {
		return linkError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// linkError translates service errors into the documented response codes.
// Client mistakes are 422s with fixed detail strings; storage trouble is a
// retryable 503.
func linkError(err error) error {
	switch {
	case errors.Is(err, algorithm.ErrNotFound):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "No algorithm found")
	case errors.Is(err, ErrEmptyRecord):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "empty-record")
	case errors.Is(err, pii.ErrInvalidBirthdate):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, mpi.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, "resource already exists")
	case errors.Is(err, mpi.ErrUnavailable), errors.Is(err, algorithm.ErrUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage unavailable")
	}
	return err
}
