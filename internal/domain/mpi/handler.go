package mpi

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mpi/mpi/internal/platform/auth"
	"github.com/mpi/mpi/internal/platform/pii"
	"github.com/mpi/mpi/pkg/pagination"
)

// maxSeedClusters caps one seed request; larger loads go through repeated
// calls so a single transaction set stays bounded.
const maxSeedClusters = 100

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/person/:ref", h.GetPerson)
	g.POST("/person", h.CreatePerson, auth.RequireRole("linker"))
	g.GET("/patient/:ref", h.GetPatient)
	g.POST("/patient/:ref/person", h.AttachPatient, auth.RequireRole("linker"))
	g.GET("/patients/unattached", h.ListUnattached)
	g.POST("/seed", h.Seed, auth.RequireRole("linker"))
	g.GET("/stats", h.GetStats)
}

type personResponse struct {
	PersonReferenceID   uuid.UUID   `json:"person_reference_id"`
	PatientReferenceIDs []uuid.UUID `json:"patient_reference_ids"`
}

func (h *Handler) GetPerson(c echo.Context) error {
	ref, err := uuid.Parse(c.Param("ref"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid person reference id")
	}
	person, patients, err := h.svc.GetPerson(c.Request().Context(), ref)
	if err != nil {
		return storageError(err, "person not found")
	}
	resp := personResponse{
		PersonReferenceID:   person.ReferenceID,
		PatientReferenceIDs: make([]uuid.UUID, 0, len(patients)),
	}
	for _, p := range patients {
		resp.PatientReferenceIDs = append(resp.PatientReferenceIDs, p.ReferenceID)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) CreatePerson(c echo.Context) error {
	person, err := h.svc.CreatePerson(c.Request().Context())
	if err != nil {
		return storageError(err, "")
	}
	return c.JSON(http.StatusCreated, map[string]uuid.UUID{
		"person_reference_id": person.ReferenceID,
	})
}

type patientResponse struct {
	PatientReferenceID   uuid.UUID  `json:"patient_reference_id"`
	PersonReferenceID    *uuid.UUID `json:"person_reference_id"`
	Record               pii.Record `json:"record"`
	ExternalPatientID    *string    `json:"external_patient_id,omitempty"`
	ExternalPersonID     *string    `json:"external_person_id,omitempty"`
	ExternalPersonSource *string    `json:"external_person_source,omitempty"`
}

func (h *Handler) GetPatient(c echo.Context) error {
	ref, err := uuid.Parse(c.Param("ref"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient reference id")
	}
	patient, personRef, err := h.svc.GetPatient(c.Request().Context(), ref)
	if err != nil {
		return storageError(err, "patient not found")
	}
	return c.JSON(http.StatusOK, patientResponse{
		PatientReferenceID:   patient.ReferenceID,
		PersonReferenceID:    personRef,
		Record:               patient.Record,
		ExternalPatientID:    patient.ExternalPatientID,
		ExternalPersonID:     patient.ExternalPersonID,
		ExternalPersonSource: patient.ExternalPersonSource,
	})
}

type attachRequest struct {
	PersonReferenceID uuid.UUID `json:"person_reference_id"`
}

// AttachPatient resolves a review-queue patient (or corrects a placement)
// by assigning it to an existing person.
func (h *Handler) AttachPatient(c echo.Context) error {
	patientRef, err := uuid.Parse(c.Param("ref"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient reference id")
	}
	var req attachRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PersonReferenceID == uuid.Nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "person_reference_id is required")
	}
	if err := h.svc.AttachPatient(c.Request().Context(), patientRef, req.PersonReferenceID); err != nil {
		return storageError(err, "patient or person not found")
	}
	return c.JSON(http.StatusOK, map[string]uuid.UUID{
		"patient_reference_id": patientRef,
		"person_reference_id":  req.PersonReferenceID,
	})
}

// ListUnattached pages through patients awaiting manual resolution, those
// a linkage call graded possible and left without a person.
func (h *Handler) ListUnattached(c echo.Context) error {
	p := pagination.FromContext(c)
	patients, total, err := h.svc.ListUnattached(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return storageError(err, "")
	}
	data := make([]patientResponse, 0, len(patients))
	for _, pt := range patients {
		data = append(data, patientResponse{
			PatientReferenceID:   pt.ReferenceID,
			Record:               pt.Record,
			ExternalPatientID:    pt.ExternalPatientID,
			ExternalPersonID:     pt.ExternalPersonID,
			ExternalPersonSource: pt.ExternalPersonSource,
		})
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(data, total, p.Limit, p.Offset))
}

type seedRequest struct {
	Clusters []SeedCluster `json:"clusters"`
}

func (h *Handler) Seed(c echo.Context) error {
	var req seedRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Clusters) == 0 {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "clusters must not be empty")
	}
	if len(req.Clusters) > maxSeedClusters {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "clusters must not exceed 100 per request")
	}
	results, err := h.svc.Seed(c.Request().Context(), req.Clusters)
	if err != nil {
		if errors.Is(err, pii.ErrInvalidBirthdate) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		return storageError(err, "")
	}
	return c.JSON(http.StatusCreated, map[string][]SeedResult{"persons": results})
}

func (h *Handler) GetStats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return storageError(err, "")
	}
	return c.JSON(http.StatusOK, stats)
}

// storageError maps repository sentinels onto HTTP errors. notFoundMsg
// overrides the generic message for lookups whose subject is known.
func storageError(err error, notFoundMsg string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		if notFoundMsg == "" {
			notFoundMsg = "not found"
		}
		return echo.NewHTTPError(http.StatusNotFound, notFoundMsg)
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, "resource already exists")
	case errors.Is(err, ErrUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage unavailable")
	}
	return err
}
