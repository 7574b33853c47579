package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/medilink/clinic-queue-backend/internal/common/middlewares"
	"github.com/medilink/clinic-queue-backend/internal/queue/models"
	"github.com/medilink/clinic-queue-backend/internal/queue/services"
	"github.com/medilink/clinic-queue-backend/pkg/utils"
)

// IdentityResolver maps patient refs to display names for queue view
// decoration.
type IdentityResolver interface {
	GetPatientIdentity(ctx context.Context, ref string) (string, error)
}

type QueueController struct {
	QueueService *services.QueueService
	Identity     IdentityResolver
}

func NewQueueController(service *services.QueueService, identity IdentityResolver) *QueueController {
	return &QueueController{QueueService: service, Identity: identity}
}

// envelope is the response shape every endpoint returns.
func envelope(c echo.Context, status int, message string, data interface{}) error {
	return c.JSON(status, map[string]interface{}{
		"status":  status,
		"message": message,
		"data":    data,
	})
}

// httpStatusFor maps the command error taxonomy onto HTTP statuses.
// Commands never fail silently; every error reaches the operator as a
// dismissible message.
func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrEmptyQueue), errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrStationBusy),
		errors.Is(err, models.ErrNoCurrentPatient),
		errors.Is(err, models.ErrNotSkipped):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidTarget):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrTransientIO):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func stationParams(c echo.Context) (models.StationType, int, error) {
	stationType := models.StationType(c.QueryParam("station_type"))
	if !models.ValidStationType(stationType) {
		return "", 0, errors.New("station_type is not recognized")
	}
	idStr := c.QueryParam("station_id")
	if idStr == "" {
		return stationType, 1, nil
	}
	stationID, err := strconv.Atoi(idStr)
	if err != nil || stationID < 1 {
		return "", 0, errors.New("station_id must be a positive number")
	}
	return stationType, stationID, nil
}

func entryIDParam(c echo.Context, required bool) (int64, error) {
	idStr := c.QueryParam("entry_id")
	if idStr == "" {
		if required {
			return 0, errors.New("entry_id parameter is required")
		}
		return 0, nil
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New("entry_id must be a positive number")
	}
	return id, nil
}

// operatorRef pulls the acting employee out of the JWT claims for
// command attribution.
func operatorRef(c echo.Context) string {
	claims, ok := c.Get(string(middlewares.ContextKeyClaims)).(*utils.Claims)
	if !ok || claims == nil {
		return ""
	}
	return claims.EmployeeID
}

// GetQueueDataHandler returns the authoritative queue view for one
// station. Read-only; displays and consoles both use it.
func (qc *QueueController) GetQueueDataHandler(c echo.Context) error {
	station, _, err := stationParams(c)
	if err != nil {
		return envelope(c, http.StatusBadRequest, err.Error(), nil)
	}
	data, err := qc.QueueService.QueueData(c.Request().Context(), station)
	if err != nil {
		return envelope(c, httpStatusFor(err), err.Error(), nil)
	}
	qc.decorate(c.Request().Context(), data)
	return envelope(c, http.StatusOK, "queue data retrieved", data)
}

// decorate fills patient display names on the view. An entry whose ref
// cannot be resolved keeps its bare ref; the view never fails over a
// missing identity.
func (qc *QueueController) decorate(ctx context.Context, data *models.QueueData) {
	if qc.Identity == nil {
		return
	}
	names := make(map[string]string)
	fill := func(entries []models.QueueEntry) {
		for i := range entries {
			entries[i].PatientName = qc.patientName(ctx, names, entries[i].PatientRef)
		}
	}
	fill(data.Waiting)
	fill(data.Skipped)
	fill(data.Completed)
	fill(data.InProgress)
	if data.CurrentPatient != nil {
		data.CurrentPatient.PatientName = qc.patientName(ctx, names, data.CurrentPatient.PatientRef)
	}
}

func (qc *QueueController) patientName(ctx context.Context, cache map[string]string, ref string) string {
	if name, ok := cache[ref]; ok {
		return name
	}
	name, err := qc.Identity.GetPatientIdentity(ctx, ref)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			log.Debug().Err(err).Str("patient_ref", ref).Msg("patient identity lookup failed")
		}
		name = ""
	}
	cache[ref] = name
	return name
}

func (qc *QueueController) CallNextHandler(c echo.Context) error {
	station, stationID, err := stationParams(c)
	if err != nil {
		return envelope(c, http.StatusBadRequest, err.Error(), nil)
	}

	entry, err := qc.QueueService.CallNext(c.Request().Context(), station, stationID)
	if err != nil {
		return envelope(c, httpStatusFor(err), err.Error(), nil)
	}

	log.Info().
		Str("station", string(station)).
		Int("station_id", stationID).
		Int64("entry_id", entry.ID).
		Str("operator", operatorRef(c)).
		Msg("patient called")
	return envelope(c, http.StatusOK, "patient called", entry)
}

func (qc *QueueController) SkipPatientHandler(c echo.Context) error {
	station, stationID, err := stationParams(c)
	if err != nil {
		return envelope(c, http.StatusBadRequest, err.Error(), nil)
	}
	entryID, err := entryIDParam(c, false)
	if err != nil {
		return envelope(c, http.StatusBadRequest, err.Error(), nil)
	}

	entry, err := qc.QueueService.SkipPatient(c.Request().Context(), station, stationID, entryID)
	if err != nil {
		return envelope(c, httpStatusFor(err), err.Error(), nil)
	}
	return envelope(c, http.StatusOK, "patient skipped", entry)
}

func (qc *QueueController) RecallPatientHandler(c echo.Context) error {
	station, stationID, err := stationParams(c)
	if err != nil {
		return envelope(c, http.StatusBadRequest, err.Error(), nil)
	}
	entryID, err := entryIDParam(c, false)
	if err != nil {
		return envelope(c, http.StatusBadRequest, err.Error(), nil)
	}

	entry, err := qc.QueueService.RecallPatient(c.Request().Context(), station, stationID, entryID)
	if err != nil {
		return envelope(c, httpStatusFor(err), err.Error(), nil)
	}
	return envelope(c, http.StatusOK, "patient recalled", entry)
}

func (qc *QueueController) ForceCallHandler(c echo.Context) error {
	station, stationID, err := stationParams(c)
	if err != nil {
		return envelope(c, http.StatusBadRequest, err.Error(), nil)
	}
	entryID, err := entryIDParam(c, false)
	if err != nil {
		return envelope(c, http.StatusBadRequest, err.Error(), nil)
	}

	entry, err := qc.QueueService.ForceCall(c.Request().Context(), station, stationID, entryID)
	if err != nil {
		return envelope(c, httpStatusFor(err), err.Error(), nil)
	}
	return envelope(c, http.StatusOK, "patient force called", entry)
}

func (qc *QueueController) CompletePatientHandler(c echo.Context) error {
	station, stationID, err := stationParams(c)
	if err != nil {
		return envelope(c, http.StatusBadRequest, err.Error(), nil)
	}
	entryID, err := entryIDParam(c, false)
	if err != nil {
		return envelope(c, http.StatusBadRequest, err.Error(), nil)
	}

	entry, err := qc.QueueService.CompletePatient(c.Request().Context(), station, stationID, entryID)
	if err != nil {
		return envelope(c, httpStatusFor(err), err.Error(), nil)
	}
	return envelope(c, http.StatusOK, "patient completed", entry)
}

func (qc *QueueController) PushToStationHandler(c echo.Context) error {
	station, stationID, err := stationParams(c)
	if err != nil {
		return envelope(c, http.StatusBadRequest, err.Error(), nil)
	}
	entryID, err := entryIDParam(c, false)
	if err != nil {
		return envelope(c, http.StatusBadRequest, err.Error(), nil)
	}
	target := models.StationType(c.QueryParam("target"))
	if target == "" {
		return envelope(c, http.StatusBadRequest, "target parameter is required", nil)
	}

	completed, created, err := qc.QueueService.PushToStation(c.Request().Context(), station, stationID, entryID, target)
	if err != nil {
		return envelope(c, httpStatusFor(err), err.Error(), nil)
	}
	return envelope(c, http.StatusOK, "patient pushed to "+string(target), map[string]interface{}{
		"completed": completed,
		"created":   created,
	})
}

type intakeRequest struct {
	PatientRef    string               `json:"patient_ref"`
	StationType   models.StationType   `json:"station_type"`
	PriorityLevel models.PriorityLevel `json:"priority_level"`
}

// IntakeHandler admits a patient to a station's waiting list. The
// station defaults to triage, the tier to normal.
func (qc *QueueController) IntakeHandler(c echo.Context) error {
	var req intakeRequest
	if err := c.Bind(&req); err != nil {
		return envelope(c, http.StatusBadRequest, "invalid request body", nil)
	}
	if req.PatientRef == "" {
		return envelope(c, http.StatusBadRequest, "patient_ref is required", nil)
	}
	if req.StationType == "" {
		req.StationType = models.StationTriage
	}

	entry, err := qc.QueueService.RegisterPatient(c.Request().Context(), req.PatientRef, req.StationType, req.PriorityLevel)
	if err != nil {
		return envelope(c, httpStatusFor(err), err.Error(), nil)
	}

	log.Info().
		Str("patient_ref", req.PatientRef).
		Str("station", string(req.StationType)).
		Str("queue_code", entry.QueueCode).
		Str("operator", operatorRef(c)).
		Msg("patient admitted")
	return envelope(c, http.StatusOK, "patient admitted to queue", entry)
}
