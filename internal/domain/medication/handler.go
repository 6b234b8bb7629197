package medication

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/walnut/walnut/internal/platform/auth"
	"github.com/walnut/walnut/internal/platform/docparse"
	"github.com/walnut/walnut/pkg/pagination"
)

const maxDocumentBytes = 20 << 20

type Handler struct {
	svc    *Service
	parser docparse.Parser
}

func NewHandler(svc *Service, parser docparse.Parser) *Handler {
	return &Handler{svc: svc, parser: parser}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/cases/:caseId/medications", h.CreateMedication)
	api.GET("/cases/:caseId/medications", h.ListMedications)
	api.POST("/cases/:caseId/prescriptions/parse", h.ParsePrescription)
	api.GET("/medications/:id", h.GetMedication)
	api.PUT("/medications/:id", h.UpdateMedication)
	api.DELETE("/medications/:id", h.DeleteMedication)

	api.GET("/schedule", h.GetSchedule)
	api.GET("/schedule/metrics", h.GetScheduleMetrics)
	api.POST("/schedule/doses", h.RecordDoseStatus)
}

// statusForError maps scheduler errors onto HTTP codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrInvalidMedication), errors.Is(err, ErrInvalidFrequency):
		return http.StatusBadRequest
	case errors.Is(err, ErrDoseUpdateFailed):
		return http.StatusConflict
	case errors.Is(err, ErrPersistence), errors.Is(err, ErrSchedulingFailed):
		return http.StatusInternalServerError
	default:
		return http.StatusNotFound
	}
}

func (h *Handler) CreateMedication(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	caseID, err := uuid.Parse(c.Param("caseId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}
	var m Medication
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m.CaseID = caseID
	if err := h.svc.CreateMedication(c.Request().Context(), patientID, &m); err != nil {
		return echo.NewHTTPError(statusForError(err), err.Error())
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) ListMedications(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	caseID, err := uuid.Parse(c.Param("caseId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}
	p := pagination.FromContext(c)
	meds, total, err := h.svc.ListByCase(c.Request().Context(), patientID, caseID, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(meds, total, p.Limit, p.Offset))
}

// ParsePrescription accepts a multipart upload, extracts medications with
// the document parser and stores them under the case.
func (h *Handler) ParsePrescription(c echo.Context) error {
	if h.parser == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "document parsing is not configured")
	}
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	caseID, err := uuid.Parse(c.Param("caseId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}

	fh, err := c.FormFile("document")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "document file is required")
	}
	if fh.Size > maxDocumentBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "document too large")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read document")
	}
	defer f.Close()
	doc, err := io.ReadAll(f)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read document")
	}

	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/pdf"
	}

	parsed, err := h.parser.ParsePrescription(c.Request().Context(), doc, mimeType)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "document parsing failed")
	}

	meds, err := h.svc.ImportPrescription(c.Request().Context(), patientID, caseID, parsed)
	if err != nil {
		return echo.NewHTTPError(statusForError(err), err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"medications": meds,
		"count":       len(meds),
	})
}

func (h *Handler) GetMedication(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	m, err := h.svc.GetMedication(c.Request().Context(), patientID, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "medication not found")
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) UpdateMedication(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var m Medication
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m.ID = id
	if err := h.svc.UpdateMedication(c.Request().Context(), patientID, &m); err != nil {
		return echo.NewHTTPError(statusForError(err), err.Error())
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) DeleteMedication(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteMedication(c.Request().Context(), patientID, id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "medication not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// GetSchedule returns the dose timeline for one day, defaulting to today.
func (h *Handler) GetSchedule(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	day := time.Now()
	if date := c.QueryParam("date"); date != "" {
		day, err = time.Parse("2006-01-02", date)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		}
	}
	schedule, err := h.svc.Schedule(c.Request().Context(), patientID, day)
	if err != nil {
		return echo.NewHTTPError(statusForError(err), err.Error())
	}
	return c.JSON(http.StatusOK, schedule)
}

// GetScheduleMetrics returns only the day's dose counts.
func (h *Handler) GetScheduleMetrics(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	day := time.Now()
	if date := c.QueryParam("date"); date != "" {
		day, err = time.Parse("2006-01-02", date)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		}
	}
	schedule, err := h.svc.Schedule(c.Request().Context(), patientID, day)
	if err != nil {
		return echo.NewHTTPError(statusForError(err), err.Error())
	}
	return c.JSON(http.StatusOK, schedule.Metrics)
}

type doseStatusRequest struct {
	MedicationID uuid.UUID  `json:"medication_id"`
	FrequencyID  uuid.UUID  `json:"frequency_id"`
	Date         string     `json:"date"`
	Status       DoseStatus `json:"status"`
	TakenAt      *time.Time `json:"taken_at,omitempty"`
}

func (h *Handler) RecordDoseStatus(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	var req doseStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	day := time.Now()
	if req.Date != "" {
		day, err = time.Parse("2006-01-02", req.Date)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		}
	}
	dose, err := h.svc.RecordDoseStatus(c.Request().Context(), patientID,
		req.MedicationID, req.FrequencyID, day, req.Status, req.TakenAt)
	if err != nil {
		return echo.NewHTTPError(statusForError(err), err.Error())
	}
	return c.JSON(http.StatusOK, dose)
}
