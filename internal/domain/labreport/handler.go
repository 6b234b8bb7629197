package labreport

import (
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

// NewHandler builds the lab report handler. parser may be nil when no
// document parsing provider is configured; the parse endpoint then
// responds 503.
func NewHandler(svc *Service, parser docparse.Parser) *Handler {
	return &Handler{svc: svc, parser: parser}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/cases/:caseId/reports", h.CreateReport)
	api.GET("/cases/:caseId/reports", h.ListReports)
	api.POST("/cases/:caseId/reports/parse", h.ParseDocument)
	api.GET("/reports/:id", h.GetReport)
	api.DELETE("/reports/:id", h.DeleteReport)

	api.GET("/biomarkers", h.ListBiomarkers)
	api.GET("/biomarkers/:name/trend", h.GetTrend)
}

func (h *Handler) CreateReport(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	caseID, err := uuid.Parse(c.Param("caseId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}
	var r BloodReport
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r.CaseID = caseID
	if err := h.svc.CreateReport(c.Request().Context(), patientID, &r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) ListReports(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	caseID, err := uuid.Parse(c.Param("caseId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}
	p := pagination.FromContext(c)
	reports, total, err := h.svc.ListByCase(c.Request().Context(), patientID, caseID, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(reports, total, p.Limit, p.Offset))
}

// ParseDocument accepts a multipart upload, runs it through the document
// parser and stores the extracted report under the case.
func (h *Handler) ParseDocument(c echo.Context) error {
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

	parsed, err := h.parser.ParseBloodReport(c.Request().Context(), doc, mimeType)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "document parsing failed")
	}

	report, err := h.svc.ImportParsed(c.Request().Context(), patientID, caseID, parsed)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, report)
}

func (h *Handler) GetReport(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := h.svc.GetReport(c.Request().Context(), patientID, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) DeleteReport(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteReport(c.Request().Context(), patientID, id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListBiomarkers(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}

	q := BiomarkerQuery{Category: c.QueryParam("category")}
	if from := c.QueryParam("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from date, expected YYYY-MM-DD")
		}
		q.From = &t
	}
	if to := c.QueryParam("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to date, expected YYYY-MM-DD")
		}
		q.To = &t
	}
	if (q.From == nil) != (q.To == nil) {
		return echo.NewHTTPError(http.StatusBadRequest, "from and to must be supplied together")
	}

	biomarkers, err := h.svc.Biomarkers(c.Request().Context(), patientID, q)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"biomarkers": biomarkers,
		"count":      len(biomarkers),
	})
}

func (h *Handler) GetTrend(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	trend, err := h.svc.Trend(c.Request().Context(), patientID, c.Param("name"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if trend == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no data for biomarker")
	}
	return c.JSON(http.StatusOK, trend)
}
