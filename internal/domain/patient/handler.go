package patient

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/walnut/walnut/internal/platform/auth"
	"github.com/walnut/walnut/pkg/pagination"
)

type Handler struct {
	svc    *Service
	tokens *auth.TokenIssuer
}

func NewHandler(svc *Service, tokens *auth.TokenIssuer) *Handler {
	return &Handler{svc: svc, tokens: tokens}
}

// RegisterRoutes wires the patient endpoints. The public group carries no auth
// middleware; api requires a bearer token.
func (h *Handler) RegisterRoutes(public, api *echo.Group) {
	public.POST("/auth/register", h.Register)

	api.GET("/me", h.GetMe)
	api.PUT("/me", h.UpdateMe)
	api.DELETE("/me", h.DeleteMe)

	api.POST("/cases", h.CreateCase)
	api.GET("/cases", h.ListCases)
	api.GET("/cases/:id", h.GetCase)
	api.PUT("/cases/:id", h.UpdateCase)
	api.DELETE("/cases/:id", h.DeleteCase)
}

type registerResponse struct {
	Patient *Patient `json:"patient"`
	Token   string   `json:"token"`
}

func (h *Handler) Register(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreatePatient(c.Request().Context(), &p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	token, err := h.tokens.Issue(p.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to issue token")
	}
	return c.JSON(http.StatusCreated, registerResponse{Patient: &p, Token: token})
}

func (h *Handler) GetMe(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateMe(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = patientID
	if err := h.svc.UpdatePatient(c.Request().Context(), &p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeleteMe(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), patientID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CreateCase(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	var mc MedicalCase
	if err := c.Bind(&mc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	mc.PatientID = patientID
	if err := h.svc.CreateCase(c.Request().Context(), &mc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, mc)
}

func (h *Handler) ListCases(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	cases, total, err := h.svc.ListCases(c.Request().Context(), patientID, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(cases, total, p.Limit, p.Offset))
}

// ownedCase loads a case and verifies it belongs to the authenticated patient.
func (h *Handler) ownedCase(c echo.Context) (*MedicalCase, error) {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	mc, err := h.svc.GetCase(c.Request().Context(), id)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "case not found")
	}
	if mc.PatientID != patientID {
		return nil, echo.NewHTTPError(http.StatusNotFound, "case not found")
	}
	return mc, nil
}

func (h *Handler) GetCase(c echo.Context) error {
	mc, err := h.ownedCase(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, mc)
}

func (h *Handler) UpdateCase(c echo.Context) error {
	mc, err := h.ownedCase(c)
	if err != nil {
		return err
	}
	var in MedicalCase
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	mc.Title = in.Title
	mc.CaseType = in.CaseType
	if in.Status != "" {
		mc.Status = in.Status
	}
	mc.Notes = in.Notes
	if err := h.svc.UpdateCase(c.Request().Context(), mc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, mc)
}

func (h *Handler) DeleteCase(c echo.Context) error {
	mc, err := h.ownedCase(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteCase(c.Request().Context(), mc.ID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
