package auth

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const patientIDKey = "patient_id"

// Middleware validates the Authorization bearer token and stores the patient
// ID in the echo context.
func Middleware(issuer *TokenIssuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "malformed authorization header")
			}

			claims, err := issuer.Verify(parts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(patientIDKey, claims.PatientID)
			return next(c)
		}
	}
}

// DevMiddleware grants every request a fixed patient identity. Development only.
func DevMiddleware(patientID uuid.UUID) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(patientIDKey, patientID.String())
			return next(c)
		}
	}
}

// PatientID returns the authenticated patient's ID from the context.
func PatientID(c echo.Context) (uuid.UUID, error) {
	raw, ok := c.Get(patientIDKey).(string)
	if !ok || raw == "" {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "no authenticated patient")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid patient identity")
	}
	return id, nil
}
