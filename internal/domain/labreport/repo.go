package labreport

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists blood reports together with their nested results.
type Repository interface {
	Create(ctx context.Context, r *BloodReport) error
	GetByID(ctx context.Context, id uuid.UUID) (*BloodReport, error)
	ListByCase(ctx context.Context, caseID uuid.UUID, limit, offset int) ([]*BloodReport, int, error)
	// ListByPatient returns every report across the patient's cases,
	// results included, for aggregation.
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*BloodReport, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
