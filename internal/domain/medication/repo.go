package medication

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists medications with their meal relations, plus the
// dose log that records per-day status decisions.
type Repository interface {
	Create(ctx context.Context, m *Medication) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medication, error)
	ListByCase(ctx context.Context, caseID uuid.UUID, limit, offset int) ([]*Medication, int, error)
	// ListActiveByPatient returns the patient's active medications across
	// all cases, meal relations included, for schedule generation.
	ListActiveByPatient(ctx context.Context, patientID uuid.UUID) ([]*Medication, error)
	Update(ctx context.Context, m *Medication) error
	Delete(ctx context.Context, id uuid.UUID) error

	// UpsertDoseLog records a status decision for one (medication,
	// frequency, day) dose instance, replacing any earlier decision.
	UpsertDoseLog(ctx context.Context, log *DoseLog) error
	ListDoseLogs(ctx context.Context, patientID uuid.UUID, day time.Time) ([]*DoseLog, error)
	// PatientsWithActiveMedications lists patients the missed-dose sweep
	// needs to visit.
	PatientsWithActiveMedications(ctx context.Context) ([]uuid.UUID, error)
}
