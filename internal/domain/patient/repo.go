package patient

import (
	"context"

	"github.com/google/uuid"
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type MedicalCaseRepository interface {
	Create(ctx context.Context, mc *MedicalCase) error
	GetByID(ctx context.Context, id uuid.UUID) (*MedicalCase, error)
	Update(ctx context.Context, mc *MedicalCase) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*MedicalCase, int, error)
}
