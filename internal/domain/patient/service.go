package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var validCaseStatuses = map[string]bool{
	"active": true, "resolved": true, "archived": true,
}

type Service struct {
	patients PatientRepository
	cases    MedicalCaseRepository
}

func NewService(p PatientRepository, mc MedicalCaseRepository) *Service {
	return &Service{patients: p, cases: mc}
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}

func (s *Service) CreateCase(ctx context.Context, mc *MedicalCase) error {
	if mc.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if strings.TrimSpace(mc.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if mc.Status == "" {
		mc.Status = "active"
	}
	if !validCaseStatuses[mc.Status] {
		return fmt.Errorf("invalid status: %s", mc.Status)
	}
	return s.cases.Create(ctx, mc)
}

func (s *Service) GetCase(ctx context.Context, id uuid.UUID) (*MedicalCase, error) {
	return s.cases.GetByID(ctx, id)
}

func (s *Service) UpdateCase(ctx context.Context, mc *MedicalCase) error {
	if mc.Status != "" && !validCaseStatuses[mc.Status] {
		return fmt.Errorf("invalid status: %s", mc.Status)
	}
	return s.cases.Update(ctx, mc)
}

func (s *Service) DeleteCase(ctx context.Context, id uuid.UUID) error {
	return s.cases.Delete(ctx, id)
}

func (s *Service) ListCases(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*MedicalCase, int, error) {
	return s.cases.ListByPatient(ctx, patientID, limit, offset)
}
