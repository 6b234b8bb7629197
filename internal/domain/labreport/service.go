package labreport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/walnut/walnut/internal/domain/patient"
	"github.com/walnut/walnut/internal/platform/docparse"
)

// CaseLookup resolves a medical case for ownership checks. Satisfied by
// the patient service.
type CaseLookup interface {
	GetCase(ctx context.Context, id uuid.UUID) (*patient.MedicalCase, error)
}

type Service struct {
	repo  Repository
	cases CaseLookup
}

func NewService(repo Repository, cases CaseLookup) *Service {
	return &Service{repo: repo, cases: cases}
}

// ownedCase verifies the case exists and belongs to the patient.
func (s *Service) ownedCase(ctx context.Context, patientID, caseID uuid.UUID) (*patient.MedicalCase, error) {
	mc, err := s.cases.GetCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("case not found: %w", err)
	}
	if mc.PatientID != patientID {
		return nil, fmt.Errorf("case %s does not belong to patient", caseID)
	}
	return mc, nil
}

func (s *Service) CreateReport(ctx context.Context, patientID uuid.UUID, r *BloodReport) error {
	if strings.TrimSpace(r.TestName) == "" {
		return fmt.Errorf("report test name is required")
	}
	if _, err := s.ownedCase(ctx, patientID, r.CaseID); err != nil {
		return err
	}
	return s.repo.Create(ctx, r)
}

// ImportParsed stores a document-parser result as a blood report. Parsed
// output is stored as-is; incomplete reports are tolerated here and
// filtered out later at aggregation time.
func (s *Service) ImportParsed(ctx context.Context, patientID, caseID uuid.UUID, parsed *docparse.ParsedBloodReport) (*BloodReport, error) {
	r := &BloodReport{
		CaseID:     caseID,
		TestName:   parsed.TestName,
		LabName:    parsed.LabName,
		Category:   parsed.Category,
		ResultDate: parsed.ResultDate,
	}
	if parsed.Notes != "" {
		notes := parsed.Notes
		r.Notes = &notes
	}
	for _, pr := range parsed.TestResults {
		r.Results = append(r.Results, &BloodTestResult{
			TestName:       pr.TestName,
			Value:          pr.Value,
			Unit:           pr.Unit,
			ReferenceRange: pr.ReferenceRange,
			IsAbnormal:     pr.IsAbnormal,
		})
	}
	if err := s.CreateReport(ctx, patientID, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) GetReport(ctx context.Context, patientID, id uuid.UUID) (*BloodReport, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedCase(ctx, patientID, r.CaseID); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) ListByCase(ctx context.Context, patientID, caseID uuid.UUID, limit, offset int) ([]*BloodReport, int, error) {
	if _, err := s.ownedCase(ctx, patientID, caseID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByCase(ctx, caseID, limit, offset)
}

func (s *Service) DeleteReport(ctx context.Context, patientID, id uuid.UUID) error {
	if _, err := s.GetReport(ctx, patientID, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// BiomarkerQuery narrows aggregation to a category or date window.
type BiomarkerQuery struct {
	Category string
	From     *time.Time
	To       *time.Time
}

// Biomarkers loads every report for the patient and aggregates them into
// trend-annotated biomarker rows. Always recomputed from the store.
func (s *Service) Biomarkers(ctx context.Context, patientID uuid.UUID, q BiomarkerQuery) ([]*AggregatedBiomarker, error) {
	reports, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if q.Category != "" {
		reports = FilterByCategory(reports, q.Category)
	}
	if q.From != nil && q.To != nil {
		reports = FilterByDateRange(reports, *q.From, *q.To)
	}
	return GenerateAggregatedBiomarkers(reports), nil
}

// Trend returns the trend for a single biomarker, or nil when the patient
// has no data for it.
func (s *Service) Trend(ctx context.Context, patientID uuid.UUID, testName string) (*BiomarkerTrend, error) {
	reports, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return BiomarkerTrendFor(reports, testName), nil
}
