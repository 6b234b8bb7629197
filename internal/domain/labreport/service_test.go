package labreport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/walnut/walnut/internal/domain/patient"
	"github.com/walnut/walnut/internal/platform/docparse"
)

type mockRepo struct {
	reports map[uuid.UUID]*BloodReport
	// caseOwner maps case id to patient id for ListByPatient.
	caseOwner map[uuid.UUID]uuid.UUID
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		reports:   make(map[uuid.UUID]*BloodReport),
		caseOwner: make(map[uuid.UUID]uuid.UUID),
	}
}

func (m *mockRepo) Create(ctx context.Context, r *BloodReport) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	for _, res := range r.Results {
		res.ID = uuid.New()
		res.ReportID = r.ID
	}
	m.reports[r.ID] = r
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*BloodReport, error) {
	r, ok := m.reports[id]
	if !ok {
		return nil, fmt.Errorf("report %s not found", id)
	}
	return r, nil
}

func (m *mockRepo) ListByCase(ctx context.Context, caseID uuid.UUID, limit, offset int) ([]*BloodReport, int, error) {
	var out []*BloodReport
	for _, r := range m.reports {
		if r.CaseID == caseID {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*BloodReport, error) {
	var out []*BloodReport
	for _, r := range m.reports {
		if m.caseOwner[r.CaseID] == patientID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(m.reports, id)
	return nil
}

type mockCaseLookup struct {
	cases map[uuid.UUID]*patient.MedicalCase
}

func (m *mockCaseLookup) GetCase(ctx context.Context, id uuid.UUID) (*patient.MedicalCase, error) {
	mc, ok := m.cases[id]
	if !ok {
		return nil, fmt.Errorf("case %s not found", id)
	}
	return mc, nil
}

func newTestService() (*Service, *mockRepo, *mockCaseLookup) {
	repo := newMockRepo()
	cases := &mockCaseLookup{cases: make(map[uuid.UUID]*patient.MedicalCase)}
	return NewService(repo, cases), repo, cases
}

func addCase(repo *mockRepo, cases *mockCaseLookup, patientID uuid.UUID) uuid.UUID {
	caseID := uuid.New()
	cases.cases[caseID] = &patient.MedicalCase{ID: caseID, PatientID: patientID, Title: "Episode", Status: "active"}
	repo.caseOwner[caseID] = patientID
	return caseID
}

func TestCreateReportRejectsForeignCase(t *testing.T) {
	svc, repo, cases := newTestService()
	owner := uuid.New()
	intruder := uuid.New()
	caseID := addCase(repo, cases, owner)

	now := time.Now()
	r := &BloodReport{CaseID: caseID, TestName: "CBC", ResultDate: &now}
	if err := svc.CreateReport(context.Background(), intruder, r); err == nil {
		t.Fatal("expected ownership error")
	}
}

func TestCreateReportRequiresTestName(t *testing.T) {
	svc, repo, cases := newTestService()
	patientID := uuid.New()
	caseID := addCase(repo, cases, patientID)

	r := &BloodReport{CaseID: caseID, TestName: "   "}
	if err := svc.CreateReport(context.Background(), patientID, r); err == nil {
		t.Fatal("expected error for blank test name")
	}
}

func TestImportParsed(t *testing.T) {
	svc, repo, cases := newTestService()
	patientID := uuid.New()
	caseID := addCase(repo, cases, patientID)

	d := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	parsed := &docparse.ParsedBloodReport{
		TestName:   "Complete Blood Count",
		LabName:    "City Lab",
		Category:   "hematology",
		ResultDate: &d,
		Notes:      "fasting sample",
		TestResults: []docparse.ParsedTestResult{
			{TestName: "WBC", Value: "7.8", Unit: "K/uL", ReferenceRange: "4.5-11.0"},
			{TestName: "RBC", Value: "4.9", Unit: "M/uL", ReferenceRange: "4.5-5.9"},
		},
	}

	r, err := svc.ImportParsed(context.Background(), patientID, caseID, parsed)
	if err != nil {
		t.Fatalf("ImportParsed: %v", err)
	}
	if len(r.Results) != 2 {
		t.Errorf("got %d results, want 2", len(r.Results))
	}
	if r.Notes == nil || *r.Notes != "fasting sample" {
		t.Error("notes not carried over")
	}
	if _, ok := repo.reports[r.ID]; !ok {
		t.Error("report not persisted")
	}
}

func TestBiomarkersAcrossCases(t *testing.T) {
	svc, repo, cases := newTestService()
	patientID := uuid.New()
	caseA := addCase(repo, cases, patientID)
	caseB := addCase(repo, cases, patientID)
	ctx := context.Background()

	d1 := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)

	for _, in := range []struct {
		caseID uuid.UUID
		date   time.Time
		value  string
	}{
		{caseA, d1, "7.0"},
		{caseB, d2, "9.0"},
	} {
		date := in.date
		r := &BloodReport{
			CaseID: in.caseID, TestName: "CBC", Category: "hematology", ResultDate: &date,
			Results: []*BloodTestResult{{TestName: "WBC", Value: in.value, Unit: "K/uL"}},
		}
		if err := svc.CreateReport(ctx, patientID, r); err != nil {
			t.Fatalf("CreateReport: %v", err)
		}
	}

	biomarkers, err := svc.Biomarkers(ctx, patientID, BiomarkerQuery{})
	if err != nil {
		t.Fatalf("Biomarkers: %v", err)
	}
	if len(biomarkers) != 1 {
		t.Fatalf("got %d biomarkers, want 1 (cases should pool)", len(biomarkers))
	}
	if biomarkers[0].ResultCount != 2 {
		t.Errorf("ResultCount = %d, want 2", biomarkers[0].ResultCount)
	}
	if biomarkers[0].CurrentValue != "9.0" {
		t.Errorf("CurrentValue = %q, want 9.0", biomarkers[0].CurrentValue)
	}
}

func TestBiomarkersCategoryFilter(t *testing.T) {
	svc, repo, cases := newTestService()
	patientID := uuid.New()
	caseID := addCase(repo, cases, patientID)
	ctx := context.Background()
	now := time.Now()

	for _, in := range []struct{ category, name, value string }{
		{"hematology", "WBC", "7.8"},
		{"lipids", "LDL", "110"},
	} {
		r := &BloodReport{
			CaseID: caseID, TestName: "Panel", Category: in.category, ResultDate: &now,
			Results: []*BloodTestResult{{TestName: in.name, Value: in.value}},
		}
		if err := svc.CreateReport(ctx, patientID, r); err != nil {
			t.Fatalf("CreateReport: %v", err)
		}
	}

	biomarkers, err := svc.Biomarkers(ctx, patientID, BiomarkerQuery{Category: "lipids"})
	if err != nil {
		t.Fatalf("Biomarkers: %v", err)
	}
	if len(biomarkers) != 1 || NormalizeTestName(biomarkers[0].TestName) != "ldl" {
		t.Fatalf("category filter leaked: %d biomarkers", len(biomarkers))
	}
}

func TestTrendService(t *testing.T) {
	svc, repo, cases := newTestService()
	patientID := uuid.New()
	caseID := addCase(repo, cases, patientID)
	ctx := context.Background()

	d := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	for i, value := range []string{"7.8", "9.0"} {
		date := d.AddDate(0, 0, i)
		r := &BloodReport{
			CaseID: caseID, TestName: "CBC", ResultDate: &date,
			Results: []*BloodTestResult{{TestName: "WBC", Value: value}},
		}
		if err := svc.CreateReport(ctx, patientID, r); err != nil {
			t.Fatalf("CreateReport: %v", err)
		}
	}

	trend, err := svc.Trend(ctx, patientID, "WBC")
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	if trend == nil || trend.Direction != TrendUp {
		t.Fatalf("trend = %+v, want up", trend)
	}
}

func TestDeleteReportChecksOwnership(t *testing.T) {
	svc, repo, cases := newTestService()
	owner := uuid.New()
	intruder := uuid.New()
	caseID := addCase(repo, cases, owner)
	ctx := context.Background()

	now := time.Now()
	r := &BloodReport{
		CaseID: caseID, TestName: "CBC", ResultDate: &now,
		Results: []*BloodTestResult{{TestName: "WBC", Value: "7.8"}},
	}
	if err := svc.CreateReport(ctx, owner, r); err != nil {
		t.Fatalf("CreateReport: %v", err)
	}

	if err := svc.DeleteReport(ctx, intruder, r.ID); err == nil {
		t.Fatal("expected ownership error")
	}
	if err := svc.DeleteReport(ctx, owner, r.ID); err != nil {
		t.Fatalf("DeleteReport as owner: %v", err)
	}
	if _, ok := repo.reports[r.ID]; ok {
		t.Error("report still present after delete")
	}
}
