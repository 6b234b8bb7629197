package medication

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/walnut/walnut/internal/domain/patient"
	"github.com/walnut/walnut/internal/platform/docparse"
)

type doseLogKey struct {
	medicationID uuid.UUID
	frequencyID  uuid.UUID
	date         string
}

type mockRepo struct {
	medications map[uuid.UUID]*Medication
	caseOwner   map[uuid.UUID]uuid.UUID
	doseLogs    map[doseLogKey]*DoseLog
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		medications: make(map[uuid.UUID]*Medication),
		caseOwner:   make(map[uuid.UUID]uuid.UUID),
		doseLogs:    make(map[doseLogKey]*DoseLog),
	}
}

func (m *mockRepo) Create(ctx context.Context, med *Medication) error {
	if med.ID == uuid.Nil {
		med.ID = uuid.New()
	}
	for _, f := range med.Frequencies {
		if f.ID == uuid.Nil {
			f.ID = uuid.New()
		}
		f.MedicationID = med.ID
	}
	m.medications[med.ID] = med
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*Medication, error) {
	med, ok := m.medications[id]
	if !ok {
		return nil, fmt.Errorf("medication %s not found", id)
	}
	return med, nil
}

func (m *mockRepo) ListByCase(ctx context.Context, caseID uuid.UUID, limit, offset int) ([]*Medication, int, error) {
	var out []*Medication
	for _, med := range m.medications {
		if med.CaseID == caseID {
			out = append(out, med)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListActiveByPatient(ctx context.Context, patientID uuid.UUID) ([]*Medication, error) {
	var out []*Medication
	for _, med := range m.medications {
		if med.Active && m.caseOwner[med.CaseID] == patientID {
			out = append(out, med)
		}
	}
	return out, nil
}

func (m *mockRepo) Update(ctx context.Context, med *Medication) error {
	m.medications[med.ID] = med
	return nil
}

func (m *mockRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(m.medications, id)
	return nil
}

func (m *mockRepo) UpsertDoseLog(ctx context.Context, log *DoseLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	log.RecordedAt = time.Now()
	key := doseLogKey{log.MedicationID, log.FrequencyID, log.DoseDate.Format("2006-01-02")}
	m.doseLogs[key] = log
	return nil
}

func (m *mockRepo) ListDoseLogs(ctx context.Context, patientID uuid.UUID, day time.Time) ([]*DoseLog, error) {
	date := day.Format("2006-01-02")
	var out []*DoseLog
	for key, log := range m.doseLogs {
		if key.date != date {
			continue
		}
		med, ok := m.medications[log.MedicationID]
		if !ok || m.caseOwner[med.CaseID] != patientID {
			continue
		}
		out = append(out, log)
	}
	return out, nil
}

func (m *mockRepo) PatientsWithActiveMedications(ctx context.Context) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, med := range m.medications {
		if !med.Active {
			continue
		}
		pid := m.caseOwner[med.CaseID]
		if !seen[pid] {
			seen[pid] = true
			out = append(out, pid)
		}
	}
	return out, nil
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
	return NewService(repo, cases, DefaultMealTimes()), repo, cases
}

func addCase(repo *mockRepo, cases *mockCaseLookup, patientID uuid.UUID) uuid.UUID {
	caseID := uuid.New()
	cases.cases[caseID] = &patient.MedicalCase{ID: caseID, PatientID: patientID, Title: "Episode", Status: "active"}
	repo.caseOwner[caseID] = patientID
	return caseID
}

func TestCreateMedicationValidates(t *testing.T) {
	svc, repo, cases := newTestService()
	patientID := uuid.New()
	caseID := addCase(repo, cases, patientID)

	bad := &Medication{CaseID: caseID, Name: "", NumberOfDays: 10}
	if err := svc.CreateMedication(context.Background(), patientID, bad); !errors.Is(err, ErrInvalidMedication) {
		t.Fatalf("error = %v, want invalid medication", err)
	}

	good := med("Metformin", 30, freq(MealBreakfast, nil, 0))
	good.CaseID = caseID
	if err := svc.CreateMedication(context.Background(), patientID, good); err != nil {
		t.Fatalf("CreateMedication: %v", err)
	}
	if !good.Active {
		t.Error("new medication should be active")
	}
}

func TestCreateMedicationRejectsForeignCase(t *testing.T) {
	svc, repo, cases := newTestService()
	owner := uuid.New()
	caseID := addCase(repo, cases, owner)

	m := med("Metformin", 30, freq(MealBreakfast, nil, 0))
	m.CaseID = caseID
	if err := svc.CreateMedication(context.Background(), uuid.New(), m); err == nil {
		t.Fatal("expected ownership error")
	}
}

func TestImportPrescription(t *testing.T) {
	svc, repo, cases := newTestService()
	patientID := uuid.New()
	caseID := addCase(repo, cases, patientID)

	parsed := &docparse.ParsedPrescription{
		DateIssued: time.Now(),
		Medications: []docparse.ParsedMedication{
			{
				Name:         "Metformin",
				NumberOfDays: 30,
				Dosage:       strPtr("500mg"),
				Frequency: []docparse.ParsedFrequency{
					{MealTime: "Breakfast", Timing: strPtr("Before"), Dosage: strPtr("500mg")},
					{MealTime: "dinner", Timing: strPtr("after")},
				},
			},
			{Name: "Atorvastatin", NumberOfDays: 30, Frequency: []docparse.ParsedFrequency{{MealTime: "bedtime"}}},
		},
	}

	meds, err := svc.ImportPrescription(context.Background(), patientID, caseID, parsed)
	if err != nil {
		t.Fatalf("ImportPrescription: %v", err)
	}
	if len(meds) != 2 {
		t.Fatalf("got %d medications, want 2", len(meds))
	}
	if len(repo.medications) != 2 {
		t.Errorf("persisted %d medications, want 2", len(repo.medications))
	}
	// Meal and timing strings are normalized on import.
	if meds[0].Frequencies[0].Meal != MealBreakfast || *meds[0].Frequencies[0].Timing != TimingBefore {
		t.Errorf("frequency not normalized: %+v", meds[0].Frequencies[0])
	}
}

func TestImportPrescriptionRejectsInvalid(t *testing.T) {
	svc, repo, cases := newTestService()
	patientID := uuid.New()
	caseID := addCase(repo, cases, patientID)

	parsed := &docparse.ParsedPrescription{
		Medications: []docparse.ParsedMedication{
			{Name: "Metformin", NumberOfDays: 30, Frequency: []docparse.ParsedFrequency{{MealTime: "breakfast"}}},
			{Name: "Mystery", NumberOfDays: 0},
		},
	}

	if _, err := svc.ImportPrescription(context.Background(), patientID, caseID, parsed); !errors.Is(err, ErrInvalidMedication) {
		t.Fatalf("error = %v, want invalid medication", err)
	}
	if len(repo.medications) != 0 {
		t.Errorf("partial prescription persisted: %d medications", len(repo.medications))
	}
}

func TestScheduleOverlaysDoseLog(t *testing.T) {
	svc, repo, cases := newTestService()
	patientID := uuid.New()
	caseID := addCase(repo, cases, patientID)
	ctx := context.Background()

	m := med("Metformin", 30, freq(MealBreakfast, nil, 0), freq(MealDinner, nil, 0))
	m.CaseID = caseID
	if err := svc.CreateMedication(ctx, patientID, m); err != nil {
		t.Fatalf("CreateMedication: %v", err)
	}

	day := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	takenAt := day.Add(8 * time.Hour)
	breakfastFreq := m.Frequencies[0]

	dose, err := svc.RecordDoseStatus(ctx, patientID, m.ID, breakfastFreq.ID, day, DoseTaken, &takenAt)
	if err != nil {
		t.Fatalf("RecordDoseStatus: %v", err)
	}
	if dose.Status != DoseTaken {
		t.Errorf("dose status = %q, want taken", dose.Status)
	}

	// A fresh schedule read reflects the persisted decision.
	schedule, err := svc.Schedule(ctx, patientID, day)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if schedule.Metrics.TotalDoses != 2 || schedule.Metrics.TakenDoses != 1 {
		t.Errorf("metrics = %+v, want 2 total 1 taken", schedule.Metrics)
	}

	var taken int
	for _, d := range schedule.Doses {
		if d.Status == DoseTaken {
			taken++
			if d.TakenAt == nil || !d.TakenAt.Equal(takenAt) {
				t.Error("taken timestamp not overlaid")
			}
		}
	}
	if taken != 1 {
		t.Errorf("%d doses taken in overlay, want 1", taken)
	}
}

func TestRecordDoseStatusTerminal(t *testing.T) {
	svc, repo, cases := newTestService()
	patientID := uuid.New()
	caseID := addCase(repo, cases, patientID)
	ctx := context.Background()

	m := med("Metformin", 30, freq(MealBreakfast, nil, 0))
	m.CaseID = caseID
	if err := svc.CreateMedication(ctx, patientID, m); err != nil {
		t.Fatalf("CreateMedication: %v", err)
	}

	day := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	freqID := m.Frequencies[0].ID
	if _, err := svc.RecordDoseStatus(ctx, patientID, m.ID, freqID, day, DoseSkipped, nil); err != nil {
		t.Fatalf("RecordDoseStatus: %v", err)
	}

	// Skipped is terminal for the day.
	takenAt := day.Add(9 * time.Hour)
	if _, err := svc.RecordDoseStatus(ctx, patientID, m.ID, freqID, day, DoseTaken, &takenAt); !errors.Is(err, ErrDoseUpdateFailed) {
		t.Fatalf("error = %v, want dose update failed", err)
	}

	// A new day starts clean.
	nextDay := day.AddDate(0, 0, 1)
	if _, err := svc.RecordDoseStatus(ctx, patientID, m.ID, freqID, nextDay, DoseTaken, &takenAt); err != nil {
		t.Fatalf("next day RecordDoseStatus: %v", err)
	}
}

func TestRecordDoseStatusUnknownDose(t *testing.T) {
	svc, repo, cases := newTestService()
	patientID := uuid.New()
	caseID := addCase(repo, cases, patientID)
	ctx := context.Background()

	m := med("Metformin", 30, freq(MealBreakfast, nil, 0))
	m.CaseID = caseID
	if err := svc.CreateMedication(ctx, patientID, m); err != nil {
		t.Fatalf("CreateMedication: %v", err)
	}

	_, err := svc.RecordDoseStatus(ctx, patientID, m.ID, uuid.New(), time.Now(), DoseTaken, timePtr(time.Now()))
	if !errors.Is(err, ErrDoseUpdateFailed) {
		t.Fatalf("error = %v, want dose update failed", err)
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestSweepMissed(t *testing.T) {
	svc, repo, cases := newTestService()
	patientID := uuid.New()
	caseID := addCase(repo, cases, patientID)
	ctx := context.Background()

	m := med("Metformin", 30, freq(MealBreakfast, nil, 0), freq(MealBedtime, nil, 0))
	m.CaseID = caseID
	if err := svc.CreateMedication(ctx, patientID, m); err != nil {
		t.Fatalf("CreateMedication: %v", err)
	}

	day := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

	// Breakfast dose taken before the sweep runs.
	takenAt := day.Add(8 * time.Hour)
	if _, err := svc.RecordDoseStatus(ctx, patientID, m.ID, m.Frequencies[0].ID, day, DoseTaken, &takenAt); err != nil {
		t.Fatalf("RecordDoseStatus: %v", err)
	}

	// Sweep at 23:00: bedtime dose (22:00) past due, breakfast already taken.
	marked, err := svc.SweepMissed(ctx, day.Add(23*time.Hour))
	if err != nil {
		t.Fatalf("SweepMissed: %v", err)
	}
	if marked != 1 {
		t.Fatalf("marked %d doses, want 1", marked)
	}

	schedule, err := svc.Schedule(ctx, patientID, day)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	var missed int
	for _, d := range schedule.Doses {
		if d.Status == DoseMissed {
			missed++
		}
	}
	if missed != 1 {
		t.Errorf("%d doses missed after sweep, want 1", missed)
	}

	// Second sweep is a no-op; decisions are terminal.
	marked, err = svc.SweepMissed(ctx, day.Add(23*time.Hour+30*time.Minute))
	if err != nil {
		t.Fatalf("second SweepMissed: %v", err)
	}
	if marked != 0 {
		t.Errorf("second sweep marked %d doses, want 0", marked)
	}
}

func TestUpdateMedicationDeactivates(t *testing.T) {
	svc, repo, cases := newTestService()
	patientID := uuid.New()
	caseID := addCase(repo, cases, patientID)
	ctx := context.Background()

	m := med("Metformin", 30, freq(MealBreakfast, nil, 0))
	m.CaseID = caseID
	if err := svc.CreateMedication(ctx, patientID, m); err != nil {
		t.Fatalf("CreateMedication: %v", err)
	}

	m.Active = false
	if err := svc.UpdateMedication(ctx, patientID, m); err != nil {
		t.Fatalf("UpdateMedication: %v", err)
	}

	schedule, err := svc.Schedule(ctx, patientID, time.Now())
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(schedule.Doses) != 0 {
		t.Errorf("deactivated medication still scheduled: %d doses", len(schedule.Doses))
	}
}
