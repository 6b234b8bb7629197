package medication

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
	meals MealTimes
}

func NewService(repo Repository, cases CaseLookup, meals MealTimes) *Service {
	return &Service{repo: repo, cases: cases, meals: meals}
}

func (s *Service) ownedCase(ctx context.Context, patientID, caseID uuid.UUID) error {
	mc, err := s.cases.GetCase(ctx, caseID)
	if err != nil {
		return fmt.Errorf("case not found: %w", err)
	}
	if mc.PatientID != patientID {
		return fmt.Errorf("case %s does not belong to patient", caseID)
	}
	return nil
}

func (s *Service) CreateMedication(ctx context.Context, patientID uuid.UUID, m *Medication) error {
	if err := NewScheduler(s.meals).ValidateMedication(m); err != nil {
		return err
	}
	if err := s.ownedCase(ctx, patientID, m.CaseID); err != nil {
		return err
	}
	m.Active = true
	if err := s.repo.Create(ctx, m); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// ImportPrescription stores every medication from a parsed prescription.
// Medications failing validation reject the whole prescription so a
// partially stored document never goes unnoticed.
func (s *Service) ImportPrescription(ctx context.Context, patientID, caseID uuid.UUID, parsed *docparse.ParsedPrescription) ([]*Medication, error) {
	if err := s.ownedCase(ctx, patientID, caseID); err != nil {
		return nil, err
	}

	meds := make([]*Medication, 0, len(parsed.Medications))
	for _, pm := range parsed.Medications {
		m := &Medication{
			CaseID:       caseID,
			Name:         pm.Name,
			NumberOfDays: pm.NumberOfDays,
			Instructions: pm.Instructions,
			Active:       true,
		}
		if pm.Dosage != nil {
			m.Dosage = *pm.Dosage
		}
		for _, pf := range pm.Frequency {
			f := &MealRelation{Meal: Meal(strings.ToLower(strings.TrimSpace(pf.MealTime)))}
			if pf.Timing != nil {
				timing := Timing(strings.ToLower(strings.TrimSpace(*pf.Timing)))
				f.Timing = &timing
			}
			f.Dosage = pf.Dosage
			m.Frequencies = append(m.Frequencies, f)
		}
		meds = append(meds, m)
	}

	sched := NewScheduler(s.meals)
	for _, m := range meds {
		if err := sched.ValidateMedication(m); err != nil {
			return nil, err
		}
	}
	for _, m := range meds {
		if err := s.repo.Create(ctx, m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
	}
	return meds, nil
}

func (s *Service) GetMedication(ctx context.Context, patientID, id uuid.UUID) (*Medication, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ownedCase(ctx, patientID, m.CaseID); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) ListByCase(ctx context.Context, patientID, caseID uuid.UUID, limit, offset int) ([]*Medication, int, error) {
	if err := s.ownedCase(ctx, patientID, caseID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByCase(ctx, caseID, limit, offset)
}

func (s *Service) UpdateMedication(ctx context.Context, patientID uuid.UUID, m *Medication) error {
	existing, err := s.GetMedication(ctx, patientID, m.ID)
	if err != nil {
		return err
	}
	m.CaseID = existing.CaseID
	if err := NewScheduler(s.meals).ValidateMedication(m); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, m); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (s *Service) DeleteMedication(ctx context.Context, patientID, id uuid.UUID) error {
	if _, err := s.GetMedication(ctx, patientID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// DaySchedule is one day's derived dose timeline with its metrics.
type DaySchedule struct {
	Date    time.Time                     `json:"date"`
	Doses   []*ScheduledDose              `json:"doses"`
	Slots   map[TimeSlot][]*ScheduledDose `json:"slots"`
	Metrics ScheduleMetrics               `json:"metrics"`
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// buildSchedule derives the day's doses from the patient's active
// medications and overlays recorded status decisions from the dose log.
func (s *Service) buildSchedule(ctx context.Context, patientID uuid.UUID, day time.Time) (*Scheduler, error) {
	meds, err := s.repo.ListActiveByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	sched := NewScheduler(s.meals)
	if err := sched.UpdateMedications(meds); err != nil {
		return nil, err
	}
	if err := sched.GenerateSchedule(day); err != nil {
		return nil, err
	}

	logs, err := s.repo.ListDoseLogs(ctx, patientID, dateOnly(day))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	byKey := make(map[[2]uuid.UUID]*DoseLog, len(logs))
	for _, l := range logs {
		byKey[[2]uuid.UUID{l.MedicationID, l.FrequencyID}] = l
	}
	for _, d := range sched.Doses() {
		if l, ok := byKey[[2]uuid.UUID{d.Medication.ID, d.Frequency.ID}]; ok {
			d.Status = l.Status
			d.TakenAt = l.TakenAt
		}
	}
	return sched, nil
}

// Schedule returns the patient's dose timeline for a day.
func (s *Service) Schedule(ctx context.Context, patientID uuid.UUID, day time.Time) (*DaySchedule, error) {
	sched, err := s.buildSchedule(ctx, patientID, day)
	if err != nil {
		return nil, err
	}

	slots := make(map[TimeSlot][]*ScheduledDose, len(TimeSlots))
	for _, slot := range TimeSlots {
		if doses := sched.DosesFor(slot); len(doses) > 0 {
			slots[slot] = doses
		}
	}
	return &DaySchedule{
		Date:    dateOnly(day),
		Doses:   sched.Doses(),
		Slots:   slots,
		Metrics: sched.Metrics(),
	}, nil
}

// RecordDoseStatus transitions one derived dose and persists the decision
// so later reads overlay it. The in-memory transition runs first, so a
// terminal or malformed update never reaches the store.
func (s *Service) RecordDoseStatus(ctx context.Context, patientID, medicationID, frequencyID uuid.UUID, day time.Time, status DoseStatus, takenAt *time.Time) (*ScheduledDose, error) {
	sched, err := s.buildSchedule(ctx, patientID, day)
	if err != nil {
		return nil, err
	}

	var target *ScheduledDose
	for _, d := range sched.Doses() {
		if d.Medication.ID == medicationID && d.Frequency.ID == frequencyID {
			target = d
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("%w: no dose for medication %s on %s",
			ErrDoseUpdateFailed, medicationID, day.Format("2006-01-02"))
	}

	dose, err := sched.UpdateDoseStatus(target.ID, status, takenAt)
	if err != nil {
		return nil, err
	}

	log := &DoseLog{
		MedicationID: medicationID,
		FrequencyID:  frequencyID,
		DoseDate:     dateOnly(day),
		Status:       dose.Status,
		TakenAt:      dose.TakenAt,
	}
	if err := s.repo.UpsertDoseLog(ctx, log); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return dose, nil
}

// SweepMissed marks every past-due, still unconfirmed dose as missed.
// Run periodically; returns the number of doses marked.
func (s *Service) SweepMissed(ctx context.Context, now time.Time) (int, error) {
	patients, err := s.repo.PatientsWithActiveMedications(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	marked := 0
	for _, patientID := range patients {
		sched, err := s.buildSchedule(ctx, patientID, now)
		if err != nil {
			return marked, err
		}
		for _, d := range sched.Doses() {
			if d.Status != DoseScheduled || !d.ScheduledAt.Before(now) {
				continue
			}
			log := &DoseLog{
				MedicationID: d.Medication.ID,
				FrequencyID:  d.Frequency.ID,
				DoseDate:     dateOnly(now),
				Status:       DoseMissed,
			}
			if err := s.repo.UpsertDoseLog(ctx, log); err != nil {
				return marked, fmt.Errorf("%w: %v", ErrPersistence, err)
			}
			marked++
		}
	}
	return marked, nil
}
