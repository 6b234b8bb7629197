package medication

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidMedication = errors.New("invalid medication")
	ErrInvalidFrequency  = errors.New("invalid frequency")
	ErrSchedulingFailed  = errors.New("scheduling failed")
	ErrDoseUpdateFailed  = errors.New("dose update failed")
	ErrPersistence       = errors.New("persistence error")
)

// TimeSlot is a coarse bucket of the day used to group doses for display.
type TimeSlot string

const (
	SlotMorning   TimeSlot = "morning"
	SlotMidday    TimeSlot = "midday"
	SlotAfternoon TimeSlot = "afternoon"
	SlotEvening   TimeSlot = "evening"
	SlotNight     TimeSlot = "night"
)

// TimeSlots lists every slot in display order.
var TimeSlots = []TimeSlot{SlotMorning, SlotMidday, SlotAfternoon, SlotEvening, SlotNight}

// SlotForHour buckets an hour of day into its time slot. The night slot
// wraps past midnight: hours 21 and later, and hours before 6.
func SlotForHour(hour int) TimeSlot {
	switch {
	case hour >= 6 && hour < 11:
		return SlotMorning
	case hour >= 11 && hour < 14:
		return SlotMidday
	case hour >= 14 && hour < 17:
		return SlotAfternoon
	case hour >= 17 && hour < 21:
		return SlotEvening
	default:
		return SlotNight
	}
}

// DoseStatus is the state of one scheduled dose instance.
type DoseStatus string

const (
	DoseScheduled DoseStatus = "scheduled"
	DoseTaken     DoseStatus = "taken"
	DoseMissed    DoseStatus = "missed"
	DoseSkipped   DoseStatus = "skipped"
)

var validDoseStatuses = map[DoseStatus]bool{
	DoseScheduled: true,
	DoseTaken:     true,
	DoseMissed:    true,
	DoseSkipped:   true,
}

// MealClock is a time of day, independent of date and zone.
type MealClock struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// ParseMealClock parses an "HH:MM" string.
func ParseMealClock(s string) (MealClock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return MealClock{}, fmt.Errorf("invalid meal time %q: %w", s, err)
	}
	return MealClock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// On places the clock time onto a calendar day.
func (c MealClock) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour, c.Minute, 0, 0, date.Location())
}

// MealTimes is the meal-to-clock-time table used for schedule expansion.
// It is passed explicitly to the scheduler rather than read from shared
// state so tests can supply alternate tables.
type MealTimes struct {
	Breakfast MealClock `json:"breakfast"`
	Lunch     MealClock `json:"lunch"`
	Dinner    MealClock `json:"dinner"`
	Bedtime   MealClock `json:"bedtime"`
}

// DefaultMealTimes returns the stock table: breakfast 08:00, lunch 13:00,
// dinner 19:00, bedtime 22:00.
func DefaultMealTimes() MealTimes {
	return MealTimes{
		Breakfast: MealClock{Hour: 8},
		Lunch:     MealClock{Hour: 13},
		Dinner:    MealClock{Hour: 19},
		Bedtime:   MealClock{Hour: 22},
	}
}

// ParseMealTimes builds a table from four "HH:MM" strings.
func ParseMealTimes(breakfast, lunch, dinner, bedtime string) (MealTimes, error) {
	var mt MealTimes
	var err error
	if mt.Breakfast, err = ParseMealClock(breakfast); err != nil {
		return mt, err
	}
	if mt.Lunch, err = ParseMealClock(lunch); err != nil {
		return mt, err
	}
	if mt.Dinner, err = ParseMealClock(dinner); err != nil {
		return mt, err
	}
	if mt.Bedtime, err = ParseMealClock(bedtime); err != nil {
		return mt, err
	}
	return mt, nil
}

// For returns the clock time for a meal.
func (mt MealTimes) For(meal Meal) (MealClock, bool) {
	switch meal {
	case MealBreakfast:
		return mt.Breakfast, true
	case MealLunch:
		return mt.Lunch, true
	case MealDinner:
		return mt.Dinner, true
	case MealBedtime:
		return mt.Bedtime, true
	default:
		return MealClock{}, false
	}
}

// ScheduledDose is one concrete dose instance for a day. Derived on every
// schedule generation, never persisted; status decisions are recorded
// separately as dose logs.
type ScheduledDose struct {
	ID          uuid.UUID     `json:"id"`
	Medication  *Medication   `json:"medication"`
	Frequency   *MealRelation `json:"frequency"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	Slot        TimeSlot      `json:"slot"`
	Status      DoseStatus    `json:"status"`
	TakenAt     *time.Time    `json:"taken_at,omitempty"`
}

// ScheduleMetrics summarizes one day's doses. Recomputed on every call,
// never cached.
type ScheduleMetrics struct {
	TotalDoses    int `json:"total_doses"`
	TakenDoses    int `json:"taken_doses"`
	OverdueDoses  int `json:"overdue_doses"`
	UpcomingDoses int `json:"upcoming_doses"`
}

// ScheduleObserver is notified whenever the schedule is regenerated.
type ScheduleObserver func(date time.Time, doses []*ScheduledDose)

// Scheduler expands medication frequency rules into concrete per-day dose
// instances and tracks their status for the current date. All computation
// is synchronous and in-memory; the caller persists status decisions.
type Scheduler struct {
	meals       MealTimes
	medications []*Medication
	currentDate time.Time
	doses       []*ScheduledDose
	observers   []ScheduleObserver
	now         func() time.Time
}

func NewScheduler(meals MealTimes) *Scheduler {
	return &Scheduler{meals: meals, now: time.Now}
}

// Subscribe registers an observer for schedule regenerations.
func (s *Scheduler) Subscribe(obs ScheduleObserver) {
	s.observers = append(s.observers, obs)
}

// ValidateMedication checks a medication's structure before scheduling.
func (s *Scheduler) ValidateMedication(m *Medication) error {
	if m == nil || strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidMedication)
	}
	if m.NumberOfDays <= 0 {
		return fmt.Errorf("%w: number of days must be positive", ErrInvalidMedication)
	}
	for _, f := range m.Frequencies {
		if _, ok := s.meals.For(f.Meal); !ok {
			return fmt.Errorf("%w: unsupported meal %q", ErrInvalidFrequency, f.Meal)
		}
		if f.Timing != nil && *f.Timing != TimingBefore && *f.Timing != TimingAfter {
			return fmt.Errorf("%w: unsupported timing %q", ErrInvalidFrequency, *f.Timing)
		}
		if q, ok := dosageQuantity(f.Dosage); ok && q <= 0 {
			return fmt.Errorf("%w: dosage quantity must be positive", ErrInvalidFrequency)
		}
	}
	return nil
}

// dosageQuantity extracts the leading numeric quantity from a dosage
// string like "500mg" or "2 tablets". Strings with no leading number
// report ok=false and are not judged.
func dosageQuantity(dosage *string) (float64, bool) {
	if dosage == nil {
		return 0, false
	}
	s := strings.TrimSpace(*dosage)
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || s[end] == '.' || s[end] == '-') {
		end++
	}
	if end == 0 {
		return 0, false
	}
	q, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}
	return q, true
}

// UpdateMedications replaces the medication set and regenerates the
// schedule for the current date. No partial update: the first invalid
// medication rejects the whole set.
func (s *Scheduler) UpdateMedications(meds []*Medication) error {
	for _, m := range meds {
		if err := s.ValidateMedication(m); err != nil {
			return err
		}
	}
	s.medications = meds
	date := s.currentDate
	if date.IsZero() {
		date = s.now()
	}
	return s.GenerateSchedule(date)
}

// GenerateSchedule expands every active medication's frequency rules into
// dose instances for the target day. Regeneration produces entirely new
// instances; statuses do not carry over between dates.
func (s *Scheduler) GenerateSchedule(date time.Time) error {
	var doses []*ScheduledDose
	for _, m := range s.medications {
		if !m.Active {
			continue
		}
		for _, f := range m.Frequencies {
			at, err := s.doseTime(f, date)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrSchedulingFailed, m.Name, err)
			}
			doses = append(doses, &ScheduledDose{
				ID:          uuid.New(),
				Medication:  m,
				Frequency:   f,
				ScheduledAt: at,
				Slot:        SlotForHour(at.Hour()),
				Status:      DoseScheduled,
			})
		}
	}

	sort.SliceStable(doses, func(i, j int) bool {
		if !doses[i].ScheduledAt.Equal(doses[j].ScheduledAt) {
			return doses[i].ScheduledAt.Before(doses[j].ScheduledAt)
		}
		return doses[i].Medication.Name < doses[j].Medication.Name
	})

	s.currentDate = date
	s.doses = doses
	for _, obs := range s.observers {
		obs(date, doses)
	}
	return nil
}

// doseTime computes the concrete clock time for a frequency rule on the
// target day: the meal's configured time shifted by the rule's offset.
// A before qualifier pulls the offset negative, after pushes it positive.
func (s *Scheduler) doseTime(f *MealRelation, date time.Time) (time.Time, error) {
	clock, ok := s.meals.For(f.Meal)
	if !ok {
		return time.Time{}, fmt.Errorf("unsupported meal %q", f.Meal)
	}
	offset := f.OffsetMinutes
	if f.Timing != nil {
		abs := offset
		if abs < 0 {
			abs = -abs
		}
		switch *f.Timing {
		case TimingBefore:
			offset = -abs
		case TimingAfter:
			offset = abs
		}
	}
	return clock.On(date).Add(time.Duration(offset) * time.Minute), nil
}

// Doses returns the full day's doses in scheduled order.
func (s *Scheduler) Doses() []*ScheduledDose {
	return s.doses
}

// DosesFor returns the day's doses falling into one time slot.
func (s *Scheduler) DosesFor(slot TimeSlot) []*ScheduledDose {
	var out []*ScheduledDose
	for _, d := range s.doses {
		if d.Slot == slot {
			out = append(out, d)
		}
	}
	return out
}

// UpdateDoseStatus transitions a dose in the current schedule. Taken
// requires a timestamp; missed and skipped clear it. Taken, missed and
// skipped are terminal for the dose instance.
func (s *Scheduler) UpdateDoseStatus(id uuid.UUID, status DoseStatus, takenAt *time.Time) (*ScheduledDose, error) {
	if !validDoseStatuses[status] {
		return nil, fmt.Errorf("%w: unknown status %q", ErrDoseUpdateFailed, status)
	}
	var dose *ScheduledDose
	for _, d := range s.doses {
		if d.ID == id {
			dose = d
			break
		}
	}
	if dose == nil {
		return nil, fmt.Errorf("%w: dose %s not in current schedule", ErrDoseUpdateFailed, id)
	}
	if dose.Status != DoseScheduled {
		return nil, fmt.Errorf("%w: dose already %s", ErrDoseUpdateFailed, dose.Status)
	}

	switch status {
	case DoseTaken:
		if takenAt == nil {
			return nil, fmt.Errorf("%w: taken requires a timestamp", ErrDoseUpdateFailed)
		}
		dose.TakenAt = takenAt
	case DoseMissed, DoseSkipped:
		dose.TakenAt = nil
	case DoseScheduled:
		return nil, fmt.Errorf("%w: cannot transition back to scheduled", ErrDoseUpdateFailed)
	}
	dose.Status = status
	return dose, nil
}

// OverdueDoses returns doses still scheduled whose time has passed.
func (s *Scheduler) OverdueDoses() []*ScheduledDose {
	now := s.now()
	var out []*ScheduledDose
	for _, d := range s.doses {
		if d.Status == DoseScheduled && d.ScheduledAt.Before(now) {
			out = append(out, d)
		}
	}
	return out
}

// UpcomingDoses returns doses still scheduled within [now, now+window].
func (s *Scheduler) UpcomingDoses(window time.Duration) []*ScheduledDose {
	now := s.now()
	cutoff := now.Add(window)
	var out []*ScheduledDose
	for _, d := range s.doses {
		if d.Status == DoseScheduled && !d.ScheduledAt.Before(now) && !d.ScheduledAt.After(cutoff) {
			out = append(out, d)
		}
	}
	return out
}

// Metrics computes the day's dose counts fresh on every call.
func (s *Scheduler) Metrics() ScheduleMetrics {
	now := s.now()
	m := ScheduleMetrics{TotalDoses: len(s.doses)}
	for _, d := range s.doses {
		switch {
		case d.Status == DoseTaken:
			m.TakenDoses++
		case d.Status == DoseScheduled && d.ScheduledAt.Before(now):
			m.OverdueDoses++
		case d.Status == DoseScheduled:
			m.UpcomingDoses++
		}
	}
	return m
}
