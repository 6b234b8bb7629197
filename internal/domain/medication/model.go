package medication

import (
	"time"

	"github.com/google/uuid"
)

// Meal anchors a dosing rule to one of the configured meal times.
type Meal string

const (
	MealBreakfast Meal = "breakfast"
	MealLunch     Meal = "lunch"
	MealDinner    Meal = "dinner"
	MealBedtime   Meal = "bedtime"
)

// Timing qualifies a meal relation as before or after the meal.
type Timing string

const (
	TimingBefore Timing = "before"
	TimingAfter  Timing = "after"
)

// Medication maps to the medication table. A prescribed drug owned by a
// medical case, with one meal relation per daily dose occurrence.
type Medication struct {
	ID           uuid.UUID `db:"id" json:"id"`
	CaseID       uuid.UUID `db:"case_id" json:"case_id"`
	Name         string    `db:"name" json:"name"`
	Dosage       string    `db:"dosage" json:"dosage"`
	NumberOfDays int       `db:"number_of_days" json:"number_of_days"`
	Instructions *string   `db:"instructions" json:"instructions,omitempty"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`

	Frequencies []*MealRelation `db:"-" json:"frequencies"`
}

// MealRelation maps to the meal_relation table. One timing rule: which
// meal, an optional before/after qualifier and a signed offset in minutes
// from the meal's configured clock time.
type MealRelation struct {
	ID            uuid.UUID `db:"id" json:"id"`
	MedicationID  uuid.UUID `db:"medication_id" json:"medication_id"`
	Meal          Meal      `db:"meal" json:"meal"`
	Timing        *Timing   `db:"timing" json:"timing,omitempty"`
	OffsetMinutes int       `db:"offset_minutes" json:"offset_minutes"`
	Dosage        *string   `db:"dosage" json:"dosage,omitempty"`
}

// DoseLog maps to the dose_log table. It records the status decision for
// one derived dose instance. Schedules are always rebuilt from medications
// and then overlaid with these logs; the log never drives generation.
type DoseLog struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	MedicationID uuid.UUID  `db:"medication_id" json:"medication_id"`
	FrequencyID  uuid.UUID  `db:"frequency_id" json:"frequency_id"`
	DoseDate     time.Time  `db:"dose_date" json:"dose_date"`
	Status       DoseStatus `db:"status" json:"status"`
	TakenAt      *time.Time `db:"taken_at" json:"taken_at,omitempty"`
	RecordedAt   time.Time  `db:"recorded_at" json:"recorded_at"`
}
