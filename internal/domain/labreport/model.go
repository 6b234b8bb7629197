package labreport

import (
	"time"

	"github.com/google/uuid"
)

// BloodReport maps to the blood_report table. One lab panel submission,
// owned by a medical case and cascade-deleted with it.
type BloodReport struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	CaseID     uuid.UUID  `db:"case_id" json:"case_id"`
	TestName   string     `db:"test_name" json:"test_name"`
	LabName    string     `db:"lab_name" json:"lab_name"`
	Category   string     `db:"category" json:"category"`
	ResultDate *time.Time `db:"result_date" json:"result_date,omitempty"`
	Notes      *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`

	Results []*BloodTestResult `db:"-" json:"results"`
}

// BloodTestResult maps to the blood_test_result table. One analyte
// measurement within a report. Value stays a string because labs report
// non-numeric results ("positive", "trace") alongside numeric ones.
type BloodTestResult struct {
	ID             uuid.UUID `db:"id" json:"id"`
	ReportID       uuid.UUID `db:"report_id" json:"report_id"`
	TestName       string    `db:"test_name" json:"test_name"`
	Value          string    `db:"value" json:"value"`
	Unit           string    `db:"unit" json:"unit"`
	ReferenceRange string    `db:"reference_range" json:"reference_range"`
	IsAbnormal     bool      `db:"is_abnormal" json:"is_abnormal"`
}
