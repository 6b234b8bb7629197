// Package docparse extracts structured medical data from uploaded documents
// using a cloud LLM provider. Consumers only see the typed results; prompt
// construction and response decoding stay inside this package.
package docparse

import "time"

// ParsedTestResult is one analyte measurement extracted from a lab document.
type ParsedTestResult struct {
	TestName       string `json:"testName"`
	Value          string `json:"value"`
	Unit           string `json:"unit"`
	ReferenceRange string `json:"referenceRange"`
	IsAbnormal     bool   `json:"isAbnormal"`
}

// ParsedBloodReport is the structured form of an uploaded lab report.
type ParsedBloodReport struct {
	TestName    string             `json:"testName"`
	LabName     string             `json:"labName"`
	Category    string             `json:"category"`
	ResultDate  *time.Time         `json:"resultDate"`
	Notes       string             `json:"notes"`
	TestResults []ParsedTestResult `json:"testResults"`
}

// ParsedFrequency is one meal-anchored dosing rule extracted from a prescription.
type ParsedFrequency struct {
	MealTime string  `json:"mealTime"`
	Timing   *string `json:"timing,omitempty"`
	Dosage   *string `json:"dosage,omitempty"`
}

// ParsedMedication is one prescribed drug extracted from a prescription.
type ParsedMedication struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Frequency    []ParsedFrequency `json:"frequency"`
	NumberOfDays int               `json:"numberOfDays"`
	Dosage       *string           `json:"dosage,omitempty"`
	Instructions *string           `json:"instructions,omitempty"`
}

// ParsedPrescription is the structured form of an uploaded prescription.
type ParsedPrescription struct {
	DateIssued    time.Time          `json:"dateIssued"`
	DoctorName    *string            `json:"doctorName,omitempty"`
	FacilityName  *string            `json:"facilityName,omitempty"`
	FollowUpDate  *time.Time         `json:"followUpDate,omitempty"`
	FollowUpTests []string           `json:"followUpTests,omitempty"`
	Notes         *string            `json:"notes,omitempty"`
	Medications   []ParsedMedication `json:"medications"`
}
