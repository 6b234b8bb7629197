package docparse

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Parser extracts structured records from an uploaded document. The document
// is passed as raw bytes with its MIME type; implementations handle encoding.
type Parser interface {
	ParseBloodReport(ctx context.Context, doc []byte, mimeType string) (*ParsedBloodReport, error)
	ParsePrescription(ctx context.Context, doc []byte, mimeType string) (*ParsedPrescription, error)
}

const bloodReportPrompt = `Extract the lab report in this document as JSON with this shape:
{"testName": string, "labName": string, "category": string,
 "resultDate": ISO-8601 timestamp or null, "notes": string,
 "testResults": [{"testName": string, "value": string, "unit": string,
                  "referenceRange": string, "isAbnormal": boolean}]}
Use the exact analyte names printed on the report. Respond with JSON only.`

const prescriptionPrompt = `Extract the prescription in this document as JSON with this shape:
{"dateIssued": ISO-8601 timestamp, "doctorName": string or null,
 "facilityName": string or null, "followUpDate": ISO-8601 timestamp or null,
 "followUpTests": [string], "notes": string or null,
 "medications": [{"id": string, "name": string, "numberOfDays": number,
                  "dosage": string or null, "instructions": string or null,
                  "frequency": [{"mealTime": "breakfast"|"lunch"|"dinner"|"bedtime",
                                 "timing": "before"|"after" or null,
                                 "dosage": string or null}]}]}
Respond with JSON only.`

// decodeModelJSON unmarshals the model's text output into v, tolerating
// markdown code fences around the JSON body.
func decodeModelJSON(text string, v interface{}) error {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	return nil
}
