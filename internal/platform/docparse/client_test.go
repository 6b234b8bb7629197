package docparse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDecodeModelJSON_PlainJSON(t *testing.T) {
	var report ParsedBloodReport
	err := decodeModelJSON(`{"testName": "CBC", "labName": "Quest", "testResults": []}`, &report)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TestName != "CBC" {
		t.Errorf("expected CBC, got %s", report.TestName)
	}
}

func TestDecodeModelJSON_CodeFenced(t *testing.T) {
	text := "```json\n{\"testName\": \"Lipid Panel\", \"testResults\": []}\n```"
	var report ParsedBloodReport
	if err := decodeModelJSON(text, &report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TestName != "Lipid Panel" {
		t.Errorf("expected Lipid Panel, got %s", report.TestName)
	}
}

func TestDecodeModelJSON_Invalid(t *testing.T) {
	var report ParsedBloodReport
	if err := decodeModelJSON("the report shows normal values", &report); err == nil {
		t.Error("expected error for non-JSON output")
	}
}

func TestAnthropicParser_ParseBloodReport(t *testing.T) {
	modelOutput := `{"testName": "CBC", "labName": "City Lab", "category": "Hematology",
		"resultDate": "2026-03-01T00:00:00Z", "notes": "",
		"testResults": [{"testName": "Hemoglobin", "value": "13.5", "unit": "g/dL",
		                 "referenceRange": "12-16", "isAbnormal": false}]}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Messages) != 1 || len(req.Messages[0].Content) != 2 {
			t.Errorf("unexpected message shape")
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]string{{"type": "text", "text": modelOutput}},
		})
	}))
	defer srv.Close()

	p := NewAnthropicParser("test-key")
	p.SetBaseURL(srv.URL)

	report, err := p.ParseBloodReport(context.Background(), []byte("%PDF-fake"), "application/pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TestName != "CBC" {
		t.Errorf("expected CBC, got %s", report.TestName)
	}
	if len(report.TestResults) != 1 || report.TestResults[0].TestName != "Hemoglobin" {
		t.Errorf("unexpected results: %+v", report.TestResults)
	}
}

func TestAnthropicParser_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"type": "authentication_error", "message": "invalid key"},
		})
	}))
	defer srv.Close()

	p := NewAnthropicParser("bad-key")
	p.SetBaseURL(srv.URL)

	if _, err := p.ParseBloodReport(context.Background(), []byte("doc"), "application/pdf"); err == nil {
		t.Error("expected error for API failure")
	}
}

func TestOpenAIParser_ParsePrescription(t *testing.T) {
	modelOutput := `{"dateIssued": "2026-02-10T00:00:00Z", "doctorName": "Dr. Rao",
		"medications": [{"id": "m1", "name": "Metformin", "numberOfDays": 30,
		                 "frequency": [{"mealTime": "breakfast", "timing": "before", "dosage": "500mg"}]}]}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": modelOutput}},
			},
		})
	}))
	defer srv.Close()

	p := NewOpenAIParser("test-key")
	p.SetBaseURL(srv.URL)

	rx, err := p.ParsePrescription(context.Background(), []byte("img"), "image/png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rx.Medications) != 1 || rx.Medications[0].Name != "Metformin" {
		t.Errorf("unexpected medications: %+v", rx.Medications)
	}
	if rx.Medications[0].Frequency[0].MealTime != "breakfast" {
		t.Errorf("unexpected frequency: %+v", rx.Medications[0].Frequency)
	}
}
