package labreport

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TrendDirection describes how a biomarker moved between its two most
// recent measurements.
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// HealthStatus classifies a biomarker's latest value.
type HealthStatus string

const (
	StatusOptimal  HealthStatus = "optimal"
	StatusGood     HealthStatus = "good"
	StatusWarning  HealthStatus = "warning"
	StatusCritical HealthStatus = "critical"
)

// BiomarkerDataPoint is one (date, value) observation in a biomarker's
// history, carrying a reference back to the source report.
type BiomarkerDataPoint struct {
	Date       time.Time `json:"date"`
	Value      float64   `json:"value"`
	ReportName string    `json:"report_name"`
	ReportID   uuid.UUID `json:"report_id"`
}

// BiomarkerTrend is the movement between the two most recent data points.
type BiomarkerTrend struct {
	Direction  TrendDirection `json:"direction"`
	Text       string         `json:"text"`
	Percentage string         `json:"percentage"`
}

// AggregatedBiomarker is one row per normalized test name across all of a
// patient's reports. Derived on every read, never persisted.
type AggregatedBiomarker struct {
	ID              uuid.UUID            `json:"id"`
	TestName        string               `json:"test_name"`
	CurrentValue    string               `json:"current_value"`
	LatestDate      time.Time            `json:"latest_date"`
	Unit            string               `json:"unit"`
	ReferenceRange  string               `json:"reference_range"`
	Category        string               `json:"category"`
	History         []BiomarkerDataPoint `json:"history"`
	Status          HealthStatus         `json:"status"`
	Trend           TrendDirection       `json:"trend"`
	TrendText       string               `json:"trend_text"`
	TrendPercentage string               `json:"trend_percentage"`
	LatestReportID  uuid.UUID            `json:"latest_report_id"`
	ResultCount     int                  `json:"result_count"`
}

// NormalizeTestName is the grouping key for aggregation. Trimming and
// lowercasing is the only deduplication applied, so differently spelled
// names ("WBC" vs "White Blood Cell Count") stay separate rows.
func NormalizeTestName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// IsValidReport reports whether a blood report can contribute to
// aggregation: it needs a result date and at least one result with a
// non-empty name and value. Invalid reports are dropped silently so that
// partially parsed documents degrade to fewer rows instead of errors.
func IsValidReport(r *BloodReport) bool {
	if r == nil || r.ResultDate == nil {
		return false
	}
	for _, res := range r.Results {
		if strings.TrimSpace(res.TestName) != "" && strings.TrimSpace(res.Value) != "" {
			return true
		}
	}
	return false
}

// FilterByCategory keeps reports whose category matches exactly.
func FilterByCategory(reports []*BloodReport, category string) []*BloodReport {
	var out []*BloodReport
	for _, r := range reports {
		if r.Category == category {
			out = append(out, r)
		}
	}
	return out
}

// FilterByDateRange keeps reports whose result date falls within [from, to]
// inclusive. Reports without a result date are dropped.
func FilterByDateRange(reports []*BloodReport, from, to time.Time) []*BloodReport {
	var out []*BloodReport
	for _, r := range reports {
		if r.ResultDate == nil {
			continue
		}
		d := *r.ResultDate
		if d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// AllTestResults flattens every test result across a report collection.
func AllTestResults(reports []*BloodReport) []*BloodTestResult {
	var out []*BloodTestResult
	for _, r := range reports {
		out = append(out, r.Results...)
	}
	return out
}

type groupedResult struct {
	result *BloodTestResult
	report *BloodReport
}

// GenerateAggregatedBiomarkers builds one AggregatedBiomarker per distinct
// normalized test name found in the given reports. Pure function: inputs
// are never mutated and the output is freshly allocated on every call.
func GenerateAggregatedBiomarkers(reports []*BloodReport) []*AggregatedBiomarker {
	groups := make(map[string][]groupedResult)
	for _, r := range reports {
		if !IsValidReport(r) {
			continue
		}
		for _, res := range r.Results {
			if strings.TrimSpace(res.TestName) == "" || strings.TrimSpace(res.Value) == "" {
				continue
			}
			key := NormalizeTestName(res.TestName)
			groups[key] = append(groups[key], groupedResult{result: res, report: r})
		}
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*AggregatedBiomarker, 0, len(keys))
	for _, k := range keys {
		if agg := aggregateGroup(groups[k]); agg != nil {
			out = append(out, agg)
		}
	}
	return out
}

// BiomarkerTrendFor looks up the trend of a single biomarker by test name.
// Returns nil when no report contains the biomarker.
func BiomarkerTrendFor(reports []*BloodReport, testName string) *BiomarkerTrend {
	key := NormalizeTestName(testName)
	for _, agg := range GenerateAggregatedBiomarkers(reports) {
		if NormalizeTestName(agg.TestName) == key {
			return &BiomarkerTrend{
				Direction:  agg.Trend,
				Text:       agg.TrendText,
				Percentage: agg.TrendPercentage,
			}
		}
	}
	return nil
}

func aggregateGroup(group []groupedResult) *AggregatedBiomarker {
	// Results whose report lost its date between filtering and reduction
	// contribute nothing.
	valid := group[:0:0]
	for _, g := range group {
		if g.report.ResultDate != nil {
			valid = append(valid, g)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].report.ResultDate.Before(*valid[j].report.ResultDate)
	})

	history := make([]BiomarkerDataPoint, len(valid))
	for i, g := range valid {
		history[i] = BiomarkerDataPoint{
			Date:       *g.report.ResultDate,
			Value:      parseValue(g.result.Value),
			ReportName: g.report.TestName,
			ReportID:   g.report.ID,
		}
	}

	current := valid[len(valid)-1]
	trend := calculateTrend(history)

	return &AggregatedBiomarker{
		ID:              uuid.New(),
		TestName:        current.result.TestName,
		CurrentValue:    current.result.Value,
		LatestDate:      *current.report.ResultDate,
		Unit:            current.result.Unit,
		ReferenceRange:  current.result.ReferenceRange,
		Category:        current.report.Category,
		History:         history,
		Status:          determineHealthStatus(current.result, history),
		Trend:           trend.Direction,
		TrendText:       trend.Text,
		TrendPercentage: trend.Percentage,
		LatestReportID:  current.report.ID,
		ResultCount:     len(valid),
	}
}

// parseValue coerces a free-text result value to a number. Non-numeric
// strings become 0.0 rather than an error; tolerance over precision.
func parseValue(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0.0
	}
	return v
}

func calculateTrend(history []BiomarkerDataPoint) BiomarkerTrend {
	if len(history) < 2 {
		return BiomarkerTrend{Direction: TrendStable, Text: "0.0", Percentage: "0%"}
	}

	latest := history[len(history)-1].Value
	previous := history[len(history)-2].Value
	delta := latest - previous

	direction := TrendStable
	switch {
	case delta >= 0.01:
		direction = TrendUp
	case delta <= -0.01:
		direction = TrendDown
	}

	abs := delta
	if abs < 0 {
		abs = -abs
	}

	percentage := "0%"
	if previous != 0 {
		pct := abs / previous * 100
		if pct < 0 {
			pct = -pct
		}
		percentage = fmt.Sprintf("%.0f%%", pct)
	}

	return BiomarkerTrend{
		Direction:  direction,
		Text:       fmt.Sprintf("%.1f", abs),
		Percentage: percentage,
	}
}

// determineHealthStatus classifies the latest value. An abnormal result
// with a rising two-point trend reads as warning rather than critical; the
// two-point window is intentionally narrow and matches product behavior.
func determineHealthStatus(current *BloodTestResult, history []BiomarkerDataPoint) HealthStatus {
	if current.IsAbnormal {
		if len(history) >= 2 {
			latest := history[len(history)-1].Value
			previous := history[len(history)-2].Value
			if latest > previous {
				return StatusWarning
			}
		}
		return StatusCritical
	}

	low, high, ok := parseReferenceRange(current.ReferenceRange)
	if ok {
		mid := (low + high) / 2
		halfWidth := (high - low) / 2
		dist := parseValue(current.Value) - mid
		if dist < 0 {
			dist = -dist
		}
		if dist <= 0.3*halfWidth {
			return StatusOptimal
		}
	}
	return StatusGood
}

// parseReferenceRange understands the common "low-high" form only.
// Ranges like "<200" or ">=5" fail the parse and fall through to good.
func parseReferenceRange(s string) (low, high float64, ok bool) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	low, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	high, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, false
	}
	return low, high, true
}
