package labreport

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const reportCols = `id, case_id, test_name, lab_name, category, result_date, notes, created_at, updated_at`
const resultCols = `id, report_id, test_name, value, unit, reference_range, is_abnormal`

func scanReport(row pgx.Row) (*BloodReport, error) {
	var r BloodReport
	err := row.Scan(&r.ID, &r.CaseID, &r.TestName, &r.LabName, &r.Category,
		&r.ResultDate, &r.Notes, &r.CreatedAt, &r.UpdatedAt)
	return &r, err
}

func scanResult(row pgx.Row) (*BloodTestResult, error) {
	var res BloodTestResult
	err := row.Scan(&res.ID, &res.ReportID, &res.TestName, &res.Value,
		&res.Unit, &res.ReferenceRange, &res.IsAbnormal)
	return &res, err
}

func (r *repoPG) Create(ctx context.Context, report *BloodReport) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	report.ID = uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO blood_report (id, case_id, test_name, lab_name, category, result_date, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		report.ID, report.CaseID, report.TestName, report.LabName,
		report.Category, report.ResultDate, report.Notes)
	if err != nil {
		return err
	}

	for _, res := range report.Results {
		res.ID = uuid.New()
		res.ReportID = report.ID
		_, err = tx.Exec(ctx, `
			INSERT INTO blood_test_result (id, report_id, test_name, value, unit, reference_range, is_abnormal)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			res.ID, res.ReportID, res.TestName, res.Value,
			res.Unit, res.ReferenceRange, res.IsAbnormal)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*BloodReport, error) {
	report, err := scanReport(r.pool.QueryRow(ctx,
		`SELECT `+reportCols+` FROM blood_report WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadResults(ctx, []*BloodReport{report}); err != nil {
		return nil, err
	}
	return report, nil
}

func (r *repoPG) ListByCase(ctx context.Context, caseID uuid.UUID, limit, offset int) ([]*BloodReport, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM blood_report WHERE case_id = $1`, caseID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+reportCols+` FROM blood_report
		WHERE case_id = $1
		ORDER BY result_date DESC NULLS LAST, created_at DESC
		LIMIT $2 OFFSET $3`, caseID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	reports, err := collectReports(rows)
	if err != nil {
		return nil, 0, err
	}
	if err := r.loadResults(ctx, reports); err != nil {
		return nil, 0, err
	}
	return reports, total, nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*BloodReport, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT br.id, br.case_id, br.test_name, br.lab_name, br.category,
		       br.result_date, br.notes, br.created_at, br.updated_at
		FROM blood_report br
		JOIN medical_case mc ON mc.id = br.case_id
		WHERE mc.patient_id = $1
		ORDER BY br.result_date ASC NULLS LAST`, patientID)
	if err != nil {
		return nil, err
	}
	reports, err := collectReports(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadResults(ctx, reports); err != nil {
		return nil, err
	}
	return reports, nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM blood_report WHERE id = $1`, id)
	return err
}

func collectReports(rows pgx.Rows) ([]*BloodReport, error) {
	defer rows.Close()
	var reports []*BloodReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// loadResults fetches the result rows for a batch of reports in one query.
func (r *repoPG) loadResults(ctx context.Context, reports []*BloodReport) error {
	if len(reports) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*BloodReport, len(reports))
	ids := make([]uuid.UUID, len(reports))
	for i, report := range reports {
		byID[report.ID] = report
		ids[i] = report.ID
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+resultCols+` FROM blood_test_result
		WHERE report_id = ANY($1)
		ORDER BY test_name ASC`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return err
		}
		if report, ok := byID[res.ReportID]; ok {
			report.Results = append(report.Results, res)
		}
	}
	return rows.Err()
}
