package patient

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

const patientCols = `id, name, date_of_birth, sex, created_at, updated_at`

func (r *patientRepoPG) scan(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.DateOfBirth, &p.Sex, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patient (id, name, date_of_birth, sex)
		VALUES ($1,$2,$3,$4)`,
		p.ID, p.Name, p.DateOfBirth, p.Sex)
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scan(r.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE patient SET name=$2, date_of_birth=$3, sex=$4, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.Name, p.DateOfBirth, p.Sex)
	return err
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	return err
}

type medicalCaseRepoPG struct{ pool *pgxpool.Pool }

func NewMedicalCaseRepoPG(pool *pgxpool.Pool) MedicalCaseRepository {
	return &medicalCaseRepoPG{pool: pool}
}

const caseCols = `id, patient_id, title, case_type, status, notes, created_at, updated_at`

func (r *medicalCaseRepoPG) scan(row pgx.Row) (*MedicalCase, error) {
	var mc MedicalCase
	err := row.Scan(&mc.ID, &mc.PatientID, &mc.Title, &mc.CaseType, &mc.Status,
		&mc.Notes, &mc.CreatedAt, &mc.UpdatedAt)
	return &mc, err
}

func (r *medicalCaseRepoPG) Create(ctx context.Context, mc *MedicalCase) error {
	mc.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO medical_case (id, patient_id, title, case_type, status, notes)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		mc.ID, mc.PatientID, mc.Title, mc.CaseType, mc.Status, mc.Notes)
	return err
}

func (r *medicalCaseRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicalCase, error) {
	return r.scan(r.pool.QueryRow(ctx, `SELECT `+caseCols+` FROM medical_case WHERE id = $1`, id))
}

func (r *medicalCaseRepoPG) Update(ctx context.Context, mc *MedicalCase) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE medical_case SET title=$2, case_type=$3, status=$4, notes=$5, updated_at=NOW()
		WHERE id = $1`,
		mc.ID, mc.Title, mc.CaseType, mc.Status, mc.Notes)
	return err
}

func (r *medicalCaseRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM medical_case WHERE id = $1`, id)
	return err
}

func (r *medicalCaseRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*MedicalCase, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM medical_case WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+caseCols+` FROM medical_case
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var cases []*MedicalCase
	for rows.Next() {
		mc, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		cases = append(cases, mc)
	}
	return cases, total, rows.Err()
}
