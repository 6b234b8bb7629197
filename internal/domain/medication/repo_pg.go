package medication

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const medicationCols = `id, case_id, name, dosage, number_of_days, instructions, active, created_at, updated_at`
const relationCols = `id, medication_id, meal, timing, offset_minutes, dosage`

func scanMedication(row pgx.Row) (*Medication, error) {
	var m Medication
	err := row.Scan(&m.ID, &m.CaseID, &m.Name, &m.Dosage, &m.NumberOfDays,
		&m.Instructions, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

func scanRelation(row pgx.Row) (*MealRelation, error) {
	var f MealRelation
	err := row.Scan(&f.ID, &f.MedicationID, &f.Meal, &f.Timing, &f.OffsetMinutes, &f.Dosage)
	return &f, err
}

func (r *repoPG) Create(ctx context.Context, m *Medication) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	m.ID = uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO medication (id, case_id, name, dosage, number_of_days, instructions, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		m.ID, m.CaseID, m.Name, m.Dosage, m.NumberOfDays, m.Instructions, m.Active)
	if err != nil {
		return err
	}
	if err := insertRelations(ctx, tx, m); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertRelations(ctx context.Context, tx pgx.Tx, m *Medication) error {
	for _, f := range m.Frequencies {
		f.ID = uuid.New()
		f.MedicationID = m.ID
		_, err := tx.Exec(ctx, `
			INSERT INTO meal_relation (id, medication_id, meal, timing, offset_minutes, dosage)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			f.ID, f.MedicationID, f.Meal, f.Timing, f.OffsetMinutes, f.Dosage)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medication, error) {
	m, err := scanMedication(r.pool.QueryRow(ctx,
		`SELECT `+medicationCols+` FROM medication WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadRelations(ctx, []*Medication{m}); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *repoPG) ListByCase(ctx context.Context, caseID uuid.UUID, limit, offset int) ([]*Medication, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM medication WHERE case_id = $1`, caseID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+medicationCols+` FROM medication
		WHERE case_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, caseID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	meds, err := collectMedications(rows)
	if err != nil {
		return nil, 0, err
	}
	if err := r.loadRelations(ctx, meds); err != nil {
		return nil, 0, err
	}
	return meds, total, nil
}

func (r *repoPG) ListActiveByPatient(ctx context.Context, patientID uuid.UUID) ([]*Medication, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.id, m.case_id, m.name, m.dosage, m.number_of_days,
		       m.instructions, m.active, m.created_at, m.updated_at
		FROM medication m
		JOIN medical_case mc ON mc.id = m.case_id
		WHERE mc.patient_id = $1 AND m.active
		ORDER BY m.name ASC`, patientID)
	if err != nil {
		return nil, err
	}
	meds, err := collectMedications(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadRelations(ctx, meds); err != nil {
		return nil, err
	}
	return meds, nil
}

func (r *repoPG) Update(ctx context.Context, m *Medication) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE medication SET name=$2, dosage=$3, number_of_days=$4,
		       instructions=$5, active=$6, updated_at=NOW()
		WHERE id = $1`,
		m.ID, m.Name, m.Dosage, m.NumberOfDays, m.Instructions, m.Active)
	if err != nil {
		return err
	}

	// Meal relations are replaced wholesale on update.
	if _, err := tx.Exec(ctx, `DELETE FROM meal_relation WHERE medication_id = $1`, m.ID); err != nil {
		return err
	}
	if err := insertRelations(ctx, tx, m); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM medication WHERE id = $1`, id)
	return err
}

func (r *repoPG) UpsertDoseLog(ctx context.Context, log *DoseLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO dose_log (id, medication_id, frequency_id, dose_date, status, taken_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (medication_id, frequency_id, dose_date)
		DO UPDATE SET status = EXCLUDED.status, taken_at = EXCLUDED.taken_at, recorded_at = NOW()`,
		log.ID, log.MedicationID, log.FrequencyID, log.DoseDate, log.Status, log.TakenAt)
	return err
}

func (r *repoPG) ListDoseLogs(ctx context.Context, patientID uuid.UUID, day time.Time) ([]*DoseLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT dl.id, dl.medication_id, dl.frequency_id, dl.dose_date,
		       dl.status, dl.taken_at, dl.recorded_at
		FROM dose_log dl
		JOIN medication m ON m.id = dl.medication_id
		JOIN medical_case mc ON mc.id = m.case_id
		WHERE mc.patient_id = $1 AND dl.dose_date = $2`,
		patientID, day.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*DoseLog
	for rows.Next() {
		var l DoseLog
		if err := rows.Scan(&l.ID, &l.MedicationID, &l.FrequencyID, &l.DoseDate,
			&l.Status, &l.TakenAt, &l.RecordedAt); err != nil {
			return nil, err
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

func (r *repoPG) PatientsWithActiveMedications(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT mc.patient_id
		FROM medication m
		JOIN medical_case mc ON mc.id = m.case_id
		WHERE m.active`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func collectMedications(rows pgx.Rows) ([]*Medication, error) {
	defer rows.Close()
	var meds []*Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, err
		}
		meds = append(meds, m)
	}
	return meds, rows.Err()
}

func (r *repoPG) loadRelations(ctx context.Context, meds []*Medication) error {
	if len(meds) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*Medication, len(meds))
	ids := make([]uuid.UUID, len(meds))
	for i, m := range meds {
		byID[m.ID] = m
		ids[i] = m.ID
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+relationCols+` FROM meal_relation
		WHERE medication_id = ANY($1)
		ORDER BY meal ASC`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		f, err := scanRelation(rows)
		if err != nil {
			return err
		}
		if m, ok := byID[f.MedicationID]; ok {
			m.Frequencies = append(m.Frequencies, f)
		}
	}
	return rows.Err()
}
