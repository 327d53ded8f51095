package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// selectColumns renders dates and times as text so they land in the
// canonical string form, and joins the assigned user's display name.
const selectColumns = `
	a.id::text,
	to_char(a.date, 'YYYY-MM-DD'),
	to_char(a.start_time, 'HH24:MI'),
	to_char(a.end_time, 'HH24:MI'),
	a.type,
	COALESCE(a.subtype, ''),
	a.status_code,
	COALESCE(a.patient_id::text, ''),
	COALESCE(a.patient_name, ''),
	COALESCE(a.assigned_user_id::text, ''),
	COALESCE(u.display_name, ''),
	COALESCE(a.notes, ''),
	a.created_at,
	a.updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.Date,
		&a.StartTime,
		&a.EndTime,
		&a.Type,
		&a.Subtype,
		&a.StatusCode,
		&a.PatientID,
		&a.PatientName,
		&a.AssignedUserID,
		&a.AssignedUserName,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func (r *PgRepository) List(ctx context.Context, rg Range) ([]Appointment, error) {
	to := rg.To
	if to == "" {
		to = rg.From
	}

	rows, err := r.pool.Query(ctx, `
		SELECT`+selectColumns+`
		FROM appointments a
		LEFT JOIN users u ON u.id = a.assigned_user_id
		WHERE a.date BETWEEN $1::date AND $2::date
	`, rg.From, to)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// rowQuerier is satisfied by both the pool and a transaction.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *PgRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrAppointmentNotFound
	}
	a, err := r.get(ctx, r.pool, id)
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, err
}

func (r *PgRepository) get(ctx context.Context, q rowQuerier, id string) (*Appointment, error) {
	row := q.QueryRow(ctx, `
		SELECT`+selectColumns+`
		FROM appointments a
		LEFT JOIN users u ON u.id = a.assigned_user_id
		WHERE a.id = $1::uuid
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) Create(ctx context.Context, a Appointment) (*Appointment, error) {
	id, err := uuid.Parse(a.ID)
	if err != nil {
		id = uuid.New()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO appointments (
			id, date, start_time, end_time, type, subtype, status_code,
			patient_id, patient_name, assigned_user_id, notes, created_at, updated_at
		)
		VALUES ($1, $2::date, $3::time, $4::time, $5, NULLIF($6, ''), $7,
			NULLIF($8, '')::uuid, NULLIF($9, ''), NULLIF($10, '')::uuid, NULLIF($11, ''), now(), now())
		ON CONFLICT (id) DO NOTHING
	`, id, a.Date, a.StartTime, a.EndTime, a.Type, a.Subtype, a.StatusCode,
		a.PatientID, a.PatientName, a.AssignedUserID, a.Notes)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	created, err := r.get(ctx, tx, id.String())
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return created, nil
}

func (r *PgRepository) Update(ctx context.Context, id string, p Patch) (*Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrAppointmentNotFound
	}

	sets, args := patchAssignments(p)
	if len(sets) == 0 {
		return nil, fmt.Errorf("%w: empty patch", ErrInvalidAppointment)
	}
	args = append(args, id)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, fmt.Sprintf(`
		UPDATE appointments
		SET %s,
		    updated_at = now()
		WHERE id = $%d::uuid
	`, strings.Join(sets, ", "), len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrAppointmentNotFound
	}

	updated, err := r.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return updated, nil
}

func patchAssignments(p Patch) ([]string, []any) {
	var sets []string
	var args []any

	add := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if p.Date != nil {
		add("date = $%d::date", *p.Date)
	}
	if p.StartTime != nil {
		add("start_time = $%d::time", *p.StartTime)
	}
	if p.EndTime != nil {
		add("end_time = $%d::time", *p.EndTime)
	}
	if p.Type != nil {
		add("type = $%d", *p.Type)
	}
	if p.Subtype != nil {
		add("subtype = NULLIF($%d, '')", *p.Subtype)
	}
	if p.StatusCode != nil {
		add("status_code = $%d", string(*p.StatusCode))
	}
	if p.PatientID != nil {
		add("patient_id = NULLIF($%d, '')::uuid", *p.PatientID)
	}
	if p.PatientName != nil {
		add("patient_name = NULLIF($%d, '')", *p.PatientName)
	}
	if p.AssignedUserID != nil {
		add("assigned_user_id = NULLIF($%d, '')::uuid", *p.AssignedUserID)
	}
	if p.Notes != nil {
		add("notes = NULLIF($%d, '')", *p.Notes)
	}

	return sets, args
}

func (r *PgRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrAppointmentNotFound
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1::uuid`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}
