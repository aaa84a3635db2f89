package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"timebridge.service/internal/core/model"
)

const employeeColumns = `id, external_id, name, code, number, deleted_at, created_at, updated_at`

// UpsertEmployee inserts an employee or overwrites name, code and number when
// the external id is already known. It returns the local id either way.
func (r *SQLRepository) UpsertEmployee(ctx context.Context, in EmployeeInput) (int64, error) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("app.employee_external_id", in.ExternalID))

	now := r.timestamp()
	var id int64
	err := r.queryRow(ctx, `
		INSERT INTO employees (external_id, name, code, number, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_id) DO UPDATE SET
			name = excluded.name,
			code = excluded.code,
			number = excluded.number,
			updated_at = excluded.updated_at
		RETURNING id`,
		in.ExternalID, in.Name, in.Code, in.Number, now, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert employee %s: %w", in.ExternalID, err)
	}
	return id, nil
}

// GetEmployeeByExternalID returns nil when no employee matches.
func (r *SQLRepository) GetEmployeeByExternalID(ctx context.Context, externalID string) (*model.Employee, error) {
	row := r.queryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE external_id = ?`, externalID)
	emp, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return emp, nil
}

// ListEmployees returns active employees ordered by name.
func (r *SQLRepository) ListEmployees(ctx context.Context) ([]model.Employee, error) {
	rows, err := r.query(ctx, `SELECT `+employeeColumns+` FROM employees WHERE deleted_at IS NULL ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *emp)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployee(s scanner) (*model.Employee, error) {
	var (
		emp                  model.Employee
		code, number         sql.NullString
		deletedAt            sql.NullTime
		createdAt, updatedAt sql.NullTime
	)
	if err := s.Scan(&emp.ID, &emp.ExternalID, &emp.Name, &code, &number, &deletedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	emp.Code = nullStringPtr(code)
	emp.Number = nullStringPtr(number)
	emp.DeletedAt = nullTimePtr(deletedAt)
	emp.CreatedAt = createdAt.Time.UTC()
	emp.UpdatedAt = updatedAt.Time.UTC()
	return &emp, nil
}
