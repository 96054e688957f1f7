package repository

import (
	"context"

	"github.com/google/uuid"
)

const getServiceByName = `-- name: GetServiceByName :one
SELECT id, name, category, is_active, created_at
FROM services
WHERE lower(name) = lower($1)
`

func (q *Queries) GetServiceByName(ctx context.Context, name string) (Service, error) {
	row := q.db.QueryRow(ctx, getServiceByName, name)
	var i Service
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Category,
		&i.IsActive,
		&i.CreatedAt,
	)
	return i, err
}

const createServiceIfAbsent = `-- name: CreateServiceIfAbsent :execrows
INSERT INTO services (id, name, category, is_active)
VALUES ($1, $2, $3, $4)
ON CONFLICT ((lower(name))) DO NOTHING
`

type CreateServiceParams struct {
	ID       uuid.UUID
	Name     string
	Category string
	IsActive bool
}

func (q *Queries) CreateServiceIfAbsent(ctx context.Context, arg CreateServiceParams) (int64, error) {
	result, err := q.db.Exec(ctx, createServiceIfAbsent,
		arg.ID,
		arg.Name,
		arg.Category,
		arg.IsActive,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listServices = `-- name: ListServices :many
SELECT id, name, category, is_active, created_at
FROM services
ORDER BY lower(name)
`

func (q *Queries) ListServices(ctx context.Context) ([]Service, error) {
	rows, err := q.db.Query(ctx, listServices)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Service
	for rows.Next() {
		var i Service
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.Category,
			&i.IsActive,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
