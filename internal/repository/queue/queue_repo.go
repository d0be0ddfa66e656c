package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"movefines/internal/config/connections/postgres"
	"movefines/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrElementNotFound = errors.New("queue element not found")

type Repo struct {
	pg    *postgres.Postgres
	table string
	// quoted identifiers, safe to splice into SQL
	ident string
	index string
}

func NewRepo(pg *postgres.Postgres, table string) *Repo {
	if table == "" {
		table = "queue_elements"
	}
	return &Repo{
		pg:    pg,
		table: table,
		ident: pgx.Identifier{table}.Sanitize(),
		index: pgx.Identifier{table + "_lookup_idx"}.Sanitize(),
	}
}

func (r *Repo) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + r.ident + ` (
			id           uuid PRIMARY KEY,
			queue_name   text        NOT NULL,
			reference    text        NOT NULL DEFAULT '',
			status       text        NOT NULL,
			data         jsonb       NOT NULL,
			message      jsonb,
			created_by   text        NOT NULL DEFAULT '',
			created_date timestamptz NOT NULL DEFAULT NOW(),
			start_date   timestamptz,
			end_date     timestamptz
		)`,
		`CREATE INDEX IF NOT EXISTS ` + r.index + `
			ON ` + r.ident + ` (queue_name, status, reference, created_date)`,
	}
	for _, s := range stmts {
		if _, err := r.pg.Pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("ensure %s schema: %w", r.table, err)
		}
	}
	return nil
}

func (r *Repo) CreateElement(ctx context.Context, queueName, reference string, data []byte, createdBy string) (models.QueueElement, error) {
	qe := models.QueueElement{
		ID:        uuid.NewString(),
		QueueName: queueName,
		Reference: reference,
		Status:    models.QueueStatusNew,
		Data:      data,
		CreatedBy: createdBy,
	}

	err := r.pg.Pool.QueryRow(ctx, `
		INSERT INTO `+r.ident+` (id, queue_name, reference, status, data, created_by, created_date)
		VALUES ($1::uuid, $2, $3, $4, $5::jsonb, $6, NOW())
		RETURNING created_date
	`,
		qe.ID, qe.QueueName, qe.Reference, string(qe.Status), string(data), qe.CreatedBy,
	).Scan(&qe.CreatedAt)
	if err != nil {
		return models.QueueElement{}, fmt.Errorf("insert queue element: %w", err)
	}

	log.Printf("[QUEUE][CREATE] queue=%q reference=%q id=%s", queueName, reference, qe.ID)
	return qe, nil
}

// ListElements returns the matching elements oldest first.
func (r *Repo) ListElements(ctx context.Context, f models.QueueFilter) ([]models.QueueElement, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	add("queue_name = $%d", f.QueueName)
	if f.Reference != "" {
		add("reference = $%d", f.Reference)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}

	query := `
		SELECT id::text, queue_name, reference, status, data::text, message::text,
		       created_by, created_date, start_date, end_date
		FROM ` + r.ident + `
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_date ASC, id ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pg.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query queue elements: %w", err)
	}
	defer rows.Close()

	out := make([]models.QueueElement, 0)
	for rows.Next() {
		var (
			qe      models.QueueElement
			status  string
			data    string
			message *string
		)
		if err := rows.Scan(
			&qe.ID, &qe.QueueName, &qe.Reference, &status, &data, &message,
			&qe.CreatedBy, &qe.CreatedAt, &qe.StartDate, &qe.EndDate,
		); err != nil {
			return nil, fmt.Errorf("scan queue element: %w", err)
		}
		qe.Status = models.QueueStatus(status)
		qe.Data = []byte(data)
		if message != nil {
			qe.Message = []byte(*message)
		}
		out = append(out, qe)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SetStatus stores the status and progress message. The first move away
// from NEW stamps start_date, a terminal status stamps end_date.
func (r *Repo) SetStatus(ctx context.Context, id string, status models.QueueStatus, message []byte) error {
	var msg any
	if message != nil {
		msg = string(message)
	}

	tag, err := r.pg.Pool.Exec(ctx, `
		UPDATE `+r.ident+` SET
			status     = $2::text,
			message    = COALESCE($3::jsonb, message),
			start_date = CASE WHEN start_date IS NULL AND $2::text <> 'NEW' THEN $4::timestamptz ELSE start_date END,
			end_date   = CASE WHEN $2::text IN ('DONE', 'FAILED') THEN $4::timestamptz ELSE end_date END
		WHERE id = $1::uuid
	`, id, string(status), msg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update queue element %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrElementNotFound, id)
	}

	log.Printf("[QUEUE][STATUS] id=%s status=%s", id, status)
	return nil
}

// DeleteReference removes every element of a reference. Used when an
// intake fails halfway so the batch can be re-sent as a whole.
func (r *Repo) DeleteReference(ctx context.Context, queueName, reference string) (int64, error) {
	tag, err := r.pg.Pool.Exec(ctx,
		`DELETE FROM `+r.ident+` WHERE queue_name = $1 AND reference = $2`,
		queueName, reference,
	)
	if err != nil {
		return 0, fmt.Errorf("delete reference %q: %w", reference, err)
	}
	return tag.RowsAffected(), nil
}
