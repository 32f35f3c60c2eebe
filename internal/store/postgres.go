package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"hookrelay/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Migrate creates the two tables if they do not exist (dev helper; managed
// environments run migrations out of band).
func (p *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS webhook_endpoints (
			id UUID PRIMARY KEY,
			url TEXT NOT NULL,
			secret TEXT NOT NULL,
			events JSONB NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			headers JSONB,
			timeout_sec INT NOT NULL DEFAULT 0,
			max_retries INT NOT NULL DEFAULT 0,
			retry_base_ms INT NOT NULL DEFAULT 0,
			rate_limit DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_events (
			id UUID PRIMARY KEY,
			endpoint_id UUID NOT NULL,
			event_type TEXT NOT NULL,
			payload JSONB NOT NULL,
			signature TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			scheduled_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			delivered_at TIMESTAMPTZ,
			last_error TEXT,
			response_code INT,
			latency_ms INT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_webhook_events_endpoint ON webhook_events (endpoint_id)`,
		`CREATE INDEX IF NOT EXISTS idx_webhook_events_status ON webhook_events (status)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (p *Postgres) CreateEndpoint(ctx context.Context, ep model.Endpoint) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_endpoints
		(id, url, secret, events, active, headers, timeout_sec, max_retries, retry_base_ms, rate_limit, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		ep.ID, ep.URL, ep.Secret, toJSON(ep.Events), ep.Active, toJSON(ep.Headers),
		ep.TimeoutSec, ep.MaxRetries, ep.RetryBaseMs, ep.RateLimit, ep.CreatedAt)
	return err
}

func (p *Postgres) GetEndpoint(ctx context.Context, id string) (model.Endpoint, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id::text, url, secret, events, active, COALESCE(headers,'{}'::jsonb), timeout_sec, max_retries, retry_base_ms, rate_limit, created_at
		FROM webhook_endpoints WHERE id=$1`, id)
	return scanEndpoint(row)
}

func (p *Postgres) UpdateEndpoint(ctx context.Context, ep model.Endpoint) error {
	res, err := p.db.ExecContext(ctx, `UPDATE webhook_endpoints SET url=$2, secret=$3, events=$4, active=$5, headers=$6, timeout_sec=$7, max_retries=$8, retry_base_ms=$9, rate_limit=$10 WHERE id=$1`,
		ep.ID, ep.URL, ep.Secret, toJSON(ep.Events), ep.Active, toJSON(ep.Headers),
		ep.TimeoutSec, ep.MaxRetries, ep.RetryBaseMs, ep.RateLimit)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (p *Postgres) DeleteEndpoint(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM webhook_endpoints WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (p *Postgres) ListEndpoints(ctx context.Context) ([]model.Endpoint, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, secret, events, active, COALESCE(headers,'{}'::jsonb), timeout_sec, max_retries, retry_base_ms, rate_limit, created_at
		FROM webhook_endpoints ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Endpoint{}
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

func (p *Postgres) InsertEvent(ctx context.Context, evt model.Event) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_events
		(id, endpoint_id, event_type, payload, signature, status, attempts, created_at, scheduled_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		evt.ID, evt.EndpointID, evt.Type, string(evt.Payload), evt.Signature, string(evt.Status), evt.Attempts, evt.CreatedAt, evt.ScheduledAt)
	return err
}

func (p *Postgres) GetEvent(ctx context.Context, id string) (model.Event, error) {
	row := p.db.QueryRowContext(ctx, eventSelect+` WHERE id=$1`, id)
	return scanEvent(row)
}

func (p *Postgres) MarkEventDelivered(ctx context.Context, id string, attempts, responseCode, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_events SET status='delivered', attempts=$2, delivered_at=now(), last_error=NULL, response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, attempts, responseCode, latencyMs)
	return err
}

func (p *Postgres) MarkEventRetrying(ctx context.Context, id string, attempts int, nextAt time.Time, lastError string, responseCode, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_events SET status='retrying', attempts=$2, scheduled_at=$3, last_error=$4, response_code=$5, latency_ms=$6 WHERE id=$1`,
		id, attempts, nextAt, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func (p *Postgres) MarkEventFailed(ctx context.Context, id string, attempts int, lastError string, responseCode, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_events SET status='failed', attempts=$2, last_error=$3, response_code=$4, latency_ms=$5 WHERE id=$1`,
		id, attempts, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func (p *Postgres) MarkEventExpired(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_events SET status='expired' WHERE id=$1`, id)
	return err
}

func (p *Postgres) RequeueEvent(ctx context.Context, id string) (model.Event, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE webhook_events SET status='pending', attempts=0, last_error=NULL, scheduled_at=now()
		WHERE id=$1 AND status IN ('failed','expired')`, id)
	if err != nil {
		return model.Event{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// distinguish missing from non-terminal
		if _, err := p.GetEvent(ctx, id); err != nil {
			return model.Event{}, err
		}
		return model.Event{}, ErrNotRequeueable
	}
	return p.GetEvent(ctx, id)
}

func (p *Postgres) ListFailed(ctx context.Context, endpointID string, since time.Time) ([]model.Event, error) {
	q := eventSelect + ` WHERE status='failed'`
	args := []any{}
	if endpointID != "" {
		args = append(args, endpointID)
		q += fmt.Sprintf(" AND endpoint_id=$%d", len(args))
	}
	if !since.IsZero() {
		args = append(args, since)
		q += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	q += ` ORDER BY created_at ASC`
	return p.queryEvents(ctx, q, args...)
}

func (p *Postgres) ListEvents(ctx context.Context, endpointID string, status model.EventStatus, limit int) ([]model.Event, error) {
	q := eventSelect + ` WHERE 1=1`
	args := []any{}
	if endpointID != "" {
		args = append(args, endpointID)
		q += fmt.Sprintf(" AND endpoint_id=$%d", len(args))
	}
	if status != "" {
		args = append(args, string(status))
		q += fmt.Sprintf(" AND status=$%d", len(args))
	}
	q += ` ORDER BY created_at ASC`
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return p.queryEvents(ctx, q, args...)
}

func (p *Postgres) ListRecoverable(ctx context.Context) ([]model.Event, error) {
	return p.queryEvents(ctx, eventSelect+` WHERE status IN ('pending','retrying') ORDER BY created_at ASC`)
}

func (p *Postgres) EndpointStats(ctx context.Context, endpointID string, since time.Time) (model.EndpointStats, error) {
	q := `SELECT status, COUNT(*), COALESCE(SUM(attempts),0) FROM webhook_events WHERE endpoint_id=$1`
	args := []any{endpointID}
	if !since.IsZero() {
		args = append(args, since)
		q += ` AND created_at >= $2`
	}
	q += ` GROUP BY status`
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return model.EndpointStats{}, err
	}
	defer rows.Close()
	stats := model.EndpointStats{ByStatus: map[model.EventStatus]int{}}
	attempts := 0
	for rows.Next() {
		var st string
		var cnt, att int
		if err := rows.Scan(&st, &cnt, &att); err != nil {
			return model.EndpointStats{}, err
		}
		stats.ByStatus[model.EventStatus(st)] = cnt
		stats.Total += cnt
		attempts += att
	}
	if err := rows.Err(); err != nil {
		return model.EndpointStats{}, err
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.ByStatus[model.StatusDelivered]) / float64(stats.Total)
		stats.AvgAttempts = float64(attempts) / float64(stats.Total)
	}
	return stats, nil
}

const eventSelect = `SELECT id::text, endpoint_id::text, event_type, payload, signature, status, attempts, created_at, scheduled_at, delivered_at, COALESCE(last_error,''), COALESCE(response_code,0), COALESCE(latency_ms,0) FROM webhook_events`

func (p *Postgres) queryEvents(ctx context.Context, q string, args ...any) ([]model.Event, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Event{}
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEndpoint(row scanner) (model.Endpoint, error) {
	var ep model.Endpoint
	var events, headers []byte
	err := row.Scan(&ep.ID, &ep.URL, &ep.Secret, &events, &ep.Active, &headers,
		&ep.TimeoutSec, &ep.MaxRetries, &ep.RetryBaseMs, &ep.RateLimit, &ep.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Endpoint{}, ErrNotFound
	}
	if err != nil {
		return model.Endpoint{}, err
	}
	if err := json.Unmarshal(events, &ep.Events); err != nil {
		return model.Endpoint{}, fmt.Errorf("decode events: %w", err)
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &ep.Headers); err != nil {
			return model.Endpoint{}, fmt.Errorf("decode headers: %w", err)
		}
	}
	return ep, nil
}

func scanEvent(row scanner) (model.Event, error) {
	var evt model.Event
	var payload []byte
	var status string
	var deliveredAt sql.NullTime
	err := row.Scan(&evt.ID, &evt.EndpointID, &evt.Type, &payload, &evt.Signature, &status,
		&evt.Attempts, &evt.CreatedAt, &evt.ScheduledAt, &deliveredAt, &evt.LastError, &evt.ResponseCode, &evt.LatencyMs)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ErrNotFound
	}
	if err != nil {
		return model.Event{}, err
	}
	evt.Payload = payload
	evt.Status = model.EventStatus(status)
	if deliveredAt.Valid {
		t := deliveredAt.Time
		evt.DeliveredAt = &t
	}
	return evt, nil
}

func requireRow(res sql.Result) error {
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func toJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
