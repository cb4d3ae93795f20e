package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"cryptoRiskEngine/internal/domain"
	"cryptoRiskEngine/internal/ports"
)

// RecordAudit appends an entry to the audit log.
func (r *Repository) RecordAudit(ctx context.Context, entry *domain.AuditEntry) error {
	payload := []byte("{}")
	if entry.Payload != nil {
		var err error
		if payload, err = json.Marshal(entry.Payload); err != nil {
			return fmt.Errorf("failed to encode audit payload: %w", err)
		}
	}

	const query = `
	INSERT INTO audit_log (created_at, component, event_type, message, payload_json)
	VALUES (?, ?, ?, ?, ?)`
	result, err := r.db.ExecContext(ctx, query, entry.CreatedAt, entry.Component, entry.EventType, entry.Message, string(payload))
	if err != nil {
		return fmt.Errorf("%w: failed to insert audit entry: %w", ports.ErrUpdateFailed, err)
	}
	if id, err := result.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// FindAudit returns the most recent audit entries, newest first.
func (r *Repository) FindAudit(ctx context.Context, limit int) ([]*domain.AuditEntry, error) {
	const query = `
	SELECT id, created_at, component, event_type, message, payload_json
	FROM audit_log ORDER BY id DESC LIMIT ?`

	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query audit log: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	entries := make([]*domain.AuditEntry, 0)
	for rows.Next() {
		e := &domain.AuditEntry{}
		var payload string
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.Component, &e.EventType, &e.Message, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode audit payload %d: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}
	return entries, nil
}
