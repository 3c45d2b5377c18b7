package auditlog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Schema creates the append-only audit table.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	event_id         BIGSERIAL PRIMARY KEY,
	occurred_at      TIMESTAMPTZ NOT NULL,
	actor            TEXT NOT NULL,
	action           TEXT NOT NULL,
	resource_type    TEXT NOT NULL,
	resource_id      TEXT NOT NULL,
	request_id       TEXT NOT NULL DEFAULT '',
	ip               TEXT NOT NULL DEFAULT '',
	user_agent       TEXT NOT NULL DEFAULT '',
	payload          JSONB NOT NULL,
	integrity_sha256 TEXT NOT NULL
);
`

type Event struct {
	OccurredAt   time.Time
	Actor        string
	Action       string
	ResourceType string
	ResourceID   string
	RequestID    string
	IP           net.IP
	UserAgent    string
	Payload      any
}

// QueryRower is the minimal database surface needed to append an event.
type QueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (e Event) Validate() error {
	if e.OccurredAt.IsZero() {
		return errors.New("OccurredAt is required")
	}
	if strings.TrimSpace(e.Actor) == "" {
		return errors.New("Actor is required")
	}
	if strings.TrimSpace(e.Action) == "" {
		return errors.New("Action is required")
	}
	if strings.TrimSpace(e.ResourceType) == "" {
		return errors.New("ResourceType is required")
	}
	if strings.TrimSpace(e.ResourceID) == "" {
		return errors.New("ResourceID is required")
	}
	return nil
}

// Insert appends one event and returns its id. Events are never updated or
// deleted; the integrity hash covers the identifying fields and payload.
func Insert(ctx context.Context, q QueryRower, event Event) (int64, error) {
	if q == nil {
		return 0, errors.New("queryer is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := event.Validate(); err != nil {
		return 0, err
	}

	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	ip := ""
	if event.IP != nil {
		ip = event.IP.String()
	}
	integrity := integritySHA256(event, ip, payloadJSON)

	var id int64
	err = q.QueryRowContext(
		ctx,
		`INSERT INTO audit_events (occurred_at, actor, action, resource_type, resource_id, request_id, ip, user_agent, payload, integrity_sha256)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 RETURNING event_id`,
		event.OccurredAt.UTC(),
		strings.TrimSpace(event.Actor),
		strings.TrimSpace(event.Action),
		strings.TrimSpace(event.ResourceType),
		strings.TrimSpace(event.ResourceID),
		strings.TrimSpace(event.RequestID),
		ip,
		strings.TrimSpace(event.UserAgent),
		payloadJSON,
		integrity,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert audit event: %w", err)
	}
	return id, nil
}

func integritySHA256(event Event, ip string, payloadJSON []byte) string {
	h := sha256.New()
	for _, field := range []string{
		event.OccurredAt.UTC().Format(time.RFC3339Nano),
		event.Actor,
		event.Action,
		event.ResourceType,
		event.ResourceID,
		event.RequestID,
		ip,
		event.UserAgent,
	} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	h.Write(payloadJSON)
	return hex.EncodeToString(h.Sum(nil))
}
