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

// Action types mirror the security/provenance-relevant operations the
// ledger records.
const (
	ActionCreate   = "create"
	ActionUpdate   = "update"
	ActionDelete   = "delete"
	ActionExecute  = "execute"
	ActionExport   = "export"
	ActionRollback = "rollback"
)

// Entry is one append-only audit record referencing an actor, a target
// entity and a change summary. Write-only from the core's perspective.
type Entry struct {
	OccurredAt time.Time
	Actor      string
	Action     string
	ObjectType string
	ObjectID   string
	RequestID  string
	IP         net.IP
	UserAgent  string
	Changes    any
	Metadata   any
}

type QueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (e Entry) Validate() error {
	if e.OccurredAt.IsZero() {
		return errors.New("OccurredAt is required")
	}
	if strings.TrimSpace(e.Actor) == "" {
		return errors.New("Actor is required")
	}
	switch strings.TrimSpace(e.Action) {
	case ActionCreate, ActionUpdate, ActionDelete, ActionExecute, ActionExport, ActionRollback:
	case "":
		return errors.New("Action is required")
	default:
		return fmt.Errorf("unsupported action: %q", e.Action)
	}
	if strings.TrimSpace(e.ObjectType) == "" {
		return errors.New("ObjectType is required")
	}
	if strings.TrimSpace(e.ObjectID) == "" {
		return errors.New("ObjectID is required")
	}
	return nil
}

func Insert(ctx context.Context, q QueryRower, entry Entry) (int64, error) {
	if q == nil {
		return 0, errors.New("queryer is required")
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	if err := entry.Validate(); err != nil {
		return 0, err
	}

	changes := entry.Changes
	if changes == nil {
		changes = map[string]any{}
	}
	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return 0, fmt.Errorf("marshal changes: %w", err)
	}
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return 0, fmt.Errorf("marshal metadata: %w", err)
	}

	ipStr := strings.TrimSpace(entry.IP.String())
	integrity, err := ComputeIntegritySHA256(entry, changesJSON, metadataJSON)
	if err != nil {
		return 0, err
	}

	var requestID sql.NullString
	if strings.TrimSpace(entry.RequestID) != "" {
		requestID = sql.NullString{String: strings.TrimSpace(entry.RequestID), Valid: true}
	}
	var ip sql.NullString
	if ipStr != "" && ipStr != "<nil>" {
		ip = sql.NullString{String: ipStr, Valid: true}
	}
	var userAgent sql.NullString
	if strings.TrimSpace(entry.UserAgent) != "" {
		userAgent = sql.NullString{String: strings.TrimSpace(entry.UserAgent), Valid: true}
	}

	var id int64
	err = q.QueryRowContext(
		ctx,
		`INSERT INTO audit_log (
			occurred_at,
			actor,
			action,
			object_type,
			object_id,
			request_id,
			ip,
			user_agent,
			changes,
			metadata,
			integrity_sha256
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING entry_id`,
		entry.OccurredAt.UTC(),
		strings.TrimSpace(entry.Actor),
		strings.TrimSpace(entry.Action),
		strings.TrimSpace(entry.ObjectType),
		strings.TrimSpace(entry.ObjectID),
		requestID,
		ip,
		userAgent,
		changesJSON,
		metadataJSON,
		integrity,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert audit entry: %w", err)
	}
	return id, nil
}

func ComputeIntegritySHA256(entry Entry, changesJSON, metadataJSON []byte) (string, error) {
	type integrityInput struct {
		OccurredAt time.Time       `json:"occurred_at"`
		Actor      string          `json:"actor"`
		Action     string          `json:"action"`
		ObjectType string          `json:"object_type"`
		ObjectID   string          `json:"object_id"`
		RequestID  string          `json:"request_id,omitempty"`
		IP         string          `json:"ip,omitempty"`
		UserAgent  string          `json:"user_agent,omitempty"`
		Changes    json.RawMessage `json:"changes"`
		Metadata   json.RawMessage `json:"metadata"`
	}

	ipStr := strings.TrimSpace(entry.IP.String())
	if ipStr == "<nil>" {
		ipStr = ""
	}

	in := integrityInput{
		OccurredAt: entry.OccurredAt.UTC(),
		Actor:      strings.TrimSpace(entry.Actor),
		Action:     strings.TrimSpace(entry.Action),
		ObjectType: strings.TrimSpace(entry.ObjectType),
		ObjectID:   strings.TrimSpace(entry.ObjectID),
		RequestID:  strings.TrimSpace(entry.RequestID),
		IP:         ipStr,
		UserAgent:  strings.TrimSpace(entry.UserAgent),
		Changes:    changesJSON,
		Metadata:   metadataJSON,
	}

	blob, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}
