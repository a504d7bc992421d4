package incident

import (
	"context"
	"encoding/json"
	"regexp"
	"time"

	"github.com/SettleGuard/settleguard/internal/pkg/logger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Incident is a structured alert raised when integrity fails.
type Incident struct {
	Severity   string         `json:"severity"`
	Title      string         `json:"title"`
	SourceKind string         `json:"source_kind"`
	Context    map[string]any `json:"context"`
}

// Builder receives incident reports. Implementations are best-effort
// collaborators; callers log and swallow their errors.
type Builder interface {
	CreateIncident(ctx context.Context, inc Incident) error
}

var sensitiveKey = regexp.MustCompile(`(?i)token|secret|key|authorization|password|private`)

// redactContext masks values under credential-looking keys before an
// incident leaves this process.
func redactContext(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if sensitiveKey.MatchString(k) {
			out[k] = "***REDACTED***"
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = redactContext(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// LogBuilder writes incidents to the structured log. Used when no incident
// store is configured.
type LogBuilder struct{}

func NewLogBuilder() *LogBuilder {
	return &LogBuilder{}
}

func (b *LogBuilder) CreateIncident(_ context.Context, inc Incident) error {
	logger.Error("INCIDENT",
		"severity", inc.Severity,
		"title", inc.Title,
		"source_kind", inc.SourceKind,
		"context", redactContext(inc.Context),
	)
	return nil
}

// PostgresBuilder persists incidents for the external alerting pipeline to
// pick up.
type PostgresBuilder struct {
	db *sqlx.DB
}

func NewPostgresBuilder(db *sqlx.DB) *PostgresBuilder {
	b := &PostgresBuilder{db: db}
	_ = b.ensureSchema(context.Background())
	return b
}

func (b *PostgresBuilder) ensureSchema(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS incidents (
			id TEXT PRIMARY KEY,
			severity TEXT NOT NULL,
			title TEXT NOT NULL,
			source_kind TEXT NOT NULL,
			context_json JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL
		)
	`)
	return err
}

func (b *PostgresBuilder) CreateIncident(ctx context.Context, inc Incident) error {
	contextJSON, _ := json.Marshal(redactContext(inc.Context))
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO incidents (id, severity, title, source_kind, context_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.NewString(), inc.Severity, inc.Title, inc.SourceKind, contextJSON, time.Now().UTC())
	return err
}
