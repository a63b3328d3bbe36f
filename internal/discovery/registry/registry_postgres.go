package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trustmesh/internal/models"
	"trustmesh/pkg/platform/sentinel"
)

// Schema creates the table PostgresRegistry uses.
const Schema = `
CREATE TABLE IF NOT EXISTS registered_devices (
	device_id         TEXT PRIMARY KEY,
	name              TEXT NOT NULL DEFAULT '',
	user_agent        TEXT NOT NULL DEFAULT '',
	platform          TEXT NOT NULL DEFAULT '',
	protocols         TEXT[] NOT NULL DEFAULT '{}',
	protocol_versions TEXT[] NOT NULL DEFAULT '{}',
	cipher_suites     TEXT[] NOT NULL DEFAULT '{}',
	trust_level       SMALLINT NOT NULL,
	public_key        BYTEA NOT NULL,
	registered_at     TIMESTAMPTZ NOT NULL
);
`

const selectColumns = `device_id, name, user_agent, platform, protocols, protocol_versions,
	cipher_suites, trust_level, public_key, registered_at`

// PostgresRegistry persists registered devices with pgx.
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{pool: pool}
}

// EnsureSchema applies Schema. It is idempotent.
func (r *PostgresRegistry) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure device registry schema: %w", err)
	}
	return nil
}

func (r *PostgresRegistry) Register(ctx context.Context, d models.RegisteredDevice) error {
	protocols := make([]string, 0, len(d.Capabilities.Protocols))
	for _, p := range d.Capabilities.Protocols {
		protocols = append(protocols, p.String())
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO registered_devices (`+selectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (device_id) DO UPDATE SET
			name = EXCLUDED.name,
			user_agent = EXCLUDED.user_agent,
			platform = EXCLUDED.platform,
			protocols = EXCLUDED.protocols,
			protocol_versions = EXCLUDED.protocol_versions,
			cipher_suites = EXCLUDED.cipher_suites,
			trust_level = EXCLUDED.trust_level,
			public_key = EXCLUDED.public_key,
			registered_at = EXCLUDED.registered_at
	`,
		d.Device.ID, d.Device.Name, d.Device.UserAgent, d.Device.Platform,
		protocols, nonNil(d.Capabilities.ProtocolVersions), nonNil(d.Capabilities.CipherSuites),
		int16(d.TrustLevel), []byte(d.PublicKey), d.RegisteredAt,
	)
	if err != nil {
		return fmt.Errorf("register device: %w", err)
	}
	return nil
}

func (r *PostgresRegistry) Get(ctx context.Context, deviceID string) (models.RegisteredDevice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM registered_devices WHERE device_id = $1`, deviceID)
	d, err := scanDevice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.RegisteredDevice{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.RegisteredDevice{}, fmt.Errorf("get registered device: %w", err)
	}
	return d, nil
}

func (r *PostgresRegistry) SetTrustLevel(ctx context.Context, deviceID string, level models.TrustLevel) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE registered_devices SET trust_level = $2 WHERE device_id = $1`,
		deviceID, int16(level),
	)
	if err != nil {
		return fmt.Errorf("set device trust level: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (r *PostgresRegistry) List(ctx context.Context) ([]models.RegisteredDevice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+selectColumns+` FROM registered_devices ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("list registered devices: %w", err)
	}
	defer rows.Close()

	var out []models.RegisteredDevice
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registered device: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list registered devices: %w", err)
	}
	return out, nil
}

func scanDevice(row pgx.Row) (models.RegisteredDevice, error) {
	var (
		d         models.RegisteredDevice
		protocols []string
		level     int16
		key       []byte
	)
	err := row.Scan(
		&d.Device.ID, &d.Device.Name, &d.Device.UserAgent, &d.Device.Platform,
		&protocols, &d.Capabilities.ProtocolVersions, &d.Capabilities.CipherSuites,
		&level, &key, &d.RegisteredAt,
	)
	if err != nil {
		return models.RegisteredDevice{}, err
	}
	for _, name := range protocols {
		if p, ok := models.ParseProtocolKind(name); ok {
			d.Capabilities.Protocols = append(d.Capabilities.Protocols, p)
		}
	}
	d.TrustLevel = models.TrustLevel(level)
	d.PublicKey = key
	return d, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
