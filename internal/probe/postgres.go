package probe

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/FairForge/migwatch/internal/stats"
)

// Record states the migration moves documents through.
const (
	StatusReady      = "ready"
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusError      = "error"
)

// upgradedVersion is the encryption version the migration is moving records
// to. Rows with a NULL or lower version still carry the old scheme.
const upgradedVersion = 2

// PostgresConfig configures a PostgresProber.
type PostgresConfig struct {
	// Endpoint is host or host:port of the store.
	Endpoint     string
	Database     string
	User         string
	Password     string
	Table        string
	SSLMode      string
	QueryTimeout time.Duration
}

// ApplyDefaults fills in default values.
func (c *PostgresConfig) ApplyDefaults() {
	if c.Table == "" {
		c.Table = "archives"
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 5 * time.Second
	}
}

// DSN assembles the lib/pq connection string.
func (c *PostgresConfig) DSN() string {
	host := c.Endpoint
	port := "5432"
	if h, p, err := net.SplitHostPort(c.Endpoint); err == nil {
		host, port = h, p
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, c.User, c.Password, c.Database, c.SSLMode)
}

// PostgresProber reads migration counters from a PostgreSQL archives table.
// The pool is shared, but each Counts call checks out a single connection
// and returns it on every exit path.
type PostgresProber struct {
	db      *sql.DB
	table   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewPostgresProber opens a connection pool against the store.
func NewPostgresProber(cfg PostgresConfig, logger *zap.Logger) (*PostgresProber, error) {
	cfg.ApplyDefaults()

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("probe: open store: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresProber{
		db:      db,
		table:   pq.QuoteIdentifier(cfg.Table),
		timeout: cfg.QueryTimeout,
		logger:  logger,
	}, nil
}

// Close releases the underlying pool.
func (p *PostgresProber) Close() error {
	return p.db.Close()
}

// Ping verifies store connectivity.
func (p *PostgresProber) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return Classify(err)
	}
	return nil
}

// activeFilter scopes every count to records that are neither soft-deleted
// nor trashed.
const activeFilter = "deleted_at IS NULL AND trashed_at IS NULL"

// Counts issues the five aggregate queries and returns the raw counters.
// The five reads are independent scalar queries, not a transaction; the
// counters are only atomic-enough for trend estimation.
func (p *PostgresProber) Counts(ctx context.Context) (stats.Counts, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.db.Conn(ctx)
	if err != nil {
		return stats.Counts{}, Classify(err)
	}
	defer func() { _ = conn.Close() }()

	var c stats.Counts

	queries := []struct {
		name  string
		where string
		args  []interface{}
		dst   *int64
	}{
		{
			name:  "v1_remaining",
			where: "status = $1 AND (encryption_version IS NULL OR encryption_version < $2)",
			args:  []interface{}{StatusReady, upgradedVersion},
			dst:   &c.V1Remaining,
		},
		{
			name:  "v2_done",
			where: "status = $1 AND encryption_version >= $2",
			args:  []interface{}{StatusReady, upgradedVersion},
			dst:   &c.V2Done,
		},
		{name: "queued", where: "status = $1", args: []interface{}{StatusQueued}, dst: &c.Queued},
		{name: "processing", where: "status = $1", args: []interface{}{StatusProcessing}, dst: &c.Processing},
		{name: "errors", where: "status = $1", args: []interface{}{StatusError}, dst: &c.Errors},
	}

	for _, q := range queries {
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s AND %s",
			p.table, activeFilter, q.where)
		if err := conn.QueryRowContext(ctx, query, q.args...).Scan(q.dst); err != nil {
			p.logger.Debug("count query failed",
				zap.String("counter", q.name),
				zap.Error(err))
			return stats.Counts{}, Classify(err)
		}
	}

	return c, nil
}
