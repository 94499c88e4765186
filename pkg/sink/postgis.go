package sink

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/1F47E/imagery-dater/pkg/models"
)

const insertBatchSize = 10000

// PostGISConfig holds the connection settings of the capture database.
type PostGISConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	SSLMode        string
	MaxConnections int
}

// DSN returns the lib/pq connection string for the config
func (c PostGISConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// PostGIS stores captures in a PostGIS table
type PostGIS struct {
	db *sql.DB
}

// NewPostGIS opens and pings the capture database
func NewPostGIS(ctx context.Context, cfg PostGISConfig) (*PostGIS, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostGIS{db: db}, nil
}

// InitSchema creates the captures table and its spatial index if missing
func (p *PostGIS) InitSchema(ctx context.Context) error {
	queries := []string{
		`CREATE EXTENSION IF NOT EXISTS postgis;`,

		`CREATE TABLE IF NOT EXISTS captures (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL,
			captured_at TIMESTAMPTZ NOT NULL,
			location GEOMETRY(POINT, 4326) NOT NULL
		);`,

		`CREATE INDEX IF NOT EXISTS idx_captures_location ON captures USING GIST(location);`,
		`CREATE INDEX IF NOT EXISTS idx_captures_captured_at ON captures (captured_at);`,
	}

	for _, query := range queries {
		if _, err := p.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}

	return nil
}

// BulkInsert inserts the captures of one batch run, committing every insertBatchSize rows
func (p *PostGIS) BulkInsert(ctx context.Context, runID string, captures []models.Capture) error {
	stmt, err := p.db.PrepareContext(ctx, `
		INSERT INTO captures (run_id, captured_at, location)
		VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3, $4), 4326))
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	txStmt := tx.StmtContext(ctx, stmt)

	for i, c := range captures {
		if _, err := txStmt.ExecContext(ctx, runID, c.Timestamp.UTC(), c.Location.Lng, c.Location.Lat); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert capture at %s: %w", c.Location, err)
		}

		// Commit batch
		if (i+1)%insertBatchSize == 0 {
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("failed to commit batch: %w", err)
			}

			tx, err = p.db.BeginTx(ctx, nil)
			if err != nil {
				return fmt.Errorf("failed to begin new transaction: %w", err)
			}
			txStmt = tx.StmtContext(ctx, stmt)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit final batch: %w", err)
	}

	return nil
}

// QueryBox returns the stored captures inside the bounding box, oldest first
func (p *PostGIS) QueryBox(ctx context.Context, box models.BoundingBox) ([]models.Capture, error) {
	query := `
		SELECT captured_at, ST_Y(location) AS lat, ST_X(location) AS lng
		FROM captures
		WHERE location && ST_MakeEnvelope($1, $2, $3, $4, 4326)
		ORDER BY captured_at
	`

	rows, err := p.db.QueryContext(ctx, query,
		box.BottomLeft.Lng, box.BottomLeft.Lat,
		box.TopRight.Lng, box.TopRight.Lat)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var results []models.Capture
	for rows.Next() {
		var c models.Capture
		if err := rows.Scan(&c.Timestamp, &c.Location.Lat, &c.Location.Lng); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		c.Timestamp = c.Timestamp.UTC()
		results = append(results, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return results, nil
}

// Count returns the number of stored captures
func (p *PostGIS) Count(ctx context.Context) (int64, error) {
	var count int64
	err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM captures").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count captures: %w", err)
	}
	return count, nil
}

// Close closes the database connection
func (p *PostGIS) Close() error {
	return p.db.Close()
}
