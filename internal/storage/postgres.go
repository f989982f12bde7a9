package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"narrative-server/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const getPlayerQuery = `
SELECT doc, version
FROM player_progress
WHERE player_id = $1`

const insertPlayerQuery = `
INSERT INTO player_progress (player_id, doc, version)
VALUES ($1, $2, 1)
ON CONFLICT (player_id) DO NOTHING`

const updatePlayerQuery = `
UPDATE player_progress
SET doc = $2, version = version + 1, updated_at = now()
WHERE player_id = $1 AND version = $3`

// PostgresStore keeps one JSONB document per player with a version column for
// optimistic concurrency.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ ProgressStore = (*PostgresStore)(nil)

// NewPostgresStore creates a Postgres-backed progress store.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger.Named("PgProgressStore")}
}

// RunMigrations applies the embedded schema migrations against databaseURL.
func RunMigrations(databaseURL string, logger *zap.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrationURL(databaseURL))
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info("Progress store migrations applied")
	return nil
}

// migrationURL rewrites the connection scheme to the pgx5 scheme the migrate
// pgx/v5 driver registers. Both spellings of the postgres scheme are accepted.
func migrationURL(databaseURL string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(databaseURL, scheme) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, scheme)
		}
	}
	return databaseURL
}

type playerRow struct {
	Doc     []byte `db:"doc"`
	Version int64  `db:"version"`
}

func (s *PostgresStore) Get(ctx context.Context, playerID string) (*models.Player, int64, error) {
	var row playerRow
	err := pgxscan.Get(ctx, s.pool, &row, getPlayerQuery, playerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, models.ErrProgressNotFound
		}
		s.logger.Error("Failed to get player document", zap.String("playerID", playerID), zap.Error(err))
		return nil, 0, err
	}
	p, err := unmarshalPlayer(row.Doc)
	if err != nil {
		s.logger.Error("Failed to decode player document", zap.String("playerID", playerID), zap.Error(err))
		return nil, 0, err
	}
	return p, row.Version, nil
}

func (s *PostgresStore) Put(ctx context.Context, playerID string, p *models.Player, version int64) error {
	data, err := marshalPlayer(p)
	if err != nil {
		return err
	}

	if version == 0 {
		tag, err := s.pool.Exec(ctx, insertPlayerQuery, playerID, data)
		if err != nil {
			s.logger.Error("Failed to insert player document", zap.String("playerID", playerID), zap.Error(err))
			return err
		}
		if tag.RowsAffected() == 0 {
			return models.ErrVersionConflict
		}
		return nil
	}

	tag, err := s.pool.Exec(ctx, updatePlayerQuery, playerID, data, version)
	if err != nil {
		s.logger.Error("Failed to update player document", zap.String("playerID", playerID), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrVersionConflict
	}
	return nil
}
