package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maltedev/dealhound/internal/database"
	"github.com/maltedev/dealhound/internal/models"
)

// PostgresSink writes readings to the price_readings table through a pgx pool.
type PostgresSink struct {
	db     *database.DB
	repo   *database.ReadingRepository
	logger *slog.Logger
}

func NewPostgresSink(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresSink, error) {
	db, err := database.New(ctx, database.DefaultConfig(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	repo := database.NewReadingRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("postgres sink ready")

	return &PostgresSink{db: db, repo: repo, logger: logger}, nil
}

func (s *PostgresSink) Append(ctx context.Context, reading models.ProductReading) error {
	return s.repo.Insert(ctx, reading)
}

func (s *PostgresSink) Close() error {
	s.db.Close()
	return nil
}
