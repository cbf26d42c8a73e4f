package postgres

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/easyvinted/publisher/internal/common"
	"github.com/easyvinted/publisher/internal/interfaces"
)

// Manager implements the StorageManager interface for Postgres
type Manager struct {
	db          *PostgresDB
	jobs        interfaces.JobQueue
	articles    interfaces.ArticleStore
	credentials interfaces.CredentialStore
	logger      arbor.ILogger
}

// NewManager connects, applies the schema and wires the stores
func NewManager(ctx context.Context, logger arbor.ILogger, config *common.PostgresConfig) (interfaces.StorageManager, error) {
	db, err := NewPostgresDB(ctx, logger, config)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info().Msg("Postgres storage manager initialized")

	return &Manager{
		db:          db,
		jobs:        NewJobQueue(db, logger),
		articles:    NewArticleStorage(db, logger),
		credentials: NewCredentialStorage(db, logger),
		logger:      logger,
	}, nil
}

// JobQueue returns the publication job queue
func (m *Manager) JobQueue() interfaces.JobQueue {
	return m.jobs
}

// ArticleStore returns the article storage
func (m *Manager) ArticleStore() interfaces.ArticleStore {
	return m.articles
}

// CredentialStore returns the marketplace credential storage
func (m *Manager) CredentialStore() interfaces.CredentialStore {
	return m.credentials
}

// Close closes the pool
func (m *Manager) Close() error {
	return m.db.Close()
}
