package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/easyvinted/publisher/internal/common"
	"github.com/easyvinted/publisher/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db          *BadgerDB
	jobs        interfaces.JobQueue
	articles    interfaces.ArticleStore
	credentials interfaces.CredentialStore
	logger      arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:          db,
		jobs:        NewJobQueue(db, logger),
		articles:    NewArticleStorage(db, logger),
		credentials: NewCredentialStorage(db, logger),
		logger:      logger,
	}

	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
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

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
