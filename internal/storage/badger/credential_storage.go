package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/easyvinted/publisher/internal/interfaces"
	"github.com/easyvinted/publisher/internal/models"
)

// CredentialStorage implements interfaces.CredentialStore for Badger.
// Records are keyed by user id.
type CredentialStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCredentialStorage creates a new CredentialStorage instance
func NewCredentialStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CredentialStore {
	return &CredentialStorage{
		db:     db,
		logger: logger,
	}
}

func (s *CredentialStorage) SaveCredentials(ctx context.Context, creds *models.Credentials) error {
	if creds.UserID == "" {
		return fmt.Errorf("user ID is required")
	}
	creds.UpdatedAt = time.Now().UTC()
	if err := s.db.Store().Upsert(creds.UserID, creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

func (s *CredentialStorage) GetCredentials(ctx context.Context, userID string) (*models.Credentials, error) {
	var creds models.Credentials
	if err := s.db.Store().Get(userID, &creds); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: no record for user %s", models.ErrMissingCredentials, userID)
		}
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}
	return &creds, nil
}

// SaveSession stores the session on the user's record, creating a
// session-only record when none exists yet
func (s *CredentialStorage) SaveSession(ctx context.Context, userID string, session *models.Session) error {
	var creds models.Credentials
	if err := s.db.Store().Get(userID, &creds); err != nil {
		if !errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("failed to load credentials: %w", err)
		}
		creds = models.Credentials{UserID: userID}
	}
	creds.Session = session
	return s.SaveCredentials(ctx, &creds)
}
