package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/ternarybob/arbor"

	"github.com/easyvinted/publisher/internal/interfaces"
	"github.com/easyvinted/publisher/internal/models"
)

const credentialsTable = "vinted_credentials"

// CredentialStorage implements interfaces.CredentialStore on Postgres
type CredentialStorage struct {
	db     *PostgresDB
	logger arbor.ILogger
}

// NewCredentialStorage creates a new CredentialStorage instance
func NewCredentialStorage(db *PostgresDB, logger arbor.ILogger) interfaces.CredentialStore {
	return &CredentialStorage{db: db, logger: logger}
}

// encodeSession renders the session for a JSONB column; nil stays NULL
func encodeSession(session *models.Session) (*string, error) {
	if session == nil {
		return nil, nil
	}
	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	s := string(data)
	return &s, nil
}

func upsertCredentialsQuery(creds *models.Credentials, session *string) sq.InsertBuilder {
	return psql.Insert(credentialsTable).
		Columns("user_id", "email", "encrypted_password", "session", "updated_at").
		Values(creds.UserID, creds.Email, creds.EncryptedPassword, sq.Expr("?::jsonb", session), creds.UpdatedAt).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
	email = EXCLUDED.email, encrypted_password = EXCLUDED.encrypted_password,
	session = COALESCE(EXCLUDED.session, vinted_credentials.session), updated_at = EXCLUDED.updated_at`)
}

func upsertSessionQuery(userID string, session string, at time.Time) sq.InsertBuilder {
	return psql.Insert(credentialsTable).
		Columns("user_id", "session", "updated_at").
		Values(userID, sq.Expr("?::jsonb", session), at).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET session = EXCLUDED.session, updated_at = EXCLUDED.updated_at")
}

func (s *CredentialStorage) SaveCredentials(ctx context.Context, creds *models.Credentials) error {
	if creds.UserID == "" {
		return fmt.Errorf("user ID is required")
	}
	creds.UpdatedAt = time.Now().UTC()

	session, err := encodeSession(creds.Session)
	if err != nil {
		return err
	}
	sql, args, err := upsertCredentialsQuery(creds, session).ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

func (s *CredentialStorage) GetCredentials(ctx context.Context, userID string) (*models.Credentials, error) {
	sql, args, err := psql.
		Select("user_id", "email", "encrypted_password", "session::text", "updated_at").
		From(credentialsTable).
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var (
		creds   models.Credentials
		session *string
	)
	err = s.db.pool.QueryRow(ctx, sql, args...).Scan(&creds.UserID, &creds.Email, &creds.EncryptedPassword, &session, &creds.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: no record for user %s", models.ErrMissingCredentials, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}

	if session != nil {
		var decoded models.Session
		if err := json.Unmarshal([]byte(*session), &decoded); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("Ignoring undecodable stored session")
		} else {
			creds.Session = &decoded
		}
	}
	return &creds, nil
}

func (s *CredentialStorage) SaveSession(ctx context.Context, userID string, session *models.Session) error {
	encoded, err := encodeSession(session)
	if err != nil {
		return err
	}
	if encoded == nil {
		return fmt.Errorf("session is required")
	}
	sql, args, err := upsertSessionQuery(userID, *encoded, time.Now().UTC()).ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}
