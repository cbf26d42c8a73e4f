package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/easyvinted/publisher/internal/common"
	"github.com/easyvinted/publisher/internal/interfaces"
	"github.com/easyvinted/publisher/internal/models"
	"github.com/easyvinted/publisher/internal/services/secrets"
)

// Resolver finds the marketplace account for the worker's user.
// Resolution order: plaintext config → encrypted config → credential store.
type Resolver struct {
	vinted common.VintedConfig
	key    string
	userID string
	store  interfaces.CredentialStore
	logger arbor.ILogger
}

// NewResolver creates a resolver; store may be nil
func NewResolver(config *common.Config, store interfaces.CredentialStore, logger arbor.ILogger) *Resolver {
	return &Resolver{
		vinted: config.Vinted,
		key:    config.Secrets.Key,
		userID: config.Worker.UserID,
		store:  store,
		logger: logger,
	}
}

// Resolve returns the decrypted account or an error wrapping
// ErrMissingCredentials or ErrConfiguration
func (r *Resolver) Resolve(ctx context.Context) (*models.Account, error) {
	if r.vinted.Email != "" && r.vinted.Password != "" {
		r.logger.Debug().Str("source", "config").Msg("Using marketplace credentials from configuration")
		return &models.Account{UserID: r.userID, Email: r.vinted.Email, Password: r.vinted.Password}, nil
	}

	if r.vinted.Email != "" && r.vinted.EncryptedPassword != "" {
		password, err := r.decrypt(r.vinted.EncryptedPassword)
		if err != nil {
			return nil, err
		}
		r.logger.Debug().Str("source", "config_encrypted").Msg("Using encrypted marketplace credentials from configuration")
		return &models.Account{UserID: r.userID, Email: r.vinted.Email, Password: password}, nil
	}

	if r.store == nil {
		return nil, fmt.Errorf("%w: set vinted.email and vinted.password", models.ErrMissingCredentials)
	}

	creds, err := r.store.GetCredentials(ctx, r.userID)
	if err != nil {
		if errors.Is(err, models.ErrMissingCredentials) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load credentials for user %s: %w", r.userID, err)
	}
	if creds.Email == "" || creds.EncryptedPassword == "" {
		return nil, fmt.Errorf("%w: stored record for user %s is incomplete", models.ErrMissingCredentials, r.userID)
	}

	password, err := r.decrypt(creds.EncryptedPassword)
	if err != nil {
		return nil, err
	}

	r.logger.Debug().
		Str("source", "store").
		Str("user_id", r.userID).
		Msg("Using stored marketplace credentials")

	return &models.Account{UserID: r.userID, Email: creds.Email, Password: password}, nil
}

func (r *Resolver) decrypt(sealed string) (string, error) {
	if r.key == "" {
		return "", fmt.Errorf("%w: secrets.key is required to decrypt the marketplace password", models.ErrConfiguration)
	}
	box, err := secrets.NewBox(r.key)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrConfiguration, err)
	}
	password, err := box.Decrypt(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrConfiguration, err)
	}
	return password, nil
}
