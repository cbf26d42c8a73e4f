package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/easyvinted/publisher/internal/interfaces"
	"github.com/easyvinted/publisher/internal/models"
)

// ArticleStorage implements interfaces.ArticleStore for Badger
type ArticleStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewArticleStorage creates a new ArticleStorage instance
func NewArticleStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ArticleStore {
	return &ArticleStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ArticleStorage) SaveArticle(ctx context.Context, article *models.Article) error {
	if article.ID == "" {
		return fmt.Errorf("article ID is required")
	}
	now := time.Now().UTC()
	if article.CreatedAt.IsZero() {
		article.CreatedAt = now
	}
	article.UpdatedAt = now

	if err := s.db.Store().Upsert(article.ID, article); err != nil {
		return fmt.Errorf("failed to save article: %w", err)
	}
	return nil
}

func (s *ArticleStorage) GetArticle(ctx context.Context, id string) (*models.Article, error) {
	var article models.Article
	if err := s.db.Store().Get(id, &article); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrArticleNotFound, id)
		}
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return &article, nil
}

func (s *ArticleStorage) MarkPublished(ctx context.Context, id string, vintedURL string, at time.Time) error {
	return s.update(id, func(a *models.Article) {
		a.MarkPublished(vintedURL, at)
	})
}

func (s *ArticleStorage) MarkFailed(ctx context.Context, id string, message string, revert bool) error {
	return s.update(id, func(a *models.Article) {
		a.MarkFailed(message, revert, time.Now().UTC())
	})
}

func (s *ArticleStorage) update(id string, mutate func(a *models.Article)) error {
	err := s.db.Store().Badger().Update(func(tx *badger.Txn) error {
		var article models.Article
		if err := s.db.Store().TxGet(tx, id, &article); err != nil {
			return err
		}
		mutate(&article)
		return s.db.Store().TxUpdate(tx, id, &article)
	})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("%w: %s", models.ErrArticleNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update article %s: %w", id, err)
	}
	return nil
}
