package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/ternarybob/arbor"

	"github.com/easyvinted/publisher/internal/interfaces"
	"github.com/easyvinted/publisher/internal/models"
)

const articlesTable = "articles"

var articleColumns = []string{
	"id", "user_id", "title", "description", "brand", "size", "condition",
	"category_main", "category_sub", "category_item", "price", "color", "material",
	"photos", "status", "vinted_url", "published_at", "error_message", "created_at", "updated_at",
}

// ArticleStorage implements interfaces.ArticleStore on Postgres
type ArticleStorage struct {
	db     *PostgresDB
	logger arbor.ILogger
}

// NewArticleStorage creates a new ArticleStorage instance
func NewArticleStorage(db *PostgresDB, logger arbor.ILogger) interfaces.ArticleStore {
	return &ArticleStorage{db: db, logger: logger}
}

func upsertArticleQuery(a *models.Article) sq.InsertBuilder {
	photos := a.Photos
	if photos == nil {
		photos = []string{}
	}
	return psql.Insert(articlesTable).
		Columns(articleColumns...).
		Values(
			a.ID, a.UserID, a.Title, a.Description, a.Brand, a.Size, string(a.Condition),
			a.Category.Main, a.Category.Sub, a.Category.Item, a.Price, a.Color, a.Material,
			photos, string(a.Status), a.VintedURL, a.PublishedAt, a.ErrorMessage, a.CreatedAt, a.UpdatedAt,
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
	user_id = EXCLUDED.user_id, title = EXCLUDED.title, description = EXCLUDED.description,
	brand = EXCLUDED.brand, size = EXCLUDED.size, condition = EXCLUDED.condition,
	category_main = EXCLUDED.category_main, category_sub = EXCLUDED.category_sub,
	category_item = EXCLUDED.category_item, price = EXCLUDED.price, color = EXCLUDED.color,
	material = EXCLUDED.material, photos = EXCLUDED.photos, status = EXCLUDED.status,
	vinted_url = EXCLUDED.vinted_url, published_at = EXCLUDED.published_at,
	error_message = EXCLUDED.error_message, updated_at = EXCLUDED.updated_at`)
}

func markPublishedQuery(id, vintedURL string, at time.Time) sq.UpdateBuilder {
	return psql.Update(articlesTable).
		Set("status", string(models.ArticleStatusPublished)).
		Set("vinted_url", vintedURL).
		Set("published_at", at).
		Set("error_message", nil).
		Set("updated_at", at).
		Where(sq.Eq{"id": id})
}

// markFailedQuery mirrors Article.MarkFailed: the URL survives only on published or sold rows
func markFailedQuery(id, message string, revert bool, at time.Time) sq.UpdateBuilder {
	update := psql.Update(articlesTable).
		Set("error_message", message).
		Set("updated_at", at).
		Where(sq.Eq{"id": id})
	if revert {
		return update.
			Set("status", string(models.ArticleStatusDraft)).
			Set("vinted_url", nil).
			Set("published_at", nil)
	}
	return update.
		Set("vinted_url", sq.Expr("CASE WHEN status IN ('published', 'sold') THEN vinted_url END")).
		Set("published_at", sq.Expr("CASE WHEN status IN ('published', 'sold') THEN published_at END"))
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

	sql, args, err := upsertArticleQuery(article).ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to save article: %w", err)
	}
	return nil
}

func (s *ArticleStorage) GetArticle(ctx context.Context, id string) (*models.Article, error) {
	sql, args, err := psql.Select(articleColumns...).From(articlesTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}

	var (
		a                 models.Article
		condition, status string
	)
	err = s.db.pool.QueryRow(ctx, sql, args...).Scan(
		&a.ID, &a.UserID, &a.Title, &a.Description, &a.Brand, &a.Size, &condition,
		&a.Category.Main, &a.Category.Sub, &a.Category.Item, &a.Price, &a.Color, &a.Material,
		&a.Photos, &status, &a.VintedURL, &a.PublishedAt, &a.ErrorMessage, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrArticleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	a.Condition = models.Condition(condition)
	a.Status = models.ArticleStatus(status)
	return &a, nil
}

func (s *ArticleStorage) MarkPublished(ctx context.Context, id string, vintedURL string, at time.Time) error {
	return s.exec(ctx, id, markPublishedQuery(id, vintedURL, at))
}

func (s *ArticleStorage) MarkFailed(ctx context.Context, id string, message string, revert bool) error {
	return s.exec(ctx, id, markFailedQuery(id, message, revert, time.Now().UTC()))
}

func (s *ArticleStorage) exec(ctx context.Context, id string, update sq.UpdateBuilder) error {
	sql, args, err := update.ToSql()
	if err != nil {
		return err
	}
	tag, err := s.db.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to update article %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", models.ErrArticleNotFound, id)
	}
	return nil
}
