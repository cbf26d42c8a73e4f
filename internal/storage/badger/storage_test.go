package badger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/easyvinted/publisher/internal/common"
	"github.com/easyvinted/publisher/internal/interfaces"
	"github.com/easyvinted/publisher/internal/models"
)

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()
	manager, err := NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func enqueue(t *testing.T, q interfaces.JobQueue, articleID string, runAt time.Time) *models.PublicationJob {
	t.Helper()
	job := models.NewPublicationJob(articleID, runAt)
	require.NoError(t, q.Enqueue(context.Background(), job))
	return job
}

func TestListDue_OrderAndLimit(t *testing.T) {
	q := newTestManager(t).JobQueue()
	now := time.Now().UTC()

	later := enqueue(t, q, "c", now.Add(time.Hour))
	second := enqueue(t, q, "b", now.Add(-time.Minute))
	first := enqueue(t, q, "a", now.Add(-time.Hour))

	due, err := q.ListDue(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, first.ID, due[0].ID)
	assert.Equal(t, second.ID, due[1].ID)

	due, err = q.ListDue(context.Background(), now, 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, first.ID, due[0].ID)

	due, err = q.ListDue(context.Background(), now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, due, 3)
	assert.Equal(t, later.ID, due[2].ID)
}

func TestClaim_IsExclusive(t *testing.T) {
	q := newTestManager(t).JobQueue()
	job := enqueue(t, q, "a", time.Time{})

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		claimed   int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Claim(context.Background(), job.ID, "w")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, models.ErrAlreadyClaimed):
				claimed++
			default:
				t.Errorf("unexpected claim error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, claimed)

	stored, err := q.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, stored.Status)

	due, err := q.ListDue(context.Background(), time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due, "running jobs are never due")
}

func TestJobTransitions(t *testing.T) {
	q := newTestManager(t).JobQueue()
	ctx := context.Background()
	job := enqueue(t, q, "a", time.Time{})

	assert.ErrorIs(t, q.Complete(ctx, job.ID, "https://www.vinted.fr/items/1"), models.ErrInvalidTransition)

	_, err := q.Claim(ctx, job.ID, "w")
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, job.ID, "https://www.vinted.fr/items/1"))
	assert.ErrorIs(t, q.Fail(ctx, job.ID, "late"), models.ErrInvalidTransition)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSuccess, stored.Status)
	assert.Equal(t, "https://www.vinted.fr/items/1", *stored.VintedURL)

	_, err = q.Claim(ctx, "missing", "w")
	assert.ErrorIs(t, err, models.ErrJobNotFound)
	_, err = q.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrJobNotFound)
}

func TestListJobs_Filters(t *testing.T) {
	q := newTestManager(t).JobQueue()
	ctx := context.Background()

	a := enqueue(t, q, "a", time.Time{})
	enqueue(t, q, "b", time.Time{})
	_, err := q.Claim(ctx, a.ID, "w")
	require.NoError(t, err)

	running, err := q.ListJobs(ctx, &interfaces.JobListOptions{Status: models.JobStatusRunning})
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, a.ID, running[0].ID)

	byArticle, err := q.ListJobs(ctx, &interfaces.JobListOptions{ArticleID: "b"})
	require.NoError(t, err)
	require.Len(t, byArticle, 1)

	all, err := q.ListJobs(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestArticleStorage(t *testing.T) {
	store := newTestManager(t).ArticleStore()
	ctx := context.Background()

	article := &models.Article{ID: "a1", Title: "Jean", Price: 10, Photos: []string{"https://x/1.jpg"}, Status: models.ArticleStatusScheduled}
	require.NoError(t, store.SaveArticle(ctx, article))

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.MarkPublished(ctx, "a1", "https://www.vinted.fr/items/7", at))

	got, err := store.GetArticle(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.ArticleStatusPublished, got.Status)
	assert.Equal(t, "https://www.vinted.fr/items/7", *got.VintedURL)
	assert.True(t, at.Equal(*got.PublishedAt))

	require.NoError(t, store.SaveArticle(ctx, &models.Article{ID: "a2", Title: "Pull", Price: 5, Status: models.ArticleStatusScheduled}))
	require.NoError(t, store.MarkFailed(ctx, "a2", "photo unreachable", true))
	got, err = store.GetArticle(ctx, "a2")
	require.NoError(t, err)
	assert.Equal(t, models.ArticleStatusDraft, got.Status)
	assert.Equal(t, "photo unreachable", *got.ErrorMessage)
	assert.Nil(t, got.VintedURL)

	_, err = store.GetArticle(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrArticleNotFound)
	assert.ErrorIs(t, store.MarkFailed(ctx, "missing", "x", true), models.ErrArticleNotFound)
}

func TestCredentialStorage(t *testing.T) {
	store := newTestManager(t).CredentialStore()
	ctx := context.Background()

	_, err := store.GetCredentials(ctx, "u1")
	assert.ErrorIs(t, err, models.ErrMissingCredentials)

	session := &models.Session{Cookies: []models.Cookie{{Name: "s", Value: "v"}}}
	require.NoError(t, store.SaveSession(ctx, "u1", session))

	require.NoError(t, store.SaveCredentials(ctx, &models.Credentials{UserID: "u2", Email: "e@example.com", EncryptedPassword: "sealed"}))
	require.NoError(t, store.SaveSession(ctx, "u2", session))

	got, err := store.GetCredentials(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "e@example.com", got.Email)
	assert.Equal(t, "sealed", got.EncryptedPassword)
	require.NotNil(t, got.Session)
	assert.Equal(t, "s", got.Session.Cookies[0].Name)

	onlySession, err := store.GetCredentials(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, onlySession.Email)
	assert.NotNil(t, onlySession.Session)
}
