package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/easyvinted/publisher/internal/common"
	"github.com/easyvinted/publisher/internal/models"
)

func TestNewBadgerDB_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	logger := arbor.NewLogger()
	ctx := context.Background()

	first, err := NewManager(logger, &common.BadgerConfig{Path: dir})
	require.NoError(t, err)
	require.NoError(t, first.ArticleStore().SaveArticle(ctx, &models.Article{
		ID: "a1", Title: "Jean", Price: 10, Photos: []string{"https://x/1.jpg"},
	}))
	require.NoError(t, first.Close())

	second, err := NewManager(logger, &common.BadgerConfig{Path: dir})
	require.NoError(t, err)
	got, err := second.ArticleStore().GetArticle(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Jean", got.Title)
	require.NoError(t, second.Close())

	// reset wipes what the previous run stored
	third, err := NewManager(logger, &common.BadgerConfig{Path: dir, ResetOnStartup: true})
	require.NoError(t, err)
	defer third.Close()
	_, err = third.ArticleStore().GetArticle(ctx, "a1")
	assert.ErrorIs(t, err, models.ErrArticleNotFound)
}

func TestBadgerDB_CloseTwice(t *testing.T) {
	db, err := NewBadgerDB(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())
}

func TestNewBadgerDB_EmptyPath(t *testing.T) {
	_, err := NewBadgerDB(arbor.NewLogger(), &common.BadgerConfig{})
	assert.Error(t, err)
}

func TestBadgerLogger_TrimsNewline(t *testing.T) {
	assert.Equal(t, "value log 3 rewritten", trimLine("value log %d rewritten\n", []interface{}{3}))
}
