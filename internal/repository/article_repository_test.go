package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"estuary/internal/feederr"
	"estuary/internal/model"
	"estuary/internal/repository"
	"estuary/internal/repository/testutil"
)

func TestArticleRepository_InsertIgnoreDuplicate(t *testing.T) {
	conn := testutil.NewTestDB(t)
	repo := repository.NewArticleRepository(conn)
	feedID := testutil.SeedFeed(t, conn, model.Feed{URL: "https://example.com/feed", Title: "F"})

	first, inserted, err := repo.InsertIgnore(context.Background(), model.Article{FeedID: feedID, GUID: "g1", Title: "One"})
	require.NoError(t, err)
	require.True(t, inserted)
	require.NotZero(t, first.ID)

	_, inserted, err = repo.InsertIgnore(context.Background(), model.Article{FeedID: feedID, GUID: "g1", Title: "One Again"})
	require.NoError(t, err)
	require.False(t, inserted)

	count, err := repo.CountByFeed(context.Background(), feedID)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestArticleRepository_InsertBatchMixed(t *testing.T) {
	conn := testutil.NewTestDB(t)
	repo := repository.NewArticleRepository(conn)
	feedID := testutil.SeedFeed(t, conn, model.Feed{URL: "https://example.com/feed", Title: "F"})

	_, _, err := repo.InsertIgnore(context.Background(), model.Article{FeedID: feedID, GUID: "g1", Title: "One"})
	require.NoError(t, err)

	inserted, err := repo.InsertBatch(context.Background(), []model.Article{
		{FeedID: feedID, GUID: "g1", Title: "One"},
		{FeedID: feedID, GUID: "g2", Title: "Two"},
		{FeedID: feedID, GUID: "g3", Title: "Three"},
	})
	require.NoError(t, err)
	require.Len(t, inserted, 2)

	count, err := repo.CountByFeed(context.Background(), feedID)
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestArticleRepository_ListByFeedOrdersByPublished(t *testing.T) {
	conn := testutil.NewTestDB(t)
	repo := repository.NewArticleRepository(conn)
	feedID := testutil.SeedFeed(t, conn, model.Feed{URL: "https://example.com/feed", Title: "F"})

	older := time.Now().UTC().Add(-48 * time.Hour)
	newer := time.Now().UTC().Add(-1 * time.Hour)
	_, err := repo.InsertBatch(context.Background(), []model.Article{
		{FeedID: feedID, GUID: "old", Title: "Old", PublishedAt: &older},
		{FeedID: feedID, GUID: "new", Title: "New", PublishedAt: &newer},
	})
	require.NoError(t, err)

	articles, err := repo.ListByFeed(context.Background(), feedID, 10)
	require.NoError(t, err)
	require.Len(t, articles, 2)
	require.Equal(t, "new", articles[0].GUID)
}

func TestArticleRepository_UpdateReadableContent(t *testing.T) {
	conn := testutil.NewTestDB(t)
	repo := repository.NewArticleRepository(conn)
	feedID := testutil.SeedFeed(t, conn, model.Feed{URL: "https://example.com/feed", Title: "F"})
	id := testutil.SeedArticle(t, conn, model.Article{FeedID: feedID, GUID: "g1", Title: "One"})

	require.NoError(t, repo.UpdateReadableContent(context.Background(), id, "<p>readable</p>"))

	article, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, article.ReadableContent)
	require.Equal(t, "<p>readable</p>", *article.ReadableContent)
}

func TestArticleRepository_GetByIDMissing(t *testing.T) {
	conn := testutil.NewTestDB(t)
	repo := repository.NewArticleRepository(conn)

	_, err := repo.GetByID(context.Background(), 999)
	require.Equal(t, feederr.KindNotFound, feederr.KindOf(err))
}

func TestArticleRepository_DeleteByFeed(t *testing.T) {
	conn := testutil.NewTestDB(t)
	repo := repository.NewArticleRepository(conn)
	feedID := testutil.SeedFeed(t, conn, model.Feed{URL: "https://example.com/feed", Title: "F"})
	testutil.SeedArticle(t, conn, model.Article{FeedID: feedID, GUID: "g1", Title: "One"})
	testutil.SeedArticle(t, conn, model.Article{FeedID: feedID, GUID: "g2", Title: "Two"})

	deleted, err := repo.DeleteByFeed(context.Background(), feedID)
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)
}
