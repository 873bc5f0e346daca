package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/journal-api/internal/models"
	"github.com/noah-isme/journal-api/pkg/storage"
	"github.com/noah-isme/journal-api/pkg/watermark"
)

type captureRenderer struct {
	sheets []watermark.Sheet
	err    error
}

func (r *captureRenderer) Render(sheet watermark.Sheet) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.sheets = append(r.sheets, sheet)
	return []byte("%PDF-1.3 stub"), nil
}

func TestWatermarkStampStoresSheet(t *testing.T) {
	db := newMemDB()
	db.addUser("author-1", "author@journal.test", "Ari Author", models.RoleAuthor)
	files, err := storage.NewLocalStorage(t.TempDir(), 0)
	require.NoError(t, err)

	svc := NewWatermarkService(watermark.NewStamper("Law Review"), files, &memUsers{db: db}, nil)
	svc.now = func() time.Time { return time.Unix(1767225600, 0) }

	article := &models.Article{ID: "a1", AuthorID: "author-1", Title: "On Precedent"}
	path, err := svc.Stamp(context.Background(), article, watermark.LabelUnderReview)
	require.NoError(t, err)
	assert.Equal(t, "articles/a1/watermark-under-review-1767225600.pdf", path)

	data, err := files.ReadAll(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestWatermarkStampUsesAuthorName(t *testing.T) {
	db := newMemDB()
	db.addUser("author-1", "author@journal.test", "Ari Author", models.RoleAuthor)
	files, err := storage.NewLocalStorage(t.TempDir(), 0)
	require.NoError(t, err)
	renderer := &captureRenderer{}
	svc := NewWatermarkService(renderer, files, &memUsers{db: db}, nil)

	_, err = svc.Stamp(context.Background(), &models.Article{ID: "a1", AuthorID: "author-1", Title: "T"}, watermark.LabelPublished)
	require.NoError(t, err)
	_, err = svc.Stamp(context.Background(), &models.Article{ID: "a2", AuthorID: "ghost", Title: "T"}, watermark.LabelPublished)
	require.NoError(t, err)

	require.Len(t, renderer.sheets, 2)
	assert.Equal(t, "Ari Author", renderer.sheets[0].Author)
	assert.Empty(t, renderer.sheets[1].Author)
	assert.Equal(t, watermark.LabelPublished, renderer.sheets[0].Label)
}

func TestWatermarkStampFailures(t *testing.T) {
	files, err := storage.NewLocalStorage(t.TempDir(), 4)
	require.NoError(t, err)
	article := &models.Article{ID: "a1", Title: "T"}

	svc := NewWatermarkService(&captureRenderer{err: errors.New("bad font")}, files, nil, nil)
	_, err = svc.Stamp(context.Background(), article, watermark.LabelPublished)
	assert.EqualError(t, err, "bad font")

	svc = NewWatermarkService(&captureRenderer{}, files, nil, nil)
	_, err = svc.Stamp(context.Background(), article, watermark.LabelPublished)
	assert.ErrorIs(t, err, storage.ErrTooLarge)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.Stamp(ctx, article, watermark.LabelPublished)
	assert.ErrorIs(t, err, context.Canceled)
}
