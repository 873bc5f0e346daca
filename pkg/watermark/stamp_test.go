package watermark

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStamperRender(t *testing.T) {
	s := NewStamper("Indian Law Review")
	s.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }

	out, err := s.Render(Sheet{ArticleID: "a1", Title: "On Contracts", Author: "A. Author"})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))

	published, err := s.Render(Sheet{ArticleID: "a1", Title: "On Contracts", Label: LabelPublished})
	require.NoError(t, err)
	assert.NotEqual(t, out, published)
}

func TestStamperRequiresMetadata(t *testing.T) {
	_, err := NewStamper("").Render(Sheet{ArticleID: "a1"})
	assert.Error(t, err)
}
