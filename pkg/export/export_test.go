package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() Dataset {
	return Dataset{
		Title:   "Review queue",
		Headers: []string{"id", "title", "state"},
		Rows: []map[string]string{
			{"id": "a1", "title": "On Contracts, Again", "state": "PENDING_REVIEW"},
			{"id": "a2", "title": "Torts", "state": "PENDING_REVIEW"},
		},
	}
}

func TestRenderCSV(t *testing.T) {
	out, err := Render(FormatCSV, sample())
	require.NoError(t, err)
	assert.Equal(t, "id,title,state\na1,\"On Contracts, Again\",PENDING_REVIEW\na2,Torts,PENDING_REVIEW\n", string(out))
}

func TestRenderPDF(t *testing.T) {
	out, err := Render(FormatPDF, sample())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestRenderRejectsBadInput(t *testing.T) {
	_, err := Render(FormatCSV, Dataset{})
	assert.Error(t, err)

	_, err = Render(Format("xlsx"), sample())
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
}

func TestRenderCSVNeutralizesFormulas(t *testing.T) {
	data := Dataset{
		Headers: []string{"title"},
		Rows:    []map[string]string{{"title": "=HYPERLINK(\"x\")"}, {"title": "-1 Damages"}, {"title": "Plain"}},
	}
	out, err := Render(FormatCSV, data)
	require.NoError(t, err)
	assert.Equal(t, "title\n\"'=HYPERLINK(\"\"x\"\")\"\n'-1 Damages\nPlain\n", string(out))
}
