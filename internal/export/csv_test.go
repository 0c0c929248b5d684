package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/martincass/UCAMtracker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSVRoundTrip(t *testing.T) {
	rows := [][]string{
		{"plain", "with, comma"},
		{`say "hi"`, "line\nbreak"},
		{"", `""`},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []string{"a", "b"}, rows))

	assert.True(t, strings.HasPrefix(buf.String(), "\"a\",\"b\"\r\n"))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, len(rows)+1)
	assert.Equal(t, []string{"a", "b"}, records[0])
	assert.Equal(t, rows, records[1:])
}

func TestWriteSubmissionsProducesHeaderPlusOneLinePerRecord(t *testing.T) {
	qty := 7.5
	subs := []models.Submission{
		{ID: "s1", Date: "2024-05-01", ClientID: "ACME", ClientName: "Acme, Inc.", WeighingKg: 123.45, Status: models.StatusPending, Notes: `top "grade"`,
			Photos: []models.SubmissionPhoto{{Kind: models.PhotoEntry, URL: "/p/1"}, {Kind: models.PhotoWeighing, URL: "/p/2"}}},
		{ID: "s2", Date: "2024-05-02", ClientID: "ACME", WeighingKg: 10, ProducedQty: &qty, Status: models.StatusApproved, CreatedAt: time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteSubmissions(&buf, subs))

	assert.Equal(t, len(subs)+1, strings.Count(buf.String(), "\r\n"))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, SubmissionColumns, records[0])

	first := records[1]
	assert.Equal(t, "Acme, Inc.", first[3])
	assert.Equal(t, "123.45", first[11])
	assert.Equal(t, `top "grade"`, first[12])
	assert.Equal(t, "/p/1", first[14])
	assert.Equal(t, "/p/2", first[15])
	assert.Equal(t, "", first[9])

	second := records[2]
	assert.Equal(t, "7.5", second[9])
	assert.Equal(t, "approved", second[13])
	assert.Equal(t, "2024-05-02T10:00:00Z", second[16])
}

func TestWriteSubmissionsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSubmissions(&buf, nil))
	assert.Equal(t, 1, strings.Count(buf.String(), "\r\n"))
}

func TestSheetRow(t *testing.T) {
	s := models.Submission{ID: "s1", Date: "2024-05-01", ClientName: "Acme", UserEmail: "ana@acme.com", WeighingKg: 123.45, Status: models.StatusPending}
	assert.Equal(t, []interface{}{"2024-05-01", "Acme", "ana@acme.com", "", 123.45, "", "pending", "s1"}, SheetRow(&s))
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "submissions-2024-05-01.csv", Filename("submissions", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))
}
