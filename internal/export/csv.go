package export

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/martincass/UCAMtracker/internal/models"
)

const ContentTypeCSV = "text/csv; charset=utf-8"

// SubmissionColumns are the exported field names, written verbatim as the header row.
var SubmissionColumns = []string{
	"id",
	"date",
	"client_id",
	"client_name",
	"user_email",
	"part_id",
	"plant",
	"shift",
	"product",
	"produced_qty",
	"scrap_qty",
	"weighing_kg",
	"notes",
	"status",
	"photo_entry",
	"photo_weighing",
	"created_at",
}

// WriteCSV writes a header row and one line per row. Every cell is quoted and
// embedded quotes are doubled; lines end in CRLF.
func WriteCSV(w io.Writer, header []string, rows [][]string) error {
	bw := bufio.NewWriter(w)
	if err := writeLine(bw, header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writeLine(bw, row); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeLine(w *bufio.Writer, cells []string) error {
	for i, cell := range cells {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(`"` + strings.ReplaceAll(cell, `"`, `""`) + `"`); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\r\n")
	return err
}

// WriteSubmissions exports submissions with SubmissionColumns.
func WriteSubmissions(w io.Writer, submissions []models.Submission) error {
	rows := make([][]string, 0, len(submissions))
	for i := range submissions {
		rows = append(rows, SubmissionRow(&submissions[i]))
	}
	return WriteCSV(w, SubmissionColumns, rows)
}

// SubmissionRow renders a submission in SubmissionColumns order. Missing values are empty.
func SubmissionRow(s *models.Submission) []string {
	return []string{
		s.ID,
		s.Date,
		s.ClientID,
		s.ClientName,
		s.UserEmail,
		s.PartID,
		s.Plant,
		string(s.Shift),
		s.Product,
		optionalFloat(s.ProducedQty),
		optionalFloat(s.ScrapQty),
		formatFloat(s.WeighingKg),
		s.Notes,
		string(s.Status),
		s.PhotoURL(models.PhotoEntry),
		s.PhotoURL(models.PhotoWeighing),
		s.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// SheetRow renders a submission as a spreadsheet row:
// date, client, user, entry photo, weighing kg, weighing photo, status, report id.
func SheetRow(s *models.Submission) []interface{} {
	return []interface{}{
		s.Date,
		s.ClientName,
		s.UserEmail,
		s.PhotoURL(models.PhotoEntry),
		s.WeighingKg,
		s.PhotoURL(models.PhotoWeighing),
		string(s.Status),
		s.ID,
	}
}

func optionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Filename returns an attachment name such as "submissions-2024-05-01.csv".
func Filename(prefix string, now time.Time) string {
	return prefix + "-" + now.Format("2006-01-02") + ".csv"
}
