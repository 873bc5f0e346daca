package watermark

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

const (
	LabelUnderReview = "UNDER REVIEW"
	LabelPublished   = "PUBLISHED"
)

// Sheet describes the stamp page issued for a manuscript.
type Sheet struct {
	Journal   string
	ArticleID string
	Title     string
	Author    string
	Label     string
	IssuedAt  time.Time
}

// Stamper renders watermark sheets as PDF documents.
type Stamper struct {
	journal string
	now     func() time.Time
}

func NewStamper(journal string) *Stamper {
	if journal == "" {
		journal = "Legal Journal"
	}
	return &Stamper{journal: journal, now: time.Now}
}

// Render produces an A4 page with the journal header, article metadata and a
// diagonal label across the page.
func (s *Stamper) Render(sheet Sheet) ([]byte, error) {
	if sheet.ArticleID == "" || sheet.Title == "" {
		return nil, fmt.Errorf("watermark requires article id and title")
	}
	if sheet.Label == "" {
		sheet.Label = LabelUnderReview
	}
	if sheet.Journal == "" {
		sheet.Journal = s.journal
	}
	if sheet.IssuedAt.IsZero() {
		sheet.IssuedAt = s.now().UTC()
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetTitle(sheet.Title, true)
	pdf.SetAuthor(sheet.Journal, true)
	pdf.AddPage()

	pdf.SetFont("Times", "B", 16)
	pdf.CellFormat(0, 10, strings.ToUpper(sheet.Journal), "B", 1, "C", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Times", "B", 13)
	pdf.MultiCell(0, 7, sheet.Title, "", "C", false)
	pdf.Ln(4)

	pdf.SetFont("Times", "", 10)
	if sheet.Author != "" {
		pdf.CellFormat(0, 6, "Author: "+sheet.Author, "", 1, "C", false, 0, "")
	}
	pdf.CellFormat(0, 6, "Manuscript ID: "+sheet.ArticleID, "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, "Stamped: "+sheet.IssuedAt.Format("02 January 2006 15:04 MST"), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "B", 54)
	pdf.SetTextColor(200, 200, 200)
	pdf.TransformBegin()
	pdf.TransformRotate(45, 105, 170)
	pdf.Text(35, 180, sheet.Label)
	pdf.TransformEnd()
	pdf.SetTextColor(0, 0, 0)

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render watermark: %w", err)
	}
	return buf.Bytes(), nil
}
