package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
)

func itemRows(items []domain.UploadItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		confidence := ""
		if it.Confidence > 0 {
			confidence = fmt.Sprintf("%.0f%% %s", it.Confidence*100, domain.BandFor(it.Confidence))
		}
		rows = append(rows, []string{
			it.Name,
			humanize.Bytes(uint64(max(it.Size, 0))),
			string(it.Status),
			string(it.DocumentType),
			confidence,
			it.BatchID,
			itemDetail(it),
		})
	}
	return rows
}

func itemDetail(it domain.UploadItem) string {
	if it.Error == "" && it.ErrorKind == domain.ErrorKindNone {
		if it.RequiresConfirmation && it.Status == domain.StatusReady {
			return "needs confirmation"
		}
		return it.Progress
	}
	detail := it.Error
	if guidance := domain.GuidanceFor(it.ErrorKind); guidance != "" {
		if detail != "" {
			detail += ": "
		}
		detail += guidance
	}
	return detail
}

// settled reports whether no item is still moving on its own.
func settled(items []domain.UploadItem) bool {
	for _, it := range items {
		switch it.Status {
		case domain.StatusPending, domain.StatusProcessing, domain.StatusSaving:
			return false
		}
	}
	return true
}

func batchRows(b *domain.Batch) [][]string {
	confirmation := "no"
	if b.RequiresConfirmation {
		confirmation = "pending"
		if b.ParserID != "" {
			confirmation = "confirmed (" + b.ParserID + ")"
		}
	}
	rows := [][]string{
		{"ID", b.ID},
		{"Status", string(b.Status)},
		{"Type", string(b.DocumentType)},
		{"Origin", b.Origin},
		{"Items", humanize.Comma(int64(b.TotalItems))},
		{"Valid", humanize.Comma(int64(b.ValidItems))},
		{"Invalid", humanize.Comma(int64(b.InvalidItems))},
		{"Confirmation", confirmation},
	}
	if !b.CreatedAt.IsZero() {
		rows = append(rows, []string{"Created", humanize.Time(b.CreatedAt)})
	}
	return rows
}

func validationRows(items []domain.Item) [][]string {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		issues := make([]string, 0, len(it.Errors))
		for _, issue := range it.Errors {
			text := issue.Field + ": " + issue.Code
			if issue.Message != "" {
				text += " (" + issue.Message + ")"
			}
			issues = append(issues, text)
		}
		rows = append(rows, []string{it.ID, string(it.Status), strings.Join(issues, "; ")})
	}
	return rows
}

func progressLine(p domain.BatchProgress) string {
	var b strings.Builder
	b.WriteString(p.Status)
	if p.CurrentStep != "" {
		b.WriteString(" [" + p.CurrentStep + "]")
	}
	b.WriteString(" " + humanize.Comma(int64(p.Processed)))
	if p.Total > 0 {
		b.WriteString("/" + humanize.Comma(int64(p.Total)))
		pct := float64(p.Processed) / float64(p.Total) * 100
		b.WriteString(" (" + strconv.FormatFloat(pct, 'f', 0, 64) + "%)")
	}
	b.WriteString(" rows")
	if p.RowsPerSecond > 0 {
		b.WriteString(", " + humanize.FtoaWithDigits(p.RowsPerSecond, 1) + " rows/s")
	}
	if p.ETASeconds > 0 {
		eta := time.Duration(p.ETASeconds * float64(time.Second)).Round(time.Second)
		b.WriteString(", eta " + eta.String())
	}
	if p.ErrorCount > 0 {
		b.WriteString(", " + humanize.Comma(int64(p.ErrorCount)) + " errors")
	}
	return b.String()
}

func progressDone(p domain.BatchProgress) bool {
	switch domain.BatchStatus(p.Status) {
	case domain.BatchValidated, domain.BatchPromoted, domain.BatchCanceled, domain.BatchDeleted:
		return true
	}
	return p.Status == "failed" || p.Status == "completed"
}
