package consent

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// ReceiptPDF renders a printable acknowledgement for one consent record.
// Purpose ids are resolved to names through the record's template; a
// template that has since been removed falls back to the raw ids.
func (s *Service) ReceiptPDF(ctx context.Context, id string) ([]byte, Record, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, Record{}, err
	}
	templateName := rec.TemplateID
	names := map[string]string{}
	if tpl, err := s.templates.Get(ctx, rec.TemplateID); err == nil {
		templateName = tpl.Name
		for _, p := range tpl.Purposes {
			names[p.ID] = p.Name
		}
	}
	out, err := renderReceipt(rec, templateName, names, s.now().UTC())
	if err != nil {
		return nil, Record{}, fmt.Errorf("render receipt: %w", err)
	}
	return out, rec, nil
}

func renderReceipt(rec Record, templateName string, purposeNames map[string]string, generated time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Consent receipt "+rec.ID, true)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Consent receipt")
	pdf.Ln(12)

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	line := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Cell(45, 7, label)
		pdf.SetFont("Helvetica", "", 11)
		pdf.Cell(0, 7, tr(value))
		pdf.Ln(7)
	}
	line("Receipt ID", rec.ID)
	line("Notice", templateName)
	line("User reference", rec.UserReferenceID)
	line("Decision", strings.ToUpper(rec.Status))
	line("Recorded at", rec.ConsentTimestamp.UTC().Format(time.RFC3339))
	if rec.ExpiryDate != nil {
		line("Valid until", rec.ExpiryDate.UTC().Format("2006-01-02"))
	}
	line("Channel", rec.Platform+" / "+rec.Language)
	line("Version", fmt.Sprintf("%d", rec.Version))
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Purposes granted")
	pdf.Ln(9)
	pdf.SetFont("Helvetica", "", 11)
	if len(rec.AcceptedPurposes) == 0 {
		pdf.Cell(0, 7, "None")
		pdf.Ln(7)
	}
	for _, id := range rec.AcceptedPurposes {
		name := purposeNames[id]
		if name == "" {
			name = id
		}
		pdf.Cell(0, 7, tr("- "+name))
		pdf.Ln(7)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, "Issued under the Digital Personal Data Protection Act, 2023. Generated "+
		generated.Format(time.RFC3339)+".", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
