package certificate

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	qrcode "github.com/skip2/go-qrcode"
)

// Data is everything printed on a certificate. It is rebuilt from the
// sponsorship row every time a certificate is sent.
type Data struct {
	ID           string
	SponsorName  string
	Company      string
	AreaName     string
	AreaLocation string
	Hectares     int
	AmountCents  int64
	Currency     string
	Recurring    bool
	Years        int
	IssuedAt     time.Time
	ExpiresAt    time.Time
	VerifyURL    string
}

var ErrIncompleteData = errors.New("incomplete certificate data")

func (d Data) validate() error {
	var missing []string
	if strings.TrimSpace(d.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(d.SponsorName) == "" {
		missing = append(missing, "sponsor name")
	}
	if strings.TrimSpace(d.AreaName) == "" {
		missing = append(missing, "area name")
	}
	if d.Hectares < 1 {
		missing = append(missing, "hectares")
	}
	if d.IssuedAt.IsZero() {
		missing = append(missing, "issue date")
	}
	if strings.TrimSpace(d.VerifyURL) == "" {
		missing = append(missing, "verify url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrIncompleteData, strings.Join(missing, ", "))
	}
	return nil
}

// FormatAmount renders minor units as "USD 1,234.50".
func FormatAmount(cents int64, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "USD"
	}
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	major := fmt.Sprintf("%d", cents/100)
	var b strings.Builder
	for i, r := range major {
		if i > 0 && (len(major)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%s %s%s.%02d", currency, sign, b.String(), cents%100)
}

// Renderer draws certificate PDFs.
type Renderer struct {
	// Title printed in the header band.
	Title string
}

// NewRenderer returns a renderer with the default title.
func NewRenderer() *Renderer {
	return &Renderer{Title: "Coral Refuge"}
}

const (
	qrSize   = 256
	qrImage  = "verify-qr"
	pageW    = 297.0
	pageH    = 210.0
	margin   = 15.0
	dateForm = "2 January 2006"
)

// Render produces a landscape A4 PDF.
func (r *Renderer) Render(d Data) ([]byte, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	if d.ExpiresAt.IsZero() {
		d.ExpiresAt = ExpiresAt(d.IssuedAt)
	}

	qr, err := qrcode.Encode(d.VerifyURL, qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("%s certificate %s", r.Title, d.ID), true)
	pdf.SetAuthor(r.Title, true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	// frame
	pdf.SetDrawColor(0, 105, 148)
	pdf.SetLineWidth(1.2)
	pdf.Rect(margin/2, margin/2, pageW-margin, pageH-margin, "D")

	// header band
	pdf.SetFillColor(0, 105, 148)
	pdf.Rect(margin/2, margin/2, pageW-margin, 28, "F")
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 22)
	pdf.SetXY(margin, margin)
	pdf.CellFormat(pageW-2*margin, 14, tr(r.Title), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	pdf.SetX(margin)
	pdf.CellFormat(pageW-2*margin, 6, "Certificate of Marine Protected Area Sponsorship", "", 1, "C", false, 0, "")

	pdf.SetTextColor(20, 40, 60)
	pdf.SetY(52)
	pdf.SetFont("Helvetica", "", 13)
	pdf.CellFormat(pageW, 8, "This certifies that", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "B", 26)
	pdf.CellFormat(pageW, 14, tr(d.SponsorName), "", 1, "C", false, 0, "")
	if c := strings.TrimSpace(d.Company); c != "" {
		pdf.SetFont("Helvetica", "I", 13)
		pdf.CellFormat(pageW, 7, tr("on behalf of "+c), "", 1, "C", false, 0, "")
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", 13)
	pdf.CellFormat(pageW, 8, "has sponsored the protection of", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(pageW, 10, tr(hectaresLabel(d.Hectares)+" of "+d.AreaName), "", 1, "C", false, 0, "")
	if loc := strings.TrimSpace(d.AreaLocation); loc != "" {
		pdf.SetFont("Helvetica", "", 12)
		pdf.CellFormat(pageW, 7, tr(loc), "", 1, "C", false, 0, "")
	}

	// details block
	pdf.SetFont("Helvetica", "", 11)
	rows := [][2]string{
		{"Certificate", d.ID},
		{"Contribution", contributionLabel(d)},
		{"Issued", d.IssuedAt.UTC().Format(dateForm)},
		{"Valid until", d.ExpiresAt.UTC().Format(dateForm)},
	}
	y := 140.0
	for _, row := range rows {
		pdf.SetXY(margin+10, y)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(40, 7, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(120, 7, tr(row[1]), "", 0, "L", false, 0, "")
		y += 8
	}

	// verification QR
	opts := fpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader(qrImage, opts, bytes.NewReader(qr))
	qrX, qrY, qrW := pageW-margin-45, 135.0, 40.0
	pdf.ImageOptions(qrImage, qrX, qrY, qrW, qrW, false, opts, 0, d.VerifyURL)
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetXY(qrX-10, qrY+qrW+1)
	pdf.CellFormat(qrW+20, 4, "Scan to verify in the public registry", "", 0, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func hectaresLabel(h int) string {
	if h == 1 {
		return "1 hectare"
	}
	return fmt.Sprintf("%d hectares", h)
}

func contributionLabel(d Data) string {
	amount := FormatAmount(d.AmountCents, d.Currency)
	switch {
	case d.Recurring:
		return amount + " per month"
	case d.Years > 1:
		return fmt.Sprintf("%s for %d years", amount, d.Years)
	}
	return amount
}
