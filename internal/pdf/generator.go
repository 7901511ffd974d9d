// Package pdf renders the registration verification document.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

// Title is the document headline.
const Title = "BGHS Alumni Registration Verification"

const fallbackLogoURL = "https://alumnibghs.org/bghs-logo.png"

// ist is the association's local time, used for printed dates.
var ist = time.FixedZone("IST", 5*3600+30*60)

// Reference is one reference registration id and its validation result.
type Reference struct {
	ID    string
	Valid *bool
}

// Evidence is one uploaded supporting document.
type Evidence struct {
	Name string
	URL  string
	Type string
	Size int64
}

// RegistrationData is everything printed on the registration PDF.
type RegistrationData struct {
	UserID         string
	RegistrationID string
	FullName       string
	Email          string
	Phone          string
	LastClass      *int
	YearOfLeaving  *int
	StartClass     *int
	StartYear      *int
	Method         string
	References     []Reference
	Evidence       []Evidence
	AdminNotes     string
	SubmittedAt    time.Time
	GeneratedAt    time.Time
}

// Options configures a Generator.
type Options struct {
	LogoURL string
}

// Generator lays out registration PDFs with fpdf.
type Generator struct {
	fetcher  ImageFetcher
	logoURL  string
	logger   *slog.Logger
	compress bool
}

// NewGenerator creates a new Generator instance
func NewGenerator(fetcher ImageFetcher, opts Options, logger *slog.Logger) *Generator {
	logo := opts.LogoURL
	if logo == "" {
		logo = fallbackLogoURL
	}
	return &Generator{fetcher: fetcher, logoURL: logo, logger: logger, compress: true}
}

// ResolveLogoURL picks the logo location: the storage custom domain, then the
// public r2.dev bucket, then the website.
func ResolveLogoURL(customDomain, accountID, bucket string) string {
	if bucket == "" {
		bucket = "bghs-gallery"
	}
	switch {
	case customDomain != "":
		return "https://" + customDomain + "/static/logos/bghs-logo.png"
	case accountID != "":
		return fmt.Sprintf("https://pub-%s.r2.dev/%s/static/logos/bghs-logo.png", accountID, bucket)
	}
	return fallbackLogoURL
}

// ReferenceStatus is the pill label for a validation result.
func ReferenceStatus(valid *bool) string {
	switch {
	case valid == nil:
		return "PENDING"
	case *valid:
		return "VALID"
	}
	return "INVALID"
}

// FormatDate renders t the way dates are printed on the document.
func FormatDate(t time.Time) string {
	return t.In(ist).Format("2 January 2006, 03:04 PM")
}

type renderer struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

// GenerateRegistrationPDF renders data. Identical input yields identical bytes.
func (g *Generator) GenerateRegistrationPDF(ctx context.Context, data RegistrationData) ([]byte, error) {
	generated := data.GeneratedAt
	if generated.IsZero() {
		generated = data.SubmittedAt
	}

	f := fpdf.New("P", "mm", "A4", "")
	f.SetCreationDate(generated)
	f.SetModificationDate(generated)
	f.SetCatalogSort(true)
	f.SetCompression(g.compress)
	f.SetProducer("BGHS Alumni System", false)
	f.SetTitle(Title, true)
	f.SetMargins(12, 12, 12)
	f.SetAutoPageBreak(true, 18)

	r := &renderer{pdf: f, tr: f.UnicodeTranslatorFromDescriptor("")}

	f.SetFooterFunc(func() {
		f.SetY(-14)
		f.SetFont("Helvetica", "I", 8)
		f.SetTextColor(107, 114, 128)
		f.CellFormat(0, 5, r.tr(fmt.Sprintf("Generated on %s | System ID: %s", FormatDate(generated), data.UserID)),
			"", 0, "C", false, 0, "")
	})
	f.AddPage()

	logo, err := g.fetchImage(ctx, f, "logo", g.logoURL)
	if err != nil {
		g.logger.WarnContext(ctx, "Failed to load logo, using text badge",
			slog.String("url", g.logoURL),
			slog.String("error", err.Error()),
		)
		logo = ""
	}
	r.header(logo, data, generated)

	r.section("Personal Information")
	r.row("Full Name", data.FullName)
	r.row("Email", data.Email)
	r.row("Phone", orDefault(data.Phone, "Not provided"))
	r.row("System ID", data.UserID)

	r.section("Academic Information")
	r.row("Last Class Attended", classString(data.LastClass))
	r.row("Year of Leaving", intString(data.YearOfLeaving))
	if data.StartClass != nil || data.StartYear != nil {
		r.row("Started In", fmt.Sprintf("%s (%s)", classString(data.StartClass), intString(data.StartYear)))
	}

	r.section("Registration Details")
	r.row("Registration ID", orDefault(data.RegistrationID, "Not assigned"))
	r.row("Submission Date", FormatDate(data.SubmittedAt))
	r.row("Verification Method", data.Method)

	if len(data.References) > 0 {
		r.section("Reference Validation")
		for i, ref := range data.References {
			r.pillRow(fmt.Sprintf("Reference %d", i+1), ref.ID, ReferenceStatus(ref.Valid))
		}
	}

	r.section("Evidence Documents")
	if len(data.Evidence) == 0 {
		r.row("Files", "No evidence files uploaded")
	}
	var thumbs []string
	for i, ev := range data.Evidence {
		r.row(fmt.Sprintf("File %d", i+1), fmt.Sprintf("%s (%s)", ev.Name, sizeString(ev.Size)))
		if !isImage(ev) {
			continue
		}
		name, err := g.fetchImage(ctx, f, "evidence-"+strconv.Itoa(i), ev.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to embed evidence %q: %w", ev.Name, err)
		}
		thumbs = append(thumbs, name)
	}
	r.thumbnails(thumbs)

	r.section("Admin Notes")
	r.notesBox(data.AdminNotes)

	if f.Err() {
		return nil, fmt.Errorf("failed to lay out registration pdf: %w", f.Error())
	}

	var buf bytes.Buffer
	if err := f.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write registration pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *Generator) fetchImage(ctx context.Context, f *fpdf.Fpdf, name, url string) (string, error) {
	img, err := g.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	tp, err := imageType(img)
	if err != nil {
		return "", err
	}
	f.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: tp}, bytes.NewReader(img.Data))
	if f.Err() {
		err := f.Error()
		f.ClearError()
		return "", err
	}
	return name, nil
}

func (r *renderer) header(logo string, data RegistrationData, generated time.Time) {
	f := r.pdf
	left, top, right, _ := f.GetMargins()
	pageW, _ := f.GetPageSize()
	width := pageW - left - right

	f.SetFillColor(30, 64, 175)
	f.RoundedRect(left, top, width, 34, 2, "1234", "F")

	f.SetFillColor(255, 255, 255)
	f.RoundedRect(left+4, top+4, 26, 26, 1.5, "1234", "F")
	if logo != "" {
		f.ImageOptions(logo, left+5, top+5, 24, 24, false, fpdf.ImageOptions{}, 0, "")
	} else {
		f.SetXY(left+4, top+14)
		f.SetFont("Helvetica", "B", 10)
		f.SetTextColor(31, 41, 55)
		f.CellFormat(26, 6, "BGHS", "", 0, "C", false, 0, "")
	}

	textX := left + 34
	f.SetTextColor(255, 255, 255)
	f.SetXY(textX, top+4)
	f.SetFont("Helvetica", "B", 11)
	f.CellFormat(width-36, 6, "BARASAT GOVT. HIGH SCHOOL EX-STUDENTS ASSOCIATION", "", 2, "L", false, 0, "")
	f.SetFont("Helvetica", "B", 10)
	f.CellFormat(width-36, 5, Title, "", 2, "L", false, 0, "")
	f.SetFont("Helvetica", "", 8)
	f.CellFormat(width-36, 4, "Registration No.: S/31084", "", 2, "L", false, 0, "")
	f.CellFormat(width-36, 4, "K.N.C. ROAD, BARASAT, NORTH 24 PARGANAS, KOLKATA - 700124", "", 2, "L", false, 0, "")
	f.CellFormat(width-36, 4, r.tr(fmt.Sprintf("System ID: %s | Generated: %s", data.UserID, FormatDate(generated))),
		"", 2, "L", false, 0, "")

	f.SetY(top + 38)
}

func (r *renderer) section(title string) {
	f := r.pdf
	f.Ln(3)
	f.SetFont("Helvetica", "B", 11)
	f.SetTextColor(30, 64, 175)
	f.CellFormat(0, 7, title, "B", 1, "L", false, 0, "")
	f.Ln(1)
}

func (r *renderer) row(label, value string) {
	f := r.pdf
	f.SetFont("Helvetica", "B", 9)
	f.SetTextColor(55, 65, 81)
	f.CellFormat(60, 6, r.tr(label+":"), "", 0, "L", false, 0, "")
	f.SetFont("Helvetica", "", 9)
	f.SetTextColor(107, 114, 128)
	f.MultiCell(0, 6, r.tr(value), "", "L", false)
}

func (r *renderer) pillRow(label, value, status string) {
	f := r.pdf
	f.SetFont("Helvetica", "B", 9)
	f.SetTextColor(55, 65, 81)
	f.CellFormat(60, 6, r.tr(label+":"), "", 0, "L", false, 0, "")
	f.SetFont("Helvetica", "", 9)
	f.SetTextColor(107, 114, 128)
	f.CellFormat(50, 6, r.tr(value), "", 0, "L", false, 0, "")

	switch status {
	case "VALID":
		f.SetFillColor(220, 252, 231)
		f.SetTextColor(22, 101, 52)
	case "INVALID":
		f.SetFillColor(254, 242, 242)
		f.SetTextColor(220, 38, 38)
	default:
		f.SetFillColor(254, 243, 199)
		f.SetTextColor(217, 119, 6)
	}
	f.SetFont("Helvetica", "B", 8)
	f.CellFormat(22, 6, status, "", 1, "C", true, 0, "")
}

func (r *renderer) thumbnails(names []string) {
	if len(names) == 0 {
		return
	}
	const size, gap = 45.0, 4.0

	f := r.pdf
	left, _, right, _ := f.GetMargins()
	pageW, pageH := f.GetPageSize()
	perRow := int((pageW - left - right + gap) / (size + gap))

	f.Ln(2)
	for i, name := range names {
		col := i % perRow
		if col == 0 && i > 0 {
			f.SetY(f.GetY() + size + gap)
		}
		if col == 0 && f.GetY()+size > pageH-20 {
			f.AddPage()
		}
		x := left + float64(col)*(size+gap)
		f.SetDrawColor(209, 213, 219)
		f.Rect(x, f.GetY(), size, size, "D")
		f.ImageOptions(name, x+1, f.GetY()+1, size-2, size-2, false, fpdf.ImageOptions{}, 0, "")
	}
	f.SetY(f.GetY() + size + gap)
}

func (r *renderer) notesBox(notes string) {
	f := r.pdf
	f.SetDrawColor(209, 213, 219)
	f.SetFont("Helvetica", "", 9)
	f.SetTextColor(55, 65, 81)
	if notes == "" {
		f.CellFormat(0, 24, "", "1", 1, "L", false, 0, "")
		return
	}
	f.MultiCell(0, 6, r.tr(notes), "1", "L", false)
}

func isImage(ev Evidence) bool {
	return strings.HasPrefix(strings.ToLower(ev.Type), "image/")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func intString(v *int) string {
	if v == nil {
		return "Not provided"
	}
	return strconv.Itoa(*v)
}

func classString(v *int) string {
	if v == nil {
		return "Not provided"
	}
	return "Class " + strconv.Itoa(*v)
}

func sizeString(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
