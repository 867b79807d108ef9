// Package report renders a stored submission as a paginated PDF.
package report

import (
	"bytes"
	_ "embed"
	"fmt"
	"strconv"

	"github.com/4uJustDev/medical-calculator-haq/internal/config"
	"github.com/4uJustDev/medical-calculator-haq/internal/models"
	"github.com/4uJustDev/medical-calculator-haq/internal/utils"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// The bundled font covers Latin, Cyrillic and Greek. It is used unless the
// config names a TTF file or one of the PDF core fonts.
var (
	//go:embed fonts/DejaVuSansCondensed.ttf
	bundledRegular []byte
	//go:embed fonts/DejaVuSansCondensed-Bold.ttf
	bundledBold []byte
)

const bundledFamily = "DejaVu"

// Placeholder is printed for questions without an answer.
const Placeholder = "—"

const (
	margin     = 15.0
	lineHeight = 5.0
	cellPad    = 1.0
)

var (
	columnTitles = []string{"Question", "Answer", "Value"}
	columnWidths = []float64{100, 60, 20}
	columnAligns = []string{"L", "L", "C"}
)

// Exporter turns a submission into a PDF, looking question texts and option
// labels up in the catalog.
type Exporter struct {
	catalog *models.Catalog
	cfg     config.ReportConfig
}

func New(catalog *models.Catalog, cfg config.ReportConfig) *Exporter {
	return &Exporter{catalog: catalog, cfg: cfg}
}

// FileName is the download name for a submission's report.
func (e *Exporter) FileName(sub *models.Submission) string {
	name := "anonymous"
	if sub.PatientInfo != nil {
		if n := utils.SanitizeFileName(sub.PatientInfo.Name); n != "" {
			name = n
		}
	}
	return e.cfg.FilePrefix + name + ".pdf"
}

// Render builds the whole document in memory. Bytes are only returned for a
// complete document; any failure, including a panic inside the PDF library,
// comes back as models.ErrExportFailure.
func (e *Exporter) Render(sub *models.Submission) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: %v", models.ErrExportFailure, r)
		}
	}()

	doc, err := e.newDocument()
	if err != nil {
		return nil, err
	}
	doc.header(e.catalog, e.cfg, sub)
	if err := doc.table(e.catalog, sub); err != nil {
		return nil, err
	}
	if doc.err != nil {
		return nil, doc.err
	}

	var buf bytes.Buffer
	if err := doc.pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrExportFailure, err)
	}
	return buf.Bytes(), nil
}

type document struct {
	pdf    *fpdf.Fpdf
	family string
	utf8   bool
	cp1252 *encoding.Encoder
	err    error
}

func (e *Exporter) newDocument() (*document, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.AliasNbPages("")

	d := &document{pdf: pdf, family: e.cfg.FontFamily, utf8: true}
	switch {
	case e.cfg.FontPath != "":
		d.family = "ReportFont"
		pdf.AddUTF8Font(d.family, "", e.cfg.FontPath)
		pdf.AddUTF8Font(d.family, "B", e.cfg.FontPath)
	case e.cfg.FontFamily == "":
		d.family = bundledFamily
		pdf.AddUTF8FontFromBytes(d.family, "", bundledRegular)
		pdf.AddUTF8FontFromBytes(d.family, "B", bundledBold)
	default:
		// core fonts only know cp1252
		d.utf8 = false
		d.cp1252 = charmap.Windows1252.NewEncoder()
	}
	if pdf.Err() {
		return nil, fmt.Errorf("%w: load font: %w", models.ErrExportFailure, pdf.Error())
	}

	pdf.SetFooterFunc(func() {
		pdf.SetY(-margin + 5)
		pdf.SetFont(d.family, "", 8)
		pdf.CellFormat(0, 5, d.tr(fmt.Sprintf("Page %d/{nb}", pdf.PageNo())), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()
	return d, nil
}

// tr prepares s for the current font. Text a core font cannot show fails the
// export rather than coming out as placeholder dots.
func (d *document) tr(s string) string {
	if d.utf8 {
		return s
	}
	out, err := d.cp1252.String(s)
	if err != nil {
		if d.err == nil {
			d.err = fmt.Errorf("%w: %q cannot be written with core font %s: %w", models.ErrExportFailure, s, d.family, err)
		}
		return ""
	}
	return out
}

func (d *document) header(catalog *models.Catalog, cfg config.ReportConfig, sub *models.Submission) {
	pdf := d.pdf

	pdf.SetFont(d.family, "B", 16)
	pdf.MultiCell(0, 8, d.tr(catalog.Title), "", "C", false)
	if cfg.Title != "" {
		pdf.SetFont(d.family, "", 11)
		pdf.MultiCell(0, 6, d.tr(cfg.Title), "", "C", false)
	}
	pdf.Ln(4)

	pdf.SetFont(d.family, "", 10)
	line := func(label, value string) {
		pdf.SetFont(d.family, "B", 10)
		pdf.CellFormat(35, 6, d.tr(label), "", 0, "L", false, 0, "")
		pdf.SetFont(d.family, "", 10)
		pdf.CellFormat(0, 6, d.tr(value), "", 1, "L", false, 0, "")
	}
	if p := sub.PatientInfo; p != nil {
		line("Patient:", p.Name)
		line("Age:", strconv.Itoa(p.Age))
		line("Gender:", p.GenderLabel())
	}
	line("Date:", sub.Date)
	line("Submission:", strconv.FormatInt(sub.ID, 10))
	pdf.Ln(2)

	pdf.SetFont(d.family, "B", 12)
	pdf.CellFormat(0, 8, d.tr("Score: "+models.FormatScore(sub.Score)), "", 1, "L", false, 0, "")
	if catalog.Scale != "" {
		pdf.SetFont(d.family, "", 9)
		pdf.MultiCell(0, 5, d.tr(catalog.Scale), "", "L", false)
	}
	pdf.Ln(4)
}

// tableRow is one line of the answers table. Category rows only carry Text.
type tableRow struct {
	Category bool
	Text     string
	Label    string
	Value    string
}

// buildRows lays the answers out by category in catalog order.
func buildRows(catalog *models.Catalog, sub *models.Submission) ([]tableRow, error) {
	rows := make([]tableRow, 0, len(catalog.Questions())+catalog.CategoryCount())
	for _, cat := range catalog.Categories {
		rows = append(rows, tableRow{Category: true, Text: cat.Name})
		for _, q := range cat.Questions {
			r := tableRow{Text: q.Text, Label: Placeholder, Value: Placeholder}
			if v := sub.Answers[q.ID]; v != nil {
				label, ok := catalog.OptionLabel(q.ID, *v)
				if !ok {
					return nil, fmt.Errorf("%w: no option with value %v for question %d", models.ErrExportFailure, *v, q.ID)
				}
				r.Label, r.Value = label, strconv.FormatFloat(*v, 'f', -1, 64)
			}
			rows = append(rows, r)
		}
	}
	return rows, nil
}

func (d *document) table(catalog *models.Catalog, sub *models.Submission) error {
	rows, err := buildRows(catalog, sub)
	if err != nil {
		return err
	}

	d.columnHeader()
	for _, r := range rows {
		if r.Category {
			// keep a category header together with its first question
			d.ensureSpace(2 * (lineHeight + 2*cellPad))
			d.categoryRow(r.Text)
			continue
		}
		d.row([]string{r.Text, r.Label, r.Value}, false)
	}
	if d.pdf.Err() {
		return fmt.Errorf("%w: %w", models.ErrExportFailure, d.pdf.Error())
	}
	return nil
}

func (d *document) columnHeader() {
	d.pdf.SetFont(d.family, "B", 10)
	d.pdf.SetFillColor(220, 220, 220)
	d.row(columnTitles, true)
	d.pdf.SetFont(d.family, "", 10)
}

func (d *document) categoryRow(name string) {
	pdf := d.pdf
	total := 0.0
	for _, w := range columnWidths {
		total += w
	}
	pdf.SetFont(d.family, "B", 10)
	pdf.SetFillColor(235, 240, 250)
	pdf.CellFormat(total, lineHeight+2*cellPad, d.tr(name), "1", 1, "L", true, 0, "")
	pdf.SetFont(d.family, "", 10)
}

// ensureSpace starts a new page, repeating the column header, when h does
// not fit above the bottom margin.
func (d *document) ensureSpace(h float64) {
	_, pageH := d.pdf.GetPageSize()
	if d.pdf.GetY()+h > pageH-margin {
		d.pdf.AddPage()
		d.columnHeader()
	}
}

// split wraps text to width w. Core fonts work on cp1252 bytes, UTF-8 fonts
// on runes.
func (d *document) split(text string, w float64) []string {
	if d.utf8 {
		return d.pdf.SplitText(text, w)
	}
	var lines []string
	for _, ln := range d.pdf.SplitLines([]byte(d.tr(text)), w) {
		lines = append(lines, string(ln))
	}
	return lines
}

func (d *document) row(cells []string, fill bool) {
	pdf := d.pdf

	lines := make([][]string, len(cells))
	maxLines := 1
	for i, c := range cells {
		lines[i] = d.split(c, columnWidths[i]-2*cellPad)
		if len(lines[i]) == 0 {
			lines[i] = []string{""}
		}
		if len(lines[i]) > maxLines {
			maxLines = len(lines[i])
		}
	}
	h := float64(maxLines)*lineHeight + 2*cellPad
	if !fill {
		d.ensureSpace(h)
	}

	style := "D"
	if fill {
		style = "FD"
	}
	x, y := pdf.GetX(), pdf.GetY()
	for i := range cells {
		pdf.Rect(x, y, columnWidths[i], h, style)
		for j, ln := range lines[i] {
			pdf.SetXY(x+cellPad, y+cellPad+float64(j)*lineHeight)
			pdf.CellFormat(columnWidths[i]-2*cellPad, lineHeight, ln, "", 0, columnAligns[i], false, 0, "")
		}
		x += columnWidths[i]
	}
	pdf.SetXY(margin, y+h)
}
