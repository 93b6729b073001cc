package report

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/rs/zerolog"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"market-genome/internal/domain"
	"market-genome/internal/domain/model"
	"market-genome/internal/domain/ports/adapter"
	"market-genome/internal/infra/logging"
)

var _ adapter.ReportRenderer = (*PDFRenderer)(nil)

const (
	bodySize   = 10.0
	leftMargin = 15.0
	brandName  = "Pixaro"
)

// PDFRenderer renders the genome report to PDF and stores it under
// reports/<job_id>.pdf.
type PDFRenderer struct {
	store adapter.ArtifactStore
	md    goldmark.Markdown
	log   *zerolog.Logger
}

func NewPDFRenderer(store adapter.ArtifactStore, logger *zerolog.Logger) *PDFRenderer {
	return &PDFRenderer{
		store: store,
		md:    goldmark.New(goldmark.WithExtensions(extension.Strikethrough)),
		log:   logger,
	}
}

// ReportKey is the storage key for a job's report.
func ReportKey(jobID string) string {
	return "reports/" + jobID + ".pdf"
}

func (r *PDFRenderer) Render(ctx context.Context, rep model.Report) (model.Artifact, error) {
	log := logging.With(ctx, r.log)
	if rep.GeneratedAt.IsZero() {
		rep.GeneratedAt = time.Now().UTC()
	}
	body, err := r.RenderBytes(BuildMarkdown(rep), rep.Brand)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("%w: %v", domain.ErrRender, err)
	}
	if err := ctx.Err(); err != nil {
		return model.Artifact{}, fmt.Errorf("%w: %v", domain.ErrRender, err)
	}

	obj, err := r.store.Put(ctx, ReportKey(rep.JobID), body, "application/pdf")
	if err != nil {
		return model.Artifact{}, fmt.Errorf("%w: store report: %v", domain.ErrRender, err)
	}
	log.Debug().Str("key", obj.Key).Int64("size", obj.Size).Msg("report rendered")
	return model.Artifact{
		Key:         obj.Key,
		URL:         obj.URL,
		ContentType: "application/pdf",
		Size:        obj.Size,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// RenderBytes converts Markdown into a PDF document.
func (r *PDFRenderer) RenderBytes(markdown, title string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetAuthor(brandName, true)
	pdf.SetMargins(leftMargin, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 8, fmt.Sprintf("%s Marketing Genome - page %d", brandName, pdf.PageNo()), "", 0, "C", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	})
	pdf.AddPage()

	source := []byte(markdown)
	doc := r.md.Parser().Parse(text.NewReader(source))
	w := &pdfWriter{
		pdf:  pdf,
		src:  source,
		tr:   pdf.UnicodeTranslatorFromDescriptor(""),
		size: bodySize,
	}
	w.font()
	if err := ast.Walk(doc, w.walk); err != nil {
		return nil, err
	}
	if err := pdf.Error(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type pdfWriter struct {
	pdf    *fpdf.Fpdf
	src    []byte
	tr     func(string) string
	size   float64
	bold   bool
	italic bool
	depth  int
}

func (w *pdfWriter) font() {
	style := ""
	if w.bold {
		style += "B"
	}
	if w.italic {
		style += "I"
	}
	w.pdf.SetFont("Arial", style, w.size)
}

func (w *pdfWriter) lineHeight() float64 { return w.size * 0.5 }

func (w *pdfWriter) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			w.pdf.Ln(3)
			w.size = headingSize(node.Level)
			w.bold = true
			if node.Level <= 2 {
				w.pdf.SetTextColor(40, 60, 140)
			}
		} else {
			w.pdf.Ln(w.lineHeight() + 1)
			w.size = bodySize
			w.bold = false
			w.pdf.SetTextColor(0, 0, 0)
		}
		w.font()
	case *ast.Paragraph, *ast.TextBlock:
		if !entering {
			w.pdf.Ln(w.lineHeight() + 1)
		}
	case *ast.List:
		if entering {
			w.depth++
		} else {
			w.depth--
			w.pdf.Ln(1)
		}
	case *ast.ListItem:
		if entering {
			w.pdf.SetX(leftMargin + float64(w.depth-1)*5)
			w.pdf.Write(w.lineHeight(), w.tr("- "))
		}
	case *ast.Emphasis:
		if node.Level >= 2 {
			w.bold = entering
		} else {
			w.italic = entering
		}
		w.font()
	case *ast.Text:
		if entering {
			w.pdf.Write(w.lineHeight(), w.tr(string(node.Segment.Value(w.src))))
			if node.SoftLineBreak() {
				w.pdf.Write(w.lineHeight(), " ")
			}
		}
	case *ast.ThematicBreak:
		if entering {
			y := w.pdf.GetY() + 2
			w.pdf.Line(leftMargin, y, 195, y)
			w.pdf.Ln(4)
		}
	}
	return ast.WalkContinue, nil
}

func headingSize(level int) float64 {
	switch level {
	case 1:
		return 18
	case 2:
		return 14
	case 3:
		return 12
	default:
		return bodySize + 1
	}
}
