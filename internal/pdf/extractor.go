// Package pdf converts PDF byte streams into page-ordered text and
// delegates chunking to the chunker package.
package pdf

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/thomasbeckford/pasichat/internal/chunker"
	"github.com/thomasbeckford/pasichat/internal/domain"
)

const (
	// lineBreakThreshold is the vertical distance in points between two
	// fragments that implies a new line.
	lineBreakThreshold = 5.0
	// minPageLen drops pages with less extracted text (scans, blanks).
	minPageLen = 50
)

// Extractor extracts positioned text from PDFs page by page.
type Extractor struct {
	chunker *chunker.Chunker
	logger  *zap.Logger
}

// NewExtractor creates a PDF extractor that chunks with c.
func NewExtractor(c *chunker.Chunker, logger *zap.Logger) *Extractor {
	return &Extractor{chunker: c, logger: logger}
}

// ExtractText parses data as a PDF, extracts text page by page and
// returns the chunked document. A corrupt page is logged and skipped;
// an unparsable stream or a document with zero usable pages fails with
// domain.ErrExtraction.
func (e *Extractor) ExtractText(data []byte) ([]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %v: %w", err, domain.ErrExtraction)
	}

	pages := e.collectPages(reader)

	doc, err := buildDocument(pages)
	if err != nil {
		return nil, err
	}

	return e.chunker.Chunk(doc), nil
}

type pageResult struct {
	num  int
	text string
	err  error
}

func (e *Extractor) collectPages(reader *pdf.Reader) []pageResult {
	total := reader.NumPage()
	pages := make([]pageResult, 0, total)

	for num := 1; num <= total; num++ {
		text, err := pageText(reader, num)
		if err != nil {
			e.logger.Warn("skipping unreadable pdf page",
				zap.Int("page", num),
				zap.Error(err),
			)
		}
		pages = append(pages, pageResult{num: num, text: text, err: err})
	}
	return pages
}

// pageText extracts one page's text, inserting line breaks between
// fragments whose vertical positions diverge. The pdf library panics on
// some malformed content streams; those are recovered into errors so
// one bad page does not lose the document.
func pageText(reader *pdf.Reader, num int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("page %d: content panic: %v", num, rec)
		}
	}()

	page := reader.Page(num)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d: missing page object", num)
	}

	var b strings.Builder
	lastY := math.NaN()
	for _, frag := range page.Content().Text {
		if !math.IsNaN(lastY) && math.Abs(frag.Y-lastY) > lineBreakThreshold {
			b.WriteByte('\n')
		}
		b.WriteString(frag.S)
		lastY = frag.Y
	}
	return b.String(), nil
}

// buildDocument normalizes and concatenates usable pages, each prefixed
// with a page marker. Failed and near-empty pages are dropped.
func buildDocument(pages []pageResult) (string, error) {
	kept := make([]string, 0, len(pages))
	for _, p := range pages {
		if p.err != nil {
			continue
		}
		text := normalizeWhitespace(p.text)
		if len(text) <= minPageLen {
			continue
		}
		kept = append(kept, fmt.Sprintf("[Página %d]\n%s", p.num, text))
	}

	if len(kept) == 0 {
		return "", fmt.Errorf("no usable pages: %w", domain.ErrExtraction)
	}
	return strings.Join(kept, "\n\n"), nil
}

var (
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)
)

// normalizeWhitespace collapses runs of spaces and caps consecutive
// newlines at two.
func normalizeWhitespace(s string) string {
	s = spaceRuns.ReplaceAllString(s, " ")
	s = newlineRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
