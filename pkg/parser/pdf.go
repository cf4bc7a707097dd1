package parser

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/Dinesh0401/RAG-Chatbot/internal/models"
)

// ErrNotPDF reports a byte stream that cannot be opened as a PDF at all.
// Callers treat it as "skip this file", not as a fatal pipeline error.
var ErrNotPDF = errors.New("not a readable PDF")

// Parser extracts per-page text from in-memory PDF bytes.
type Parser struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger}
}

// Parse returns one PageUnit per page, in page order. A page whose text
// cannot be extracted contributes an empty-text unit rather than failing the
// whole file. Page numbers are 1-indexed.
func (p *Parser) Parse(filename string, data []byte) ([]models.PageUnit, error) {
	reader, err := openReader(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotPDF, filename, err)
	}

	numPages := reader.NumPage()
	pages := make([]models.PageUnit, 0, numPages)

	for i := 1; i <= numPages; i++ {
		pages = append(pages, models.PageUnit{
			Text:   p.pageText(reader, filename, i),
			Source: filename,
			Page:   i,
		})
	}

	return pages, nil
}

// openReader isolates the underlying library, which panics rather than
// returning an error on some malformed cross-reference tables.
func openReader(data []byte) (reader *pdf.Reader, err error) {
	defer func() {
		if r := recover(); r != nil {
			reader = nil
			err = fmt.Errorf("%v", r)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

func (p *Parser) pageText(reader *pdf.Reader, filename string, num int) (text string) {
	// The underlying reader panics on some malformed page trees; a bad page
	// must not take down the rest of the file.
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("page extraction panicked",
				zap.String("source", filename), zap.Int("page", num), zap.Any("cause", r))
			text = ""
		}
	}()

	page := reader.Page(num)
	if page.V.IsNull() {
		return ""
	}

	text, err := page.GetPlainText(nil)
	if err != nil {
		p.logger.Warn("page extraction failed",
			zap.String("source", filename), zap.Int("page", num), zap.Error(err))
		return ""
	}
	return text
}
