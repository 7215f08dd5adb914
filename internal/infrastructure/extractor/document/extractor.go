package document

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
)

const (
	mimePDF  = "application/pdf"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeZIP  = "application/zip"
	mimeText = "text/plain"
)

// Extractor turns downloaded bytes into plain text. The format is sniffed
// from the content, not taken from the declared content type.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	detected := mimetype.Detect(data)
	switch {
	case detected.Is(mimePDF):
		return extractPDF(data)
	case detected.Is(mimeXLSX), detected.Is(mimeZIP):
		return extractSpreadsheet(data)
	case isText(detected):
		return extractText(data, detected)
	default:
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "extract text", fmt.Errorf("detected %s", detected.String()))
	}
}

func isText(detected *mimetype.MIME) bool {
	for m := detected; m != nil; m = m.Parent() {
		if m.Is(mimeText) {
			return true
		}
	}
	return false
}

// extractText decodes text in the charset sniffed from the content. Only
// text/plain carries a charset; other text subtypes are read as UTF-8.
func extractText(data []byte, detected *mimetype.MIME) (string, error) {
	cset := "utf-8"
	if _, params, err := mime.ParseMediaType(detected.String()); err == nil && params["charset"] != "" {
		cset = strings.ToLower(params["charset"])
	}
	if cset == "utf-8" {
		data = bytes.TrimPrefix(data, utf8BOM)
		if utf8.Valid(data) {
			return string(data), nil
		}
		// Sniffing only looks at a prefix; fall back to Latin-1 for the rest.
		cset = "windows-1252"
	}

	enc, err := htmlindex.Get(cset)
	if err != nil {
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "extract text", fmt.Errorf("charset %s: %w", cset, err))
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "extract text", fmt.Errorf("decode %s: %w", cset, err))
	}
	return string(bytes.TrimPrefix(decoded, utf8BOM)), nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func extractPDF(data []byte) (text string, err error) {
	// The pdf reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", domain.WrapError(domain.ErrUnsupportedFormat, "read pdf", fmt.Errorf("%v", r))
		}
	}()

	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "open pdf", err)
	}
	var builder strings.Builder
	total := doc.NumPage()
	for page := 1; page <= total; page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("pdf page %d: %w", page, err)
		}
		builder.WriteString(content)
		builder.WriteString("\n")
	}
	return builder.String(), nil
}

// extractSpreadsheet renders every sheet as tab-separated rows.
func extractSpreadsheet(data []byte) (string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "open spreadsheet", err)
	}
	defer book.Close()

	var builder strings.Builder
	for _, sheet := range book.GetSheetList() {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		for _, row := range rows {
			builder.WriteString(strings.Join(row, "\t"))
			builder.WriteString("\n")
		}
	}
	return builder.String(), nil
}
