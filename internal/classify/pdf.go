package classify

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// inspectPages is how many leading pages are read for text.
const inspectPages = 3

// PDFInfo is what the harvester needs to know about a PDF.
type PDFInfo struct {
	Encrypted    bool
	Pages        int
	Text         string
	CreationDate string
	ModDate      string
}

// InspectPDF parses b and extracts the text of its first pages and the
// Info dictionary dates. A document that cannot be opened without a
// password is reported as Encrypted with a nil error.
func InspectPDF(b []byte) (info PDFInfo, err error) {
	defer func() {
		// The pdf package panics on some malformed object streams.
		if r := recover(); r != nil {
			info = PDFInfo{}
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) || bytes.Contains(b, []byte("/Encrypt")) {
			return PDFInfo{Encrypted: true}, nil
		}
		return PDFInfo{}, fmt.Errorf("parse pdf: %w", err)
	}

	trailer := reader.Trailer()
	info.Encrypted = trailer.Key("Encrypt").Kind() != pdf.Null
	info.Pages = reader.NumPage()
	docInfo := trailer.Key("Info")
	info.CreationDate = docInfo.Key("CreationDate").Text()
	info.ModDate = docInfo.Key("ModDate").Text()

	var text strings.Builder
	for i := 1; i <= info.Pages && i <= inspectPages; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			return PDFInfo{}, fmt.Errorf("extract text from page %d: %w", i, err)
		}
		text.WriteString(pageText)
		text.WriteByte('\n')
	}
	info.Text = text.String()
	return info, nil
}
