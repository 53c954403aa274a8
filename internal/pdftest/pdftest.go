// Package pdftest builds small, well-formed PDF files for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"strings"
)

// Options describes the document to build.
type Options struct {
	// Pages holds the text drawn on each page, one entry per page.
	Pages []string
	// CreationDate and ModDate are written verbatim into the Info dictionary,
	// e.g. "D:20190314120000Z".
	CreationDate string
	ModDate      string
	// Encrypted adds a Standard security handler whose user password is not
	// empty, so readers without the password cannot open the file.
	Encrypted bool
	// MinSize pads the file with a comment until it is at least this long.
	MinSize int
}

// Build renders opts as PDF bytes with a correct cross-reference table.
func Build(opts Options) []byte {
	out := build(opts, -1)
	if short := opts.MinSize - len(out); short > 0 {
		out = build(opts, max(short-2, 0))
	}
	return out
}

func build(opts Options, pad int) []byte {
	pages := opts.Pages
	if len(pages) == 0 {
		pages = []string{""}
	}

	var objects []string
	add := func(body string) int {
		objects = append(objects, body)
		return len(objects)
	}

	catalog := add("") // patched below
	pagesObj := add("")
	font := add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	kids := make([]string, 0, len(pages))
	for _, text := range pages {
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", escape(text))
		contentObj := add(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
		pageObj := add(fmt.Sprintf(
			"<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>",
			pagesObj, font, contentObj))
		kids = append(kids, fmt.Sprintf("%d 0 R", pageObj))
	}
	objects[catalog-1] = fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesObj)
	objects[pagesObj-1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(kids))

	info := 0
	if opts.CreationDate != "" || opts.ModDate != "" {
		var b strings.Builder
		b.WriteString("<< /Producer (pdftest)")
		if opts.CreationDate != "" {
			fmt.Fprintf(&b, " /CreationDate (%s)", opts.CreationDate)
		}
		if opts.ModDate != "" {
			fmt.Fprintf(&b, " /ModDate (%s)", opts.ModDate)
		}
		b.WriteString(" >>")
		info = add(b.String())
	}

	encrypt := 0
	if opts.Encrypted {
		encrypt = add("<< /Filter /Standard /V 1 /R 2 /Length 40 /P -44 " +
			"/O <" + strings.Repeat("6f", 32) + "> /U <" + strings.Repeat("75", 32) + "> >>")
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	if pad >= 0 {
		buf.WriteString("%" + strings.Repeat("x", pad) + "\n")
	}
	offsets := make([]int, len(objects))
	for i, body := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R", len(objects)+1, catalog)
	if info != 0 {
		fmt.Fprintf(&buf, " /Info %d 0 R", info)
	}
	if encrypt != 0 {
		id := strings.Repeat("ab", 16)
		fmt.Fprintf(&buf, " /Encrypt %d 0 R /ID [<%s> <%s>]", encrypt, id, id)
	}
	fmt.Fprintf(&buf, " >>\nstartxref\n%d\n%%%%EOF\n", xref)
	return buf.Bytes()
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
