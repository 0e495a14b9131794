// Package extract turns uploaded documents into plain text.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

var (
	ErrTooLarge        = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEmpty           = errors.New("no text could be extracted")
)

const (
	DefaultMaxBytes    = 10 << 20
	DefaultMaxChars    = 50000
	DefaultMaxPDFPages = 50
)

type Document struct {
	Content  string `json:"content"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize"`
	IsImage  bool   `json:"isImage"`
}

type Extractor struct {
	MaxBytes    int64
	MaxChars    int
	MaxPDFPages int
}

func New(maxBytes int64, maxChars, maxPDFPages int) *Extractor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if maxPDFPages <= 0 {
		maxPDFPages = DefaultMaxPDFPages
	}
	return &Extractor{MaxBytes: maxBytes, MaxChars: maxChars, MaxPDFPages: maxPDFPages}
}

type kind int

const (
	kindUnsupported kind = iota
	kindText
	kindPDF
)

// Accept checks size and declared type without looking at the content, so
// oversized or unsupported uploads are refused before they are read in full.
func (e *Extractor) Accept(size int64, declaredMIME, filename string) error {
	if size > e.MaxBytes {
		return fmt.Errorf("%w: maximum size is %d bytes", ErrTooLarge, e.MaxBytes)
	}
	if declaredKind(declaredMIME, filename) == kindUnsupported {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, declaredMIME)
	}
	return nil
}

// Extract validates the upload and returns its text, capped at MaxChars.
func (e *Extractor) Extract(data []byte, declaredMIME, filename string) (Document, error) {
	if err := e.Accept(int64(len(data)), declaredMIME, filename); err != nil {
		return Document{}, err
	}

	want := declaredKind(declaredMIME, filename)
	detected := mimetype.Detect(data)
	if sniffedKind(detected) != want {
		return Document{}, fmt.Errorf("%w: content looks like %s", ErrUnsupportedType, detected.String())
	}

	var (
		text     string
		fileType string
		err      error
	)
	switch want {
	case kindPDF:
		fileType = "application/pdf"
		text, err = e.pdfText(data)
		if err != nil {
			return Document{}, err
		}
	default:
		fileType = textType(declaredMIME, filename)
		text = strings.ToValidUTF8(string(data), "")
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Document{}, ErrEmpty
	}

	return Document{
		Content:  truncateRunes(text, e.MaxChars),
		FileType: fileType,
		FileSize: int64(len(data)),
	}, nil
}

func (e *Extractor) pdfText(data []byte) (text string, err error) {
	// the pdf package panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("failed to parse pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var b strings.Builder
	pages := r.NumPage()
	if pages > e.MaxPDFPages {
		pages = e.MaxPDFPages
	}
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= pages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := p.Font(name)
				fonts[name] = &f
			}
		}
		pageText, err := p.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("failed to read pdf page %d: %w", i, err)
		}
		b.WriteString(pageText)
		b.WriteString("\n")
		// stop early once we have more than will be kept
		if b.Len() > e.MaxChars*utf8.UTFMax {
			break
		}
	}
	return b.String(), nil
}

func declaredKind(declaredMIME, filename string) kind {
	mt, _, err := mime.ParseMediaType(declaredMIME)
	if err != nil {
		mt = ""
	}
	switch mt {
	case "application/pdf":
		return kindPDF
	case "text/plain", "text/markdown", "text/x-markdown":
		return kindText
	case "", "application/octet-stream":
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".md", ".markdown", ".txt":
			return kindText
		case ".pdf":
			return kindPDF
		}
	}
	return kindUnsupported
}

func sniffedKind(m *mimetype.MIME) kind {
	switch {
	case m.Is("application/pdf"):
		return kindPDF
	case m.Is("text/plain"):
		return kindText
	}
	// markdown and other plain text variants detect as text/plain or a child of it
	for p := m.Parent(); p != nil; p = p.Parent() {
		if p.Is("text/plain") {
			return kindText
		}
	}
	return kindUnsupported
}

func textType(declaredMIME, filename string) string {
	mt, _, _ := mime.ParseMediaType(declaredMIME)
	if mt == "text/markdown" || mt == "text/x-markdown" {
		return "text/markdown"
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".md", ".markdown":
		return "text/markdown"
	}
	return "text/plain"
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
