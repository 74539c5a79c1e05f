// Package textextract turns an uploaded document into raw text.
package textextract

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

const (
	MIMEText = "text/plain"
	MIMEPDF  = "application/pdf"
	MIMEDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEDOC  = "application/msword"
	MIMERTF  = "application/rtf"
	MIMEODT  = "application/vnd.oasis.opendocument.text"

	// MaxSize bounds uploads accepted for extraction.
	MaxSize = 10 << 20
)

// Document is an uploaded file.
type Document struct {
	Name string
	MIME string
	Data []byte
}

// ExtractionError reports a document that could not be turned into text.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return "text extraction: " + e.Reason
	}
	return fmt.Sprintf("text extraction: %s: %v", e.Reason, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func failed(reason string, err error) error {
	return &ExtractionError{Reason: reason, Err: err}
}

// Extractor is the text extraction boundary.
type Extractor interface {
	Extract(doc Document) (string, error)
}

// Default handles plain text, PDF and DOCX natively and hands older office formats to docconv.
type Default struct{}

func (Default) Extract(doc Document) (string, error) {
	return Extract(doc)
}

func Extract(doc Document) (string, error) {
	if len(doc.Data) == 0 {
		return "", failed("document is empty", nil)
	}
	if len(doc.Data) > MaxSize {
		return "", failed(fmt.Sprintf("document is larger than %d MB", MaxSize>>20), nil)
	}

	mimeType := DetectMIME(doc)

	var (
		text string
		err  error
	)
	switch mimeType {
	case MIMEText:
		text, err = plainText(doc.Data)
	case MIMEPDF:
		text, err = pdfText(doc.Data)
	case MIMEDOCX:
		text, err = docxText(doc.Data)
	case MIMEDOC, MIMERTF, MIMEODT:
		text, err = convertText(doc.Data, mimeType)
	default:
		return "", failed(fmt.Sprintf("unsupported file type %q", mimeType), nil)
	}
	if err != nil {
		return "", err
	}

	text = normalizeSpace(text)
	if text == "" {
		return "", failed("no text found in document", nil)
	}

	return text, nil
}

// DetectMIME prefers the declared type, then the file extension, then content sniffing.
func DetectMIME(doc Document) string {
	if declared := baseMIME(doc.MIME); declared != "" && declared != "application/octet-stream" {
		return declared
	}

	switch strings.ToLower(filepath.Ext(doc.Name)) {
	case ".txt", ".md":
		return MIMEText
	case ".pdf":
		return MIMEPDF
	case ".docx":
		return MIMEDOCX
	case ".doc":
		return MIMEDOC
	case ".rtf":
		return MIMERTF
	case ".odt":
		return MIMEODT
	}

	if byExt := baseMIME(docconv.MimeTypeByExtension(doc.Name)); byExt != "" && byExt != "application/octet-stream" {
		return byExt
	}

	return baseMIME(http.DetectContentType(doc.Data))
}

func baseMIME(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return strings.ToLower(value)
	}
	if mediaType == "text/rtf" {
		return MIMERTF
	}
	return mediaType
}

func plainText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", failed("text file is not valid UTF-8", nil)
	}
	return string(data), nil
}

func pdfText(data []byte) (text string, err error) {
	// The pdf reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", failed("unreadable pdf", fmt.Errorf("%v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", failed("unreadable pdf", err)
	}

	var builder strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		builder.WriteString(pageText)
		builder.WriteString("\n")
	}

	return builder.String(), nil
}

func docxText(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", failed("unreadable docx", err)
	}
	defer doc.Close()

	text, err := wordprocessingText(doc.Editable().GetContent())
	if err != nil {
		return "", failed("unreadable docx", err)
	}
	return text, nil
}

// wordprocessingText collects w:t runs from document.xml, one line per paragraph.
func wordprocessingText(content string) (string, error) {
	decoder := xml.NewDecoder(strings.NewReader(content))

	var (
		builder strings.Builder
		inText  bool
	)
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				builder.WriteString(" ")
			case "br":
				builder.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				builder.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				builder.Write(t)
			}
		}
	}

	return builder.String(), nil
}

func convertText(data []byte, mimeType string) (string, error) {
	res, err := docconv.Convert(bytes.NewReader(data), mimeType, false)
	if err != nil {
		return "", failed("unreadable document", err)
	}
	return res.Body, nil
}

func normalizeSpace(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
