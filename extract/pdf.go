package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrEncrypted marks password protected documents so callers can map
// them to the authentication_error taxonomy entry.
type ErrEncrypted struct {
	Path string
}

func (e *ErrEncrypted) Error() string {
	return fmt.Sprintf("pdf %s is encrypted", e.Path)
}

var (
	pdfSpaceRunRe   = regexp.MustCompile(`[ \t]+`)
	pdfNewlineRunRe = regexp.MustCompile(`\n{3,}`)
)

// PDFFile extracts the text of every page of the PDF at path, joined
// by blank lines, along with the page count and the optional document
// information fields. Encrypted documents return *ErrEncrypted; any
// structural failure, including parser panics, is returned as a plain
// error.
func PDFFile(path string) (text string, meta map[string]interface{}, err error) {
	// The underlying parser panics on malformed cross reference tables
	// and streams rather than returning errors.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading pdf %s: %v", path, r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "encrypt") ||
			strings.Contains(strings.ToLower(err.Error()), "password") {
			return "", nil, &ErrEncrypted{Path: path}
		}
		return "", nil, fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer f.Close()

	pageCount := reader.NumPage()

	var pages []string
	for i := 1; i <= pageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", nil, fmt.Errorf("extracting page %d of %s: %w", i, path, err)
		}
		if pageText = strings.TrimSpace(pageText); pageText != "" {
			pages = append(pages, pageText)
		}
	}

	text = strings.Join(pages, "\n\n")
	text = pdfSpaceRunRe.ReplaceAllString(text, " ")
	text = pdfNewlineRunRe.ReplaceAllString(text, "\n\n")

	meta = map[string]interface{}{MetaPageCount: pageCount}
	addDocInfo(reader, meta)

	return text, meta, nil
}

// addDocInfo copies the optional document information dictionary fields
// into the metadata map.
func addDocInfo(reader *pdf.Reader, meta map[string]interface{}) {
	// Reading the trailer of a damaged file can panic as well; the doc
	// info is optional so swallow and keep the extracted text.
	defer func() { _ = recover() }()

	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return
	}

	for key, metaKey := range map[string]string{
		"Title":        MetaTitle,
		"Subject":      MetaSubject,
		"Author":       MetaAuthor,
		"CreationDate": MetaCreated,
		"ModDate":      MetaModified,
	} {
		if v := info.Key(key); v.Kind() == pdf.String {
			if s := strings.TrimSpace(v.RawString()); s != "" {
				meta[metaKey] = s
			}
		}
	}
}
