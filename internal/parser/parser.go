package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"document-qa/internal/models"
)

// Parser turns a source file into ordered pages.
type Parser interface {
	Parse(filePath string) ([]models.Page, error)
}

// DocumentParser dispatches on the file extension.
type DocumentParser struct{}

func New() *DocumentParser {
	return &DocumentParser{}
}

const defaultPageNumber = 1

var slideName = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// Parse reads filePath. A missing or unreadable path yields ErrSourceNotFound,
// malformed or unsupported content yields ErrParse.
func (p *DocumentParser) Parse(filePath string) (pages []models.Page, err error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", models.ErrSourceNotFound, filePath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", models.ErrSourceNotFound, filePath)
	}

	// the pdf reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: %s: %v", models.ErrParse, filePath, r)
		}
	}()

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		pages, err = parsePDF(filePath)
	case ".docx":
		pages, err = parseDOCX(filePath)
	case ".pptx":
		pages, err = parsePPTX(filePath)
	case ".xlsx":
		pages, err = parseSpreadsheet(filePath)
	case ".ods":
		pages, err = parseODS(filePath)
	case ".md", ".markdown":
		pages, err = parseMarkdown(filePath)
	case ".txt", "":
		pages, err = parseText(filePath)
	default:
		return nil, fmt.Errorf("%w: unsupported file format: %s", models.ErrParse, ext)
	}
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %s: %w", models.ErrSourceNotFound, filePath, err)
		}
		return nil, fmt.Errorf("%w: %s: %w", models.ErrParse, filePath, err)
	}

	for i := range pages {
		pages[i].Source = filePath
	}
	log.Debug().Str("file", filePath).Int("pages", len(pages)).Msg("parsed document")
	return pages, nil
}

func parsePDF(filePath string) ([]models.Page, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	var pages []models.Page
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, models.Page{Number: i, Text: pageText})
	}
	return pages, nil
}

func parseDOCX(filePath string) ([]models.Page, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content, err := extractXMLText(r.Editable().GetContent())
	if err != nil {
		return nil, err
	}
	return []models.Page{{Number: defaultPageNumber, Text: content}}, nil
}

// parsePPTX treats each slide as a page, numbered by its slide file.
func parsePPTX(filePath string) ([]models.Page, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []models.Page
	for _, file := range f.File {
		m := slideName.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])

		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		slideText, err := extractXMLText(string(data))
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", num, err)
		}
		pages = append(pages, models.Page{Number: num, Text: slideText})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}

// parseSpreadsheet renders each sheet as tab separated rows.
func parseSpreadsheet(filePath string) ([]models.Page, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []models.Page
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheetName, err)
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Sheet: %s\n", sheetName)
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteString("\n")
		}
		pages = append(pages, models.Page{Number: sheetNum + 1, Text: b.String()})
	}
	return pages, nil
}

// parseODS reads content.xml of an OpenDocument spreadsheet. excelize only
// understands OOXML, so the table markup is walked directly.
func parseODS(filePath string) ([]models.Page, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var content []byte
	for _, file := range f.File {
		if file.Name != "content.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		content, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
	}
	if content == nil {
		return nil, errors.New("content.xml not found")
	}

	dec := xml.NewDecoder(bytes.NewReader(content))
	var (
		pages []models.Page
		b     strings.Builder
		cells []string
		cell  strings.Builder
		inP   bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "table":
				b.Reset()
				for _, a := range t.Attr {
					if a.Name.Local == "name" {
						fmt.Fprintf(&b, "Sheet: %s\n", a.Value)
					}
				}
			case "table-row":
				cells = cells[:0]
			case "table-cell":
				cell.Reset()
			case "p":
				if cell.Len() > 0 {
					cell.WriteString(" ")
				}
				inP = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				inP = false
			case "table-cell":
				cells = append(cells, cell.String())
			case "table-row":
				row := strings.TrimRight(strings.Join(cells, "\t"), "\t")
				if row != "" {
					b.WriteString(row)
					b.WriteString("\n")
				}
			case "table":
				pages = append(pages, models.Page{Number: len(pages) + 1, Text: b.String()})
			}
		case xml.CharData:
			if inP {
				cell.Write(t)
			}
		}
	}
	return pages, nil
}

func parseText(filePath string) ([]models.Page, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return []models.Page{{Number: defaultPageNumber, Text: string(data)}}, nil
}

func parseMarkdown(filePath string) ([]models.Page, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	plain, err := markdownToText(data)
	if err != nil {
		return nil, err
	}
	return []models.Page{{Number: defaultPageNumber, Text: plain}}, nil
}

// markdownToText drops markdown syntax and keeps the readable text, one block per paragraph.
func markdownToText(src []byte) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteString("\n")
				}
			}
			return ast.WalkContinue, nil
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(src))
				}
				b.WriteString("\n")
			}
			return ast.WalkSkipChildren, nil
		}
		if !entering && n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
			if n.NextSibling() != nil && !strings.HasSuffix(b.String(), "\n\n") {
				if strings.HasSuffix(b.String(), "\n") {
					b.WriteString("\n")
				} else {
					b.WriteString("\n\n")
				}
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}

// extractXMLText collects the text runs of office XML (w:t in docx, a:t in pptx)
// and ends every paragraph (w:p, a:p) with a newline.
func extractXMLText(content string) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader([]byte(content)))
	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteString("\t")
			case "br":
				b.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}
