// Package pdftext extracts text from PDF documents (card brochures, fee
// schedules, key-fact statements). pdfcpu has no direct text API, so pages
// are exported as content streams and string literals are pulled out of the
// text-show operators; pages with no literals fall back to the raw stream.
package pdftext

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Result is the extracted text of one document.
type Result struct {
	PageCount int
	Pages     []string
	Text      string
}

// Extract converts PDF bytes to plain text. Pages are joined with blank
// lines in page order. Unreadable pages contribute empty text rather than
// failing the document.
func Extract(ctx context.Context, data []byte) (*Result, error) {
	if len(data) == 0 {
		return nil, eris.New("pdftext: empty document")
	}

	workDir, err := os.MkdirTemp("", "pdftext-*")
	if err != nil {
		return nil, eris.Wrap(err, "pdftext: temp dir")
	}
	defer os.RemoveAll(workDir) //nolint:errcheck

	docPath := filepath.Join(workDir, "doc.pdf")
	if err := os.WriteFile(docPath, data, 0o600); err != nil {
		return nil, eris.Wrap(err, "pdftext: write temp pdf")
	}

	pdfCtx, err := api.ReadContextFile(docPath)
	if err != nil {
		return nil, eris.Wrap(err, "pdftext: read pdf")
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(workDir, "content")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "pdftext: content dir")
	}

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(docPath, outDir, nil, conf); err != nil {
		zap.L().Warn("pdf content extraction failed", zap.Error(err))
		return &Result{PageCount: pageCount, Pages: make([]string, pageCount)}, nil
	}

	pageTexts := make(map[int]string)
	entries, _ := os.ReadDir(outDir)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "pdftext: extract")
		}

		var pageNum int
		name := entry.Name()
		if _, serr := fmt.Sscanf(name, "Content_page_%d", &pageNum); serr != nil {
			if _, serr = fmt.Sscanf(name, "page_%d", &pageNum); serr != nil {
				continue
			}
		}
		raw, rerr := os.ReadFile(filepath.Join(outDir, name))
		if rerr != nil {
			continue
		}
		pageTexts[pageNum] = decodeContent(string(raw))
	}

	pages := make([]string, pageCount)
	var nonEmpty []string
	for n := 1; n <= pageCount; n++ {
		pages[n-1] = pageTexts[n]
		if pages[n-1] != "" {
			nonEmpty = append(nonEmpty, pages[n-1])
		}
	}

	return &Result{
		PageCount: pageCount,
		Pages:     pages,
		Text:      strings.Join(nonEmpty, "\n\n"),
	}, nil
}

// decodeContent pulls string literals out of a PDF content stream. Literals
// appear parenthesized ahead of the Tj/TJ text-show operators; escaped
// parentheses and backslashes inside them are unescaped. A stream with no
// literals is returned as-is, trimmed.
func decodeContent(stream string) string {
	var out strings.Builder
	depth := 0
	escaped := false
	var literal strings.Builder

	for _, r := range stream {
		if depth == 0 {
			if r == '(' {
				depth = 1
				literal.Reset()
			}
			continue
		}
		if escaped {
			switch r {
			case 'n':
				literal.WriteByte('\n')
			case 't':
				literal.WriteByte('\t')
			default:
				literal.WriteRune(r)
			}
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '(':
			depth++
			literal.WriteRune(r)
		case ')':
			depth--
			if depth == 0 {
				if out.Len() > 0 {
					out.WriteByte(' ')
				}
				out.WriteString(literal.String())
			} else {
				literal.WriteRune(r)
			}
		default:
			literal.WriteRune(r)
		}
	}

	text := strings.TrimSpace(out.String())
	if text == "" {
		return strings.TrimSpace(stream)
	}
	return strings.Join(strings.Fields(text), " ")
}
