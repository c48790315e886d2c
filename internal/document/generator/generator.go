// Package generator renders templates into canonical, hashed document text.
// It performs no I/O.
package generator

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"signet/internal/document/models"
	"signet/internal/document/template"
	dErrors "signet/pkg/domain-errors"
)

const (
	footerMarker = "\n\n----- INTEGRITY -----\n"
	hashLabel    = "Content-SHA256: "
)

var placeholderRE = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// TemplateSource resolves templates by type code.
type TemplateSource interface {
	Lookup(typeCode models.DocumentType) (template.Template, error)
}

// Output is a generated document. CanonicalHash covers the canonical body
// only; Text is the body followed by the integrity footer.
type Output struct {
	Text            string
	CanonicalHash   string
	TemplateVersion string
	ValidFor        time.Duration
}

type Generator struct {
	templates TemplateSource
}

func New(templates TemplateSource) *Generator {
	return &Generator{templates: templates}
}

// Generate substitutes variables into the template for typeCode. Missing
// variables render as empty strings. Returns CodeNotFound for unknown types.
func (g *Generator) Generate(typeCode models.DocumentType, variables map[string]string) (*Output, error) {
	tmpl, err := g.templates.Lookup(typeCode)
	if err != nil {
		return nil, err
	}

	body := Canonicalize(Substitute(tmpl.Body, variables))
	hash := Hash(body)

	return &Output{
		Text:            body + footer(tmpl, hash),
		CanonicalHash:   hash,
		TemplateVersion: tmpl.Version,
		ValidFor:        tmpl.ValidFor,
	}, nil
}

// Substitute replaces every {{key}} with variables[key]. Substitution is a
// single pass: values containing placeholders are not expanded again.
func Substitute(body string, variables map[string]string) string {
	return placeholderRE.ReplaceAllStringFunc(body, func(m string) string {
		match := placeholderRE.FindStringSubmatch(m)
		if len(match) != 2 {
			return ""
		}
		return variables[match[1]]
	})
}

func footer(tmpl template.Template, hash string) string {
	var b strings.Builder
	b.WriteString(footerMarker)
	fmt.Fprintf(&b, "Document-Type: %s\n", tmpl.TypeCode)
	if tmpl.Version != "" {
		fmt.Fprintf(&b, "Template-Version: %s\n", tmpl.Version)
	}
	b.WriteString(hashLabel + hash + "\n")
	return b.String()
}

// Verify checks that text's body still hashes to expectedHash and that the
// footer records the same hash. Any mismatch is a conflict.
func Verify(text, expectedHash string) error {
	idx := strings.LastIndex(text, footerMarker)
	if idx < 0 {
		return dErrors.New(dErrors.CodeConflict, "document text has no integrity footer")
	}
	body, foot := text[:idx], text[idx+len(footerMarker):]
	if Hash(body) != expectedHash {
		return dErrors.New(dErrors.CodeConflict, "document content does not match its canonical hash")
	}
	if !strings.Contains(foot, hashLabel+expectedHash+"\n") {
		return dErrors.New(dErrors.CodeConflict, "document footer does not match its canonical hash")
	}
	return nil
}
