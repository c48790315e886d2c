// Package template holds the read-only registry of legal document templates.
package template

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"signet/internal/document/models"
	dErrors "signet/pkg/domain-errors"
)

//go:embed templates.yaml
var defaultTemplates []byte

// Template is an immutable document template. Body contains {{key}}
// placeholders.
type Template struct {
	TypeCode models.DocumentType
	Title    string
	Version  string
	Body     string
	// ValidFor is how long a signed instance stays valid. Zero means no expiry.
	ValidFor time.Duration
}

// Registry resolves type codes to templates. It is built once at startup and
// never mutated, so concurrent readers need no locking.
type Registry struct {
	templates map[models.DocumentType]Template
	types     []models.DocumentType
}

// New builds a registry, rejecting duplicate type codes and empty bodies.
func New(templates ...Template) (*Registry, error) {
	r := &Registry{templates: make(map[models.DocumentType]Template, len(templates))}
	for _, t := range templates {
		code, err := models.ParseDocumentType(string(t.TypeCode))
		if err != nil {
			return nil, err
		}
		t.TypeCode = code
		if strings.TrimSpace(t.Body) == "" {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("template %s has an empty body", code))
		}
		if _, dup := r.templates[code]; dup {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("template %s registered twice", code))
		}
		r.templates[code] = t
		r.types = append(r.types, code)
	}
	sort.Slice(r.types, func(i, j int) bool { return r.types[i] < r.types[j] })
	return r, nil
}

// Default returns the registry built from the embedded template set.
func Default() (*Registry, error) {
	return Load(bytes.NewReader(defaultTemplates))
}

// LoadFile reads a template set from path; an empty path means Default.
func LoadFile(path string) (*Registry, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open templates: %w", err)
	}
	defer f.Close()
	return Load(f)
}

type templateFile struct {
	Templates []struct {
		TypeCode string `yaml:"type_code"`
		Title    string `yaml:"title"`
		Version  string `yaml:"version"`
		ValidFor string `yaml:"valid_for"`
		Body     string `yaml:"body"`
	} `yaml:"templates"`
}

// Load parses a YAML template set.
func Load(r io.Reader) (*Registry, error) {
	var file templateFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	templates := make([]Template, 0, len(file.Templates))
	for _, t := range file.Templates {
		var validFor time.Duration
		if t.ValidFor != "" {
			d, err := time.ParseDuration(t.ValidFor)
			if err != nil {
				return nil, fmt.Errorf("template %s: invalid valid_for: %w", t.TypeCode, err)
			}
			validFor = d
		}
		templates = append(templates, Template{
			TypeCode: models.DocumentType(t.TypeCode),
			Title:    t.Title,
			Version:  t.Version,
			Body:     t.Body,
			ValidFor: validFor,
		})
	}
	return New(templates...)
}

// Lookup returns the template for typeCode or a CodeNotFound error.
func (r *Registry) Lookup(typeCode models.DocumentType) (Template, error) {
	t, ok := r.templates[typeCode]
	if !ok {
		return Template{}, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("no template registered for %s", typeCode))
	}
	return t, nil
}

// Types returns the registered type codes in sorted order.
func (r *Registry) Types() []models.DocumentType {
	return append([]models.DocumentType(nil), r.types...)
}
