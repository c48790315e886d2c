// Package catalog maps compliance targets to the document types they require.
// It is loaded once at startup and read-only afterwards.
package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"signet/internal/compliance/models"
	docmodels "signet/internal/document/models"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type Catalog struct {
	requirements map[models.Target][]docmodels.DocumentType
	tiers        map[string]models.TierDescriptor
	tierCodes    []string
}

type catalogFile struct {
	RBACLevels    map[string][]string `yaml:"rbac_levels"`
	Actions       map[string][]string `yaml:"actions"`
	SecurityTiers []struct {
		Code        string   `yaml:"code"`
		DisplayName string   `yaml:"display_name"`
		Documents   []string `yaml:"documents"`
		Controls    []string `yaml:"controls"`
	} `yaml:"security_tiers"`
}

// Default returns the catalog built from the embedded requirement tables.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultCatalog))
}

// LoadFile reads a catalog from path; an empty path means Default.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func Load(r io.Reader) (*Catalog, error) {
	var file catalogFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c := &Catalog{
		requirements: make(map[models.Target][]docmodels.DocumentType),
		tiers:        make(map[string]models.TierDescriptor),
	}
	for code, docs := range file.RBACLevels {
		if err := c.add(models.KindRBACLevel, code, docs); err != nil {
			return nil, err
		}
	}
	for code, docs := range file.Actions {
		if err := c.add(models.KindAction, code, docs); err != nil {
			return nil, err
		}
	}
	for _, t := range file.SecurityTiers {
		code := strings.ToUpper(strings.TrimSpace(t.Code))
		if _, dup := c.tiers[code]; dup {
			return nil, fmt.Errorf("duplicate security tier %s", code)
		}
		if err := c.add(models.KindSecurityTier, code, t.Documents); err != nil {
			return nil, err
		}
		c.tiers[code] = models.TierDescriptor{
			TierCode:              code,
			DisplayName:           t.DisplayName,
			RequiredDocumentTypes: c.requirements[models.SecurityTier(code)],
			Controls:              append([]string{}, t.Controls...),
		}
		c.tierCodes = append(c.tierCodes, code)
	}
	sort.Strings(c.tierCodes)
	return c, nil
}

func (c *Catalog) add(kind models.TargetKind, code string, docs []string) error {
	target, err := models.ParseTarget(string(kind), code)
	if err != nil {
		return fmt.Errorf("catalog %s %q: %w", kind, code, err)
	}
	set := make(map[docmodels.DocumentType]struct{}, len(docs))
	for _, raw := range docs {
		t, err := docmodels.ParseDocumentType(raw)
		if err != nil {
			return fmt.Errorf("catalog %s: %w", target, err)
		}
		set[t] = struct{}{}
	}
	out := make([]docmodels.DocumentType, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	c.requirements[target] = out
	return nil
}

// RequiredDocuments returns the sorted, de-duplicated document types target
// requires. Unknown targets require nothing and yield an empty slice.
func (c *Catalog) RequiredDocuments(target models.Target) []docmodels.DocumentType {
	return append([]docmodels.DocumentType{}, c.requirements[target]...)
}

// Known reports whether target has an entry, even an empty one.
func (c *Catalog) Known(target models.Target) bool {
	_, ok := c.requirements[target]
	return ok
}

func (c *Catalog) SecurityTier(code string) (models.TierDescriptor, bool) {
	t, ok := c.tiers[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return models.TierDescriptor{}, false
	}
	return copyTier(t), true
}

// SecurityTiers lists every tier ordered by code.
func (c *Catalog) SecurityTiers() []models.TierDescriptor {
	out := make([]models.TierDescriptor, 0, len(c.tierCodes))
	for _, code := range c.tierCodes {
		out = append(out, copyTier(c.tiers[code]))
	}
	return out
}

// CheckTypes returns an error naming every required document type that known
// does not contain, so a catalog cannot demand a document nobody can draft.
func (c *Catalog) CheckTypes(known []docmodels.DocumentType) error {
	have := make(map[docmodels.DocumentType]bool, len(known))
	for _, t := range known {
		have[t] = true
	}
	missing := make(map[docmodels.DocumentType]bool)
	for _, docs := range c.requirements {
		for _, t := range docs {
			if !have[t] {
				missing[t] = true
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for t := range missing {
		names = append(names, string(t))
	}
	sort.Strings(names)
	return fmt.Errorf("catalog requires document types with no template: %s", strings.Join(names, ", "))
}

func copyTier(t models.TierDescriptor) models.TierDescriptor {
	t.RequiredDocumentTypes = append([]docmodels.DocumentType{}, t.RequiredDocumentTypes...)
	t.Controls = append([]string{}, t.Controls...)
	return t
}
