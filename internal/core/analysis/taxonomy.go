package analysis

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

// KeywordGroup maps a set of substrings to one canonical finding type.
type KeywordGroup struct {
	Type     domain.FindingType `yaml:"type"`
	Keywords []string           `yaml:"keywords"`
}

// Taxonomy is an ordered keyword table. The first group with a keyword
// contained in the folded input wins.
type Taxonomy struct {
	groups []KeywordGroup
}

var defaultTaxonomyGroups = []KeywordGroup{
	{
		Type:     domain.FindingCaries,
		Keywords: []string{"cárie", "carie", "caries", "cavity", "cavidade", "lesão cariosa", "desmineraliza", "decay"},
	},
	{
		Type: domain.FindingPeriodontal,
		Keywords: []string{
			"periodont", "gengiv", "gingiv", "perda óssea", "bone loss", "reabsorção óssea",
			"cálculo", "tártaro", "calculus", "bolsa", "furca",
		},
	},
	{
		Type: domain.FindingPeriapical,
		Keywords: []string{
			"periapical", "apical", "granuloma", "cisto", "cyst", "abscesso", "abscess",
			"endodont", "canal radicular", "root canal", "reabsorção radicular",
		},
	},
	{
		Type:     domain.FindingImplant,
		Keywords: []string{"implant", "osseointegra", "pilar protético", "abutment"},
	},
	{
		Type:     domain.FindingFracture,
		Keywords: []string{"fratura", "fracture", "trinca", "crack", "fissura radicular"},
	},
	{
		Type: domain.FindingOrthodontic,
		Keywords: []string{
			"ortodont", "orthodont", "má oclusão", "maloclus", "malocclusion", "apinhamento",
			"crowding", "diastema", "mordida cruzada", "crossbite", "incluso", "impactado", "impacted",
		},
	},
}

// DefaultTaxonomy returns the built-in table covering the six clinical
// modalities.
func DefaultTaxonomy() *Taxonomy {
	return NewTaxonomy(defaultTaxonomyGroups)
}

func NewTaxonomy(groups []KeywordGroup) *Taxonomy {
	folded := make([]KeywordGroup, 0, len(groups))
	for _, group := range groups {
		keywords := make([]string, 0, len(group.Keywords))
		for _, keyword := range group.Keywords {
			if k := foldText(keyword); k != "" {
				keywords = append(keywords, k)
			}
		}
		if len(keywords) == 0 {
			continue
		}
		folded = append(folded, KeywordGroup{Type: group.Type, Keywords: keywords})
	}
	return &Taxonomy{groups: folded}
}

// LoadTaxonomy reads a YAML document of the form
//
//	groups:
//	  - type: caries
//	    keywords: [cárie, cavity]
func LoadTaxonomy(r io.Reader) (*Taxonomy, error) {
	var doc struct {
		Groups []KeywordGroup `yaml:"groups"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode taxonomy yaml: %w", err)
	}
	if len(doc.Groups) == 0 {
		return nil, fmt.Errorf("taxonomy has no groups")
	}
	for i, group := range doc.Groups {
		if !isKnownFindingType(group.Type) {
			return nil, fmt.Errorf("taxonomy group %d: unknown finding type %q", i, group.Type)
		}
	}
	return NewTaxonomy(doc.Groups), nil
}

// Classify maps a free-text condition name to a canonical finding type.
func (t *Taxonomy) Classify(name string) domain.FindingType {
	folded := foldText(name)
	if folded == "" {
		return domain.FindingOther
	}
	for _, group := range t.groups {
		for _, keyword := range group.Keywords {
			if strings.Contains(folded, keyword) {
				return group.Type
			}
		}
	}
	return domain.FindingOther
}

func (t *Taxonomy) Groups() []KeywordGroup {
	out := make([]KeywordGroup, len(t.groups))
	copy(out, t.groups)
	return out
}

type severityGroup struct {
	severity domain.Severity
	keywords []string
}

// Severe terms are checked first so that "moderada a severa" maps up.
var severityTable = []severityGroup{
	{domain.SeveritySevere, []string{"sever", "grave", "critic", "high", "alta", "alto", "avancad", "extens"}},
	{domain.SeverityModerate, []string{"moder", "medium", "media", "medio", "intermedi"}},
	{domain.SeverityMild, []string{"leve", "mild", "low", "baixa", "baixo", "inicial", "initial", "minimal", "incipiente"}},
}

// ClassifySeverity maps a free-text severity to leve/moderada/severa.
// Unrecognized values map to leve.
func ClassifySeverity(raw string) domain.Severity {
	folded := foldText(raw)
	for _, group := range severityTable {
		for _, keyword := range group.keywords {
			if strings.Contains(folded, keyword) {
				return group.severity
			}
		}
	}
	return domain.SeverityMild
}

func isKnownFindingType(t domain.FindingType) bool {
	for _, known := range domain.FindingTypes {
		if known == t {
			return true
		}
	}
	return false
}

// foldText lower-cases and strips diacritics so "Cárie" and "carie" match.
func foldText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		return s
	}
	return folded
}
