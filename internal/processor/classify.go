package processor

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/finsurehub/finsurehub/internal/config"
)

// Classifier 基于关键词子串匹配，保险优先于金融
type Classifier struct {
	insurance      []string
	finance        []string
	insuranceLabel string
	financeLabel   string
	defaultLabel   string
}

func NewClassifier(in config.IngestSettings) *Classifier {
	title := cases.Title(language.English)
	label := func(s, def string) string {
		s = strings.TrimSpace(s)
		if s == "" {
			s = def
		}
		return title.String(s)
	}
	return &Classifier{
		insurance:      lowerAll(orDefault(in.InsuranceKeywords, config.DefaultInsuranceKeywords)),
		finance:        lowerAll(orDefault(in.FinanceKeywords, config.DefaultFinanceKeywords)),
		insuranceLabel: label(in.InsuranceCategory, "Insurance"),
		financeLabel:   label(in.FinanceCategory, "Finance"),
		defaultLabel:   label(in.DefaultCategory, "General"),
	}
}

func (c *Classifier) Classify(title, content string) string {
	text := strings.ToLower(title + " " + content)
	if containsAny(text, c.insurance) {
		return c.insuranceLabel
	}
	if containsAny(text, c.finance) {
		return c.financeLabel
	}
	return c.defaultLabel
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(strings.TrimSpace(s)))
	}
	return out
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}
