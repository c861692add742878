package plan

import (
	"strings"
)

// Site archetypes produced by Classify.
const (
	SiteTypeEcommerce = "ecommerce"
	SiteTypePortfolio = "portfolio"
	SiteTypeLanding   = "landing"
)

// Plan is the structured description of the page to generate. It is built
// once per prompt by Classify and handed to a generator as-is.
type Plan struct {
	SiteType string   `json:"site_type"`
	Sections []string `json:"sections"`
	Style    string   `json:"style"`
	Images   []string `json:"images,omitempty"`
	Docs     []string `json:"docs,omitempty"`
}

// Archetype is one row of the classification table.
type Archetype struct {
	SiteType string
	Keywords []string
	Sections []string
	Style    string
}

// archetypes is walked in order; the first row with a matching keyword wins.
var archetypes = []Archetype{
	{
		SiteType: SiteTypeEcommerce,
		Keywords: []string{"tienda", "shop", "store", "ecommerce", "compra", "producto"},
		Sections: []string{"hero", "products", "pricing", "contact"},
		Style:    "modern ecommerce",
	},
	{
		SiteType: SiteTypePortfolio,
		Keywords: []string{"portfolio", "portafolio", "proyectos", "trabajos", "cv"},
		Sections: []string{"hero", "projects", "about", "contact"},
		Style:    "minimal modern",
	},
}

var defaultArchetype = Archetype{
	SiteType: SiteTypeLanding,
	Sections: []string{"hero", "features", "pricing", "contact"},
	Style:    "modern saas",
}

// Archetypes returns a copy of the classification table in match order.
func Archetypes() []Archetype {
	out := make([]Archetype, len(archetypes))
	copy(out, archetypes)
	return out
}

// Classify maps a free-text prompt to a Plan by plain substring lookup
// against the archetype table. Prompts matching nothing, including the empty
// string, get the landing plan.
func Classify(prompt string, images, docs []string) Plan {
	lower := strings.ToLower(prompt)
	for _, a := range archetypes {
		for _, kw := range a.Keywords {
			if strings.Contains(lower, kw) {
				return a.plan(images, docs)
			}
		}
	}
	return defaultArchetype.plan(images, docs)
}

func (a Archetype) plan(images, docs []string) Plan {
	return Plan{
		SiteType: a.SiteType,
		Sections: append([]string(nil), a.Sections...),
		Style:    a.Style,
		Images:   nonEmpty(images),
		Docs:     nonEmpty(docs),
	}
}

func nonEmpty(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	return append([]string(nil), in...)
}
