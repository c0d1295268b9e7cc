package export

import (
	"sort"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"

	apperrors "github.com/TFMV/ontograph/pkg/errors"
)

type declaration struct {
	property  string
	value     string
	important bool
}

type rule struct {
	selector cascadia.Sel
	decls    []declaration
	order    int
}

// Stylesheet holds one rule per selector in source order. Rules nested in
// @media (except print) and @supports blocks are flattened in.
type Stylesheet struct {
	rules []rule
}

// ParseStylesheet parses src. Selectors cascadia cannot compile and
// pseudo-element selectors are skipped.
func ParseStylesheet(src string) (*Stylesheet, error) {
	s := &Stylesheet{}
	if err := s.add(src); err != nil {
		return nil, err
	}
	return s, nil
}

// With returns a stylesheet holding s's rules followed by the rules of src.
func (s *Stylesheet) With(src string) (*Stylesheet, error) {
	out := &Stylesheet{rules: append([]rule(nil), s.rules...)}
	if err := out.add(src); err != nil {
		return nil, err
	}
	return out, nil
}

// Len is the number of parsed rules.
func (s *Stylesheet) Len() int {
	return len(s.rules)
}

func (s *Stylesheet) add(src string) error {
	if strings.TrimSpace(src) == "" {
		return nil
	}
	sheet, err := parser.Parse(src)
	if err != nil {
		return apperrors.NewValidation("invalid stylesheet: " + err.Error())
	}
	s.addRules(sheet.Rules)
	return nil
}

func (s *Stylesheet) addRules(rules []*css.Rule) {
	for _, r := range rules {
		switch r.Kind {
		case css.QualifiedRule:
			s.addRule(r)
		case css.AtRule:
			if applies(r) {
				s.addRules(r.Rules)
			}
		}
	}
}

func applies(r *css.Rule) bool {
	switch strings.TrimPrefix(strings.ToLower(r.Name), "@") {
	case "media":
		return !strings.Contains(strings.ToLower(r.Prelude), "print")
	case "supports":
		return true
	}
	return false
}

func (s *Stylesheet) addRule(r *css.Rule) {
	decls := convert(r.Declarations)
	if len(decls) == 0 {
		return
	}
	for _, text := range r.Selectors {
		sel, err := cascadia.Parse(strings.TrimSpace(text))
		if err != nil || sel.PseudoElement() != "" {
			continue
		}
		s.rules = append(s.rules, rule{selector: sel, decls: decls, order: len(s.rules)})
	}
}

func convert(in []*css.Declaration) []declaration {
	var out []declaration
	for _, d := range in {
		prop := strings.ToLower(strings.TrimSpace(d.Property))
		value := strings.TrimSpace(d.Value)
		if prop == "" || value == "" {
			continue
		}
		out = append(out, declaration{property: prop, value: value, important: d.Important})
	}
	return out
}

// parseDeclarations reads a style attribute. A malformed attribute yields
// no declarations.
func parseDeclarations(src string) []declaration {
	if strings.TrimSpace(src) == "" {
		return nil
	}
	decls, err := parser.ParseDeclarations(src)
	if err != nil {
		return nil
	}
	return convert(decls)
}

type match struct {
	decl        declaration
	specificity cascadia.Specificity
	order       int
}

// Match returns the declarations that apply to n. Important declarations
// win over normal ones, then higher specificity, then later source order.
func (s *Stylesheet) Match(n *html.Node) map[string]string {
	var matched []match
	for _, r := range s.rules {
		if !r.selector.Match(n) {
			continue
		}
		for _, d := range r.decls {
			matched = append(matched, match{decl: d, specificity: r.selector.Specificity(), order: r.order})
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.decl.important != b.decl.important {
			return b.decl.important
		}
		if a.specificity != b.specificity {
			return a.specificity.Less(b.specificity)
		}
		return a.order < b.order
	})
	out := make(map[string]string)
	for _, m := range matched {
		out[m.decl.property] = m.decl.value
	}
	return out
}
