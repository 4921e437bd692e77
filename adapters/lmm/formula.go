package lmm

import (
	"fmt"
	"sort"
	"strings"
)

// Formula is a parsed model formula of the form
//
//	dv ~ 1 + age * cond + (1|subj) + (1|item)
type Formula struct {
	Response  string
	Intercept bool
	// Terms are fixed-effect terms; a term with several variables is an
	// interaction. Sorted by order, formula position within an order.
	Terms [][]string
	// Groups are the grouping factors of random intercepts, in formula order
	Groups []string
}

// String renders the formula in canonical form
func (f Formula) String() string {
	parts := make([]string, 0, 1+len(f.Terms)+len(f.Groups))
	if f.Intercept {
		parts = append(parts, "1")
	} else {
		parts = append(parts, "0")
	}
	for _, t := range f.Terms {
		parts = append(parts, strings.Join(t, " & "))
	}
	for _, g := range f.Groups {
		parts = append(parts, "(1|"+g+")")
	}
	return f.Response + " ~ " + strings.Join(parts, " + ")
}

// ParseFormula parses the subset of mixed-model formula syntax the fitter
// supports: 0/1 for the intercept, + between terms, * for full crossings,
// & or : for interactions and (1|g) for random intercepts.
func ParseFormula(s string) (Formula, error) {
	lhs, rhs, ok := strings.Cut(s, "~")
	if !ok {
		return Formula{}, fmt.Errorf("formula %q has no '~'", s)
	}
	f := Formula{Response: strings.TrimSpace(lhs), Intercept: true}
	if !isName(f.Response) {
		return Formula{}, fmt.Errorf("formula %q: invalid response %q", s, f.Response)
	}

	tokens, err := splitTopLevel(rhs)
	if err != nil {
		return Formula{}, fmt.Errorf("formula %q: %w", s, err)
	}

	type ordered struct {
		vars []string
		pos  int
	}
	var terms []ordered
	seen := map[string]bool{}
	addTerm := func(vars []string) {
		key := strings.Join(sortedCopy(vars), "&")
		if seen[key] {
			return
		}
		seen[key] = true
		terms = append(terms, ordered{vars: vars, pos: len(terms)})
	}
	seenGroup := map[string]bool{}

	for _, tok := range tokens {
		switch {
		case tok == "1":
			f.Intercept = true
		case tok == "0" || tok == "-1":
			f.Intercept = false
		case strings.HasPrefix(tok, "("):
			if !strings.HasSuffix(tok, ")") {
				return Formula{}, fmt.Errorf("formula %q: unbalanced %q", s, tok)
			}
			effect, group, ok := strings.Cut(tok[1:len(tok)-1], "|")
			if !ok {
				return Formula{}, fmt.Errorf("formula %q: random term %q needs '|'", s, tok)
			}
			effect, group = strings.TrimSpace(effect), strings.TrimSpace(group)
			if effect != "1" {
				return Formula{}, fmt.Errorf("formula %q: only random intercepts (1|g) are supported, got %q", s, tok)
			}
			if !isName(group) {
				return Formula{}, fmt.Errorf("formula %q: invalid grouping factor %q", s, group)
			}
			if !seenGroup[group] {
				seenGroup[group] = true
				f.Groups = append(f.Groups, group)
			}
		case strings.Contains(tok, "*"):
			vars, err := splitVars(tok, "*")
			if err != nil {
				return Formula{}, fmt.Errorf("formula %q: %w", s, err)
			}
			for _, subset := range crossings(vars) {
				addTerm(subset)
			}
		case strings.ContainsAny(tok, "&:"):
			vars, err := splitVars(strings.ReplaceAll(tok, ":", "&"), "&")
			if err != nil {
				return Formula{}, fmt.Errorf("formula %q: %w", s, err)
			}
			addTerm(vars)
		default:
			if !isName(tok) {
				return Formula{}, fmt.Errorf("formula %q: invalid term %q", s, tok)
			}
			addTerm([]string{tok})
		}
	}

	sort.SliceStable(terms, func(i, j int) bool {
		if len(terms[i].vars) != len(terms[j].vars) {
			return len(terms[i].vars) < len(terms[j].vars)
		}
		return terms[i].pos < terms[j].pos
	})
	for _, t := range terms {
		f.Terms = append(f.Terms, t.vars)
	}
	for _, t := range f.Terms {
		for _, v := range t {
			if v == f.Response {
				return Formula{}, fmt.Errorf("formula %q: response %q used as predictor", s, v)
			}
		}
	}
	return f, nil
}

func splitTopLevel(rhs string) ([]string, error) {
	var tokens []string
	depth := 0
	start := 0
	for i, r := range rhs {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced parentheses")
			}
		case '+':
			if depth == 0 {
				tokens = append(tokens, strings.TrimSpace(rhs[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced parentheses")
	}
	tokens = append(tokens, strings.TrimSpace(rhs[start:]))
	for _, t := range tokens {
		if t == "" {
			return nil, fmt.Errorf("empty term")
		}
	}
	return tokens, nil
}

func splitVars(tok, sep string) ([]string, error) {
	parts := strings.Split(tok, sep)
	vars := make([]string, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if !isName(p) {
			return nil, fmt.Errorf("invalid variable %q in %q", p, tok)
		}
		vars[i] = p
	}
	return vars, nil
}

// crossings expands a*b*c into every non-empty subset, lower orders first
func crossings(vars []string) [][]string {
	var out [][]string
	for order := 1; order <= len(vars); order++ {
		var walk func(start int, acc []string)
		walk = func(start int, acc []string) {
			if len(acc) == order {
				out = append(out, append([]string(nil), acc...))
				return
			}
			for i := start; i < len(vars); i++ {
				walk(i+1, append(acc, vars[i]))
			}
		}
		walk(0, nil)
	}
	return out
}

func isName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '.':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func sortedCopy(s []string) []string {
	c := append([]string(nil), s...)
	sort.Strings(c)
	return c
}
