package verifier

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// #region constraint
// Clause is one sentence of a constraint field.
type Clause struct {
	ID   string
	Text string
}

// Constraint is a parsed constraint field.
type Constraint struct {
	Text    string
	Clauses []Clause

	normalized []string // per clause
}

var clauseSplit = regexp.MustCompile(`[.;!?]+(?:\s+|$)|\n+`)

// ParseConstraint splits text into clauses at sentence punctuation and line
// breaks. Clauses are numbered C1..Cn in order.
func ParseConstraint(text string) Constraint {
	c := Constraint{Text: text}
	for _, part := range clauseSplit.Split(text, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		c.Clauses = append(c.Clauses, Clause{
			ID:   fmt.Sprintf("C%d", len(c.Clauses)+1),
			Text: part,
		})
		c.normalized = append(c.normalized, normalize(part))
	}
	return c
}

// minBindingTerms is how many content words a phrase reference needs unless
// it quotes its clause in full.
const minBindingTerms = 2

// stopwords never count toward a phrase reference.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "if": true, "in": true,
	"is": true, "it": true, "no": true, "not": true, "of": true, "on": true,
	"only": true, "or": true, "than": true, "that": true, "the": true, "to": true,
	"with": true, "within": true,
}

// Binds reports whether ref names a clause: either a clause ID, a clause's
// full text, or a whole-word phrase inside a single clause carrying at least
// minBindingTerms content words.
func (c Constraint) Binds(ref string) bool {
	n := normalize(ref)
	if n == "" {
		return false
	}
	for i, cl := range c.Clauses {
		if n == strings.ToLower(cl.ID) || n == c.normalized[i] {
			return true
		}
	}
	if contentTerms(n) < minBindingTerms {
		return false
	}
	for _, cn := range c.normalized {
		if strings.Contains(" "+cn+" ", " "+n+" ") {
			return true
		}
	}
	return false
}

func contentTerms(n string) int {
	count := 0
	for _, w := range strings.Fields(n) {
		if !stopwords[w] {
			count++
		}
	}
	return count
}

// #endregion constraint

// #region normalize
// normalize lowercases s and collapses every run of non-alphanumerics to one space.
func normalize(s string) string {
	var b strings.Builder
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// #endregion normalize
