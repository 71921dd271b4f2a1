// Package sanitize turns untrusted editor HTML into safe HTML via an
// allow-list policy. Cleaning is total: disallowed markup is dropped, never
// rejected.
package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Policy is the allow-list configuration. The "*" key in AllowedAttributes
// applies the attributes to every allowed element.
type Policy struct {
	AllowedTags       []string
	AllowedAttributes map[string][]string
	AllowedSchemes    []string
}

// Sanitizer holds a compiled policy. Safe for concurrent use.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// Default returns the policy the editor is built against: structural,
// tabular and image tags on top of the usual inline formatting set.
func Default() Policy {
	return Policy{
		AllowedTags: []string{
			"h1", "h2", "h3", "h4", "h5", "h6",
			"p", "a", "ul", "ol", "li",
			"b", "i", "strong", "em", "u", "s",
			"code", "pre", "blockquote", "br", "hr",
			"div", "span",
			"table", "thead", "tbody", "tr", "th", "td",
			"img", "figure", "figcaption",
		},
		AllowedAttributes: map[string][]string{
			"a":   {"href", "target", "rel"},
			"img": {"src", "alt", "width", "height"},
			"*":   {"class", "id", "style"},
		},
		AllowedSchemes: []string{"http", "https", "mailto", "data"},
	}
}

// New compiles a policy. Compile once at startup, reuse everywhere.
func New(p Policy) *Sanitizer {
	bm := bluemonday.NewPolicy()
	bm.AllowElements(p.AllowedTags...)

	for tag, attrs := range p.AllowedAttributes {
		if len(attrs) == 0 {
			continue
		}
		if tag == "*" {
			bm.AllowAttrs(attrs...).Globally()
			continue
		}
		bm.AllowAttrs(attrs...).OnElements(tag)
	}

	// AllowURLSchemes also forces URLs to be parseable, so javascript: and
	// friends are stripped from href/src.
	bm.AllowURLSchemes(p.AllowedSchemes...)

	return &Sanitizer{policy: bm}
}

// Clean maps raw HTML to safe HTML. Idempotent under the same policy.
func (s *Sanitizer) Clean(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}

var textOnly = bluemonday.StrictPolicy()

// Text strips all markup, leaving plain text. Used for search indexing.
func Text(html string) string {
	return strings.Join(strings.Fields(textOnly.Sanitize(html)), " ")
}
