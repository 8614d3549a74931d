package snapshot

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// declaration is a single 'property: value' pair of an inline style attribute.
type declaration struct {
	property string
	value    string
}

// parseInlineStyle splits a style attribute into declarations, keeping their
// order. Malformed pairs are skipped.
func parseInlineStyle(style string) []declaration {
	var decls []declaration
	for _, part := range strings.Split(style, ";") {
		prop, val, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		val = strings.TrimSpace(val)
		if prop == "" || val == "" {
			continue
		}
		decls = append(decls, declaration{property: prop, value: val})
	}
	return decls
}

func renderInlineStyle(decls []declaration) string {
	parts := make([]string, len(decls))
	for i, d := range decls {
		parts[i] = d.property + ": " + d.value
	}
	return strings.Join(parts, "; ")
}

// styleValue returns the value of prop in the inline style of the selection's
// first element, with any !important suffix dropped.
func styleValue(s *goquery.Selection, prop string) string {
	attr, _ := s.Attr("style")
	for _, d := range parseInlineStyle(attr) {
		if d.property == prop {
			v := strings.TrimSpace(strings.TrimSuffix(strings.ToLower(d.value), "!important"))
			return v
		}
	}
	return ""
}

// setStyle sets properties on the inline style of every element in s,
// replacing existing values in place and appending new ones.
func setStyle(s *goquery.Selection, props ...declaration) {
	s.Each(func(_ int, el *goquery.Selection) {
		attr, _ := el.Attr("style")
		decls := parseInlineStyle(attr)
	next:
		for _, p := range props {
			for i := range decls {
				if decls[i].property == p.property {
					decls[i].value = p.value
					continue next
				}
			}
			decls = append(decls, p)
		}
		el.SetAttr("style", renderInlineStyle(decls))
	})
}
