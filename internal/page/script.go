// internal/page/script.go
package page

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Script is one script element lifted out of the page DOM. Consent
// libraries hang their configuration off loader-tag attributes
// (data-cbid, data-domain-script, data-website-uuid), so all attributes
// are kept, not just src.
type Script struct {
	Src   string
	ID    string
	Text  string
	attrs map[string]string
}

// Attr returns the named attribute, or "" when absent.
func (s Script) Attr(name string) string {
	return s.attrs[name]
}

// HasAttr reports whether the attribute is present, even when empty.
func (s Script) HasAttr(name string) bool {
	_, ok := s.attrs[name]
	return ok
}

// Inline reports whether the script has no src.
func (s Script) Inline() bool {
	return s.Src == ""
}

// ParseScripts extracts every script element from an HTML document.
func ParseScripts(html string) ([]Script, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var scripts []Script
	doc.Find("script").Each(func(i int, sel *goquery.Selection) {
		script := Script{
			Text:  sel.Text(),
			attrs: make(map[string]string),
		}
		if node := sel.Get(0); node != nil {
			for _, attr := range node.Attr {
				script.attrs[attr.Key] = attr.Val
			}
		}
		script.Src = script.attrs["src"]
		script.ID = script.attrs["id"]
		scripts = append(scripts, script)
	})
	return scripts, nil
}
