// Package content extracts titles, anchors and meta refresh targets from HTML.
package content

import (
	"iter"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Page is what a single parse of an HTML document yields
type Page struct {
	Title        string
	HasTitle     bool
	MetaRedirect string
	HasRedirect  bool

	anchors *goquery.Selection
}

// Links yields the raw href of every anchor, in document order. Ranging over
// it walks the already parsed document again; nothing is re-parsed.
func (p Page) Links() iter.Seq[string] {
	return func(yield func(string) bool) {
		if p.anchors == nil {
			return
		}
		for _, node := range p.anchors.Nodes {
			for _, attr := range node.Attr {
				if attr.Namespace != "" || attr.Key != "href" {
					continue
				}
				if !yield(attr.Val) {
					return
				}
				break
			}
		}
	}
}

// Scanner inspects HTML documents with goquery.
// A document that cannot be parsed yields no title, no links and no redirect.
type Scanner struct{}

// NewScanner creates a Scanner
func NewScanner() *Scanner {
	return &Scanner{}
}

// Scan parses html once and extracts the title, the meta refresh target and
// the anchors
func (s *Scanner) Scan(html string) Page {
	doc, ok := parse(html)
	if !ok {
		return Page{}
	}
	page := Page{anchors: doc.Find("a[href]")}
	page.Title, page.HasTitle = title(doc)
	page.MetaRedirect, page.HasRedirect = metaRedirect(doc)
	return page
}

// title returns the text of the first <title> element
func title(doc *goquery.Document) (string, bool) {
	sel := doc.Find("title").First()
	if sel.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(sel.Text()), true
}

// metaRedirect returns the target of the first meta refresh directive that
// names one, e.g. <meta http-equiv="refresh" content="0; url=/next">
func metaRedirect(doc *goquery.Document) (string, bool) {
	var target string
	found := false
	doc.Find("meta[http-equiv]").EachWithBreak(func(_ int, meta *goquery.Selection) bool {
		equiv, _ := meta.Attr("http-equiv")
		if !strings.EqualFold(strings.TrimSpace(equiv), "refresh") {
			return true
		}
		content, _ := meta.Attr("content")
		target, found = refreshTarget(content)
		return !found
	})
	return target, found
}

// refreshTarget pulls the url= part out of a refresh directive such as "5; URL='/x'"
func refreshTarget(content string) (string, bool) {
	idx := strings.Index(strings.ToLower(content), "url=")
	if idx < 0 {
		return "", false
	}
	target := strings.TrimSpace(content[idx+len("url="):])
	target = strings.Trim(target, `'"`)
	return target, true
}

func parse(html string) (*goquery.Document, bool) {
	if strings.TrimSpace(html) == "" {
		return nil, false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false
	}
	return doc, true
}
