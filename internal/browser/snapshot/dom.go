package snapshot

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/wishsort/internal/wishlist"
)

type container struct {
	page *Page
	node *html.Node
}

func (c *container) Listings(context.Context) ([]wishlist.Listing, error) {
	c.page.mu.RLock()
	defer c.page.mu.RUnlock()

	rows := goquery.NewDocumentFromNode(c.node).Find(c.page.sel.Row)
	out := make([]wishlist.Listing, 0, rows.Length())
	for _, n := range rows.Nodes {
		out = append(out, &listing{page: c.page, node: n})
	}
	return out, nil
}

// Reattach moves each listing node to the end of the container.
func (c *container) Reattach(_ context.Context, order []wishlist.Listing) error {
	c.page.mu.Lock()
	defer c.page.mu.Unlock()

	nodes := make([]*html.Node, len(order))
	for i, l := range order {
		row, ok := l.(*listing)
		if !ok || row.page != c.page {
			return fmt.Errorf("listing %s does not belong to this page", l.Key())
		}
		nodes[i] = row.node
	}
	for _, n := range nodes {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		c.node.AppendChild(n)
	}
	return nil
}

// listing is a row node. Its key is the node address, stable for the
// lifetime of the parsed document.
type listing struct {
	page *Page
	node *html.Node
}

func (l *listing) Key() string { return fmt.Sprintf("row-%p", l.node) }

func (l *listing) find(selector string) *goquery.Selection {
	return goquery.NewDocumentFromNode(l.node).Find(selector).First()
}

func (l *listing) Text(selector string) (string, bool) {
	l.page.mu.RLock()
	defer l.page.mu.RUnlock()
	s := l.find(selector)
	if s.Length() == 0 {
		return "", false
	}
	return s.Text(), true
}

func (l *listing) Present(selector string) bool {
	l.page.mu.RLock()
	defer l.page.mu.RUnlock()
	return l.find(selector).Length() > 0
}

// Visible approximates rendering: neither the element nor an ancestor may be
// hidden by attribute, inline display:none or the ng-hide class.
func (l *listing) Visible(selector string) bool {
	l.page.mu.RLock()
	defer l.page.mu.RUnlock()
	s := l.find(selector)
	if s.Length() == 0 {
		return false
	}
	for n := s.Nodes[0]; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && hiddenElement(n) {
			return false
		}
	}
	return true
}

func hiddenElement(n *html.Node) bool {
	for _, a := range n.Attr {
		switch a.Key {
		case "hidden":
			return true
		case "class":
			for _, c := range strings.Fields(a.Val) {
				if c == "ng-hide" {
					return true
				}
			}
		case "style":
			for _, d := range parseInlineStyle(a.Val) {
				if d.property == "display" && strings.HasPrefix(strings.ToLower(d.value), "none") {
					return true
				}
			}
		}
	}
	return false
}
