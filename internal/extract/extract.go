// Package extract owns every structural anchor the pipeline reads from the
// storefront's HTML. Listing, detail and rendered pages are all parsed here so
// a site redesign only touches the selectors in this package.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors lists the CSS anchors for each field.
type Selectors struct {
	Block                string `mapstructure:"block"`
	Name                 string `mapstructure:"name"`
	Price                string `mapstructure:"price"`
	Link                 string `mapstructure:"link"`
	Image                string `mapstructure:"image"`
	LargeImage           string `mapstructure:"large_image"`
	MetaTitle            string `mapstructure:"meta_title"`
	DetailPrice          string `mapstructure:"detail_price"`
	RenderedWait         string `mapstructure:"rendered_wait"`
	RenderedName         string `mapstructure:"rendered_name"`
	RenderedNameFallback string `mapstructure:"rendered_name_fallback"`
	TitleSeparator       string `mapstructure:"title_separator"`
}

// DefaultSelectors matches the storefront's current markup.
func DefaultSelectors() Selectors {
	return Selectors{
		Block:                "div.block-stl2",
		Name:                 "div.text-block h3",
		Price:                "p.price span",
		Link:                 "div.btn-sec a.btn4",
		Image:                "div.img-holder img",
		LargeImage:           "img[src*='larg']",
		MetaTitle:            "meta[property='og:title']",
		DetailPrice:          ".price span",
		RenderedWait:         ".text-block, .product-block",
		RenderedName:         ".text-block h3",
		RenderedNameFallback: "h1, h2, h3",
		TitleSeparator:       "|",
	}
}

// withDefaults fills blank selectors from DefaultSelectors.
func (s Selectors) withDefaults() Selectors {
	d := DefaultSelectors()
	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	fill(&s.Block, d.Block)
	fill(&s.Name, d.Name)
	fill(&s.Price, d.Price)
	fill(&s.Link, d.Link)
	fill(&s.Image, d.Image)
	fill(&s.LargeImage, d.LargeImage)
	fill(&s.MetaTitle, d.MetaTitle)
	fill(&s.DetailPrice, d.DetailPrice)
	fill(&s.RenderedWait, d.RenderedWait)
	fill(&s.RenderedName, d.RenderedName)
	fill(&s.RenderedNameFallback, d.RenderedNameFallback)
	fill(&s.TitleSeparator, d.TitleSeparator)
	return s
}

// Block holds the raw fields of one listing item. Missing names the anchors
// that were absent; their fields are left empty.
type Block struct {
	Name    string
	Price   string
	Link    string
	Image   string
	Missing []string
}

// Detail holds what a detail page offers. Name is only filled from rendered
// pages; static pages expose MetaTitle and PageTitle instead.
type Detail struct {
	Name       string
	MetaTitle  string
	PageTitle  string
	Price      string
	LargeImage string
}

// TitleHead returns the text before the title separator, or "" when the
// page title has no separator.
func (d Detail) TitleHead(sep string) string {
	if sep == "" || !strings.Contains(d.PageTitle, sep) {
		return ""
	}
	return strings.TrimSpace(strings.SplitN(d.PageTitle, sep, 2)[0])
}

// Extractor parses storefront pages using a fixed set of selectors.
type Extractor struct {
	sel Selectors
}

// New builds an Extractor. Blank selectors fall back to the defaults.
func New(sel Selectors) *Extractor {
	return &Extractor{sel: sel.withDefaults()}
}

// Selectors returns the effective selectors.
func (e *Extractor) Selectors() Selectors {
	return e.sel
}

// Listing returns every item block found on a listing page, in document order.
func (e *Extractor) Listing(body []byte) ([]Block, error) {
	doc, err := parse(body)
	if err != nil {
		return nil, err
	}
	var blocks []Block
	doc.Find(e.sel.Block).Each(func(_ int, s *goquery.Selection) {
		var b Block
		if name, ok := text(s, e.sel.Name); ok {
			b.Name = name
		} else {
			b.Missing = append(b.Missing, "name")
		}
		if price, ok := text(s, e.sel.Price); ok {
			b.Price = price
		} else {
			b.Missing = append(b.Missing, "price")
		}
		if link, ok := attr(s, e.sel.Link, "href"); ok {
			b.Link = link
		} else {
			b.Missing = append(b.Missing, "link")
		}
		if img, ok := attr(s, e.sel.Image, "src"); ok {
			b.Image = img
		} else {
			b.Missing = append(b.Missing, "image")
		}
		blocks = append(blocks, b)
	})
	return blocks, nil
}

// Detail reads the static detail page fields.
func (e *Extractor) Detail(body []byte) (Detail, error) {
	doc, err := parse(body)
	if err != nil {
		return Detail{}, err
	}
	var d Detail
	d.LargeImage, _ = attr(doc.Selection, e.sel.LargeImage, "src")
	d.MetaTitle, _ = attr(doc.Selection, e.sel.MetaTitle, "content")
	d.PageTitle, _ = text(doc.Selection, "title")
	d.Price, _ = text(doc.Selection, e.sel.DetailPrice)
	return d, nil
}

// Rendered reads a DOM snapshot taken by the browser session.
func (e *Extractor) Rendered(body []byte) (Detail, error) {
	doc, err := parse(body)
	if err != nil {
		return Detail{}, err
	}
	var d Detail
	if name, ok := text(doc.Selection, e.sel.RenderedName); ok {
		d.Name = name
	} else {
		d.Name, _ = text(doc.Selection, e.sel.RenderedNameFallback)
	}
	d.Price, _ = text(doc.Selection, e.sel.Price)
	d.LargeImage, _ = attr(doc.Selection, e.sel.LargeImage, "src")
	d.PageTitle, _ = text(doc.Selection, "title")
	d.MetaTitle, _ = attr(doc.Selection, e.sel.MetaTitle, "content")
	return d, nil
}

func parse(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

func text(s *goquery.Selection, selector string) (string, bool) {
	found := s.Find(selector).First()
	if found.Length() == 0 {
		return "", false
	}
	v := strings.TrimSpace(found.Text())
	return v, v != ""
}

func attr(s *goquery.Selection, selector, name string) (string, bool) {
	found := s.Find(selector).First()
	if found.Length() == 0 {
		return "", false
	}
	v, ok := found.Attr(name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}
