package enrich

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/catalog-sync/internal/extract"
)

// input is everything a field strategy may look at.
type input struct {
	index  int
	link   string
	detail extract.Detail
}

// strategy proposes a value for one field, or "" when it has nothing.
type strategy func(in input) string

// firstOf returns the first non-empty proposal.
func firstOf(in input, strategies []strategy) string {
	for _, s := range strategies {
		if v := strings.TrimSpace(s(in)); v != "" {
			return v
		}
	}
	return ""
}

func renderedHeading(in input) string { return in.detail.Name }

func metaTitle(in input) string { return in.detail.MetaTitle }

func titleHead(sep string) strategy {
	return func(in input) string { return in.detail.TitleHead(sep) }
}

func detailPrice(in input) string { return in.detail.Price }

// linkSegmentName derives a name from the detail link's second-to-last path
// segment, which is the product id on the storefront.
func linkSegmentName(prefix string) strategy {
	return func(in input) string {
		if in.link == "" {
			return ""
		}
		parts := strings.Split(in.link, "/")
		if len(parts) < 2 {
			return ""
		}
		seg := strings.TrimSpace(parts[len(parts)-2])
		if seg == "" {
			return ""
		}
		return fmt.Sprintf("%s %s", prefix, seg)
	}
}

func indexName(prefix string) strategy {
	return func(in input) string { return fmt.Sprintf("%s %d", prefix, in.index+1) }
}

// strategies holds the ordered per-field chains for one tier.
type strategies struct {
	name  []strategy
	price []strategy
}

func (e *Engine) staticStrategies() strategies {
	return strategies{
		name: []strategy{
			metaTitle,
			titleHead(e.cfg.TitleSeparator),
			linkSegmentName(e.cfg.SyntheticNamePrefix),
			indexName(e.cfg.SyntheticNamePrefix),
		},
		price: []strategy{detailPrice},
	}
}

func (e *Engine) renderedStrategies() strategies {
	return strategies{
		name: []strategy{
			renderedHeading,
			metaTitle,
			titleHead(e.cfg.TitleSeparator),
			linkSegmentName(e.cfg.SyntheticNamePrefix),
			indexName(e.cfg.SyntheticNamePrefix),
		},
		price: []strategy{detailPrice},
	}
}

// finalStrategies is used when no page could be read at all.
func (e *Engine) finalStrategies() strategies {
	return strategies{
		name: []strategy{
			linkSegmentName(e.cfg.SyntheticNamePrefix),
			indexName(e.cfg.SyntheticNamePrefix),
		},
	}
}
