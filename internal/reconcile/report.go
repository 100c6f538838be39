// Package reconcile compares the names expected in a remote category with
// what the catalog actually holds. The report is diagnostic only.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-sync/internal/woo"
)

const (
	defaultSampleSize = 10
	maxPages          = 10000
)

// Lister reads a category's members from the remote catalog.
type Lister interface {
	FindCategory(ctx context.Context, name string) (woo.Category, error)
	ListProductsByCategory(ctx context.Context, categoryID int64, page int) ([]woo.Product, error)
}

// Report is the result of one reconciliation.
type Report struct {
	Category       string
	CategoryID     int64
	CategoryAbsent bool
	// Partial is set when paging stopped on an error; Remote then holds
	// only the pages read before it.
	Partial       bool
	PartialReason string
	Expected      map[string]struct{}
	Remote        map[string]struct{}
	Missing       []string
	Extra         []string
	SampleSize    int
}

// Clean reports whether the category matched expectation exactly.
func (r Report) Clean() bool {
	return !r.CategoryAbsent && !r.Partial && len(r.Missing) == 0 && len(r.Extra) == 0
}

// Render formats the report as human-readable lines.
func (r Report) Render() string {
	if r.CategoryAbsent {
		return fmt.Sprintf("Verification: Category '%s' not found.", r.Category)
	}
	n := r.SampleSize
	if n <= 0 {
		n = defaultSampleSize
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Verification Results for '%s':\n", r.Category)
	fmt.Fprintf(&b, "- Expected: %d\n", len(r.Expected))
	fmt.Fprintf(&b, "- Found on store: %d\n", len(r.Remote))
	writeSet(&b, "Missing", r.Missing, n)
	writeSet(&b, "Extra in category", r.Extra, n)
	if r.Partial {
		fmt.Fprintf(&b, "- Partial: %s\n", r.PartialReason)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeSet(b *strings.Builder, label string, names []string, n int) {
	if len(names) == 0 {
		fmt.Fprintf(b, "- %s: None\n", label)
		return
	}
	sample := names
	suffix := ""
	if len(sample) > n {
		sample = sample[:n]
		suffix = " ..."
	}
	fmt.Fprintf(b, "- %s (%d): %s%s\n", label, len(names), strings.Join(sample, ", "), suffix)
}

// Diff returns expected minus remote and remote minus expected, sorted.
func Diff(expected, remote map[string]struct{}) ([]string, []string) {
	return minus(expected, remote), minus(remote, expected)
}

func minus(a, b map[string]struct{}) []string {
	out := []string{}
	for k := range a {
		if _, ok := b[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Reporter runs reconciliations.
type Reporter struct {
	lister     Lister
	logger     *zap.Logger
	sampleSize int
}

// New builds a Reporter.
func New(lister Lister, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{lister: lister, logger: logger, sampleSize: defaultSampleSize}
}

// Reconcile pages through every product in category until an empty page and
// diffs the names against expected.
func (r *Reporter) Reconcile(ctx context.Context, category string, expected map[string]struct{}) (Report, error) {
	rep := Report{
		Category:   category,
		Expected:   expected,
		Remote:     map[string]struct{}{},
		SampleSize: r.sampleSize,
	}

	cat, err := r.lister.FindCategory(ctx, category)
	if errors.Is(err, woo.ErrNotFound) {
		rep.CategoryAbsent = true
		r.logger.Warn("Category not found for reconciliation", zap.String("category", category))
		return rep, nil
	}
	if err != nil {
		return rep, fmt.Errorf("resolve category %q: %w", category, err)
	}
	rep.CategoryID = cat.ID

	for page := 1; page <= maxPages; page++ {
		items, err := r.lister.ListProductsByCategory(ctx, cat.ID, page)
		if err != nil {
			rep.Partial = true
			rep.PartialReason = fmt.Sprintf("page %d: %v", page, err)
			r.logger.Warn("Category listing failed, report is partial", zap.Int("page", page), zap.Error(err))
			break
		}
		if len(items) == 0 {
			break
		}
		for _, it := range items {
			rep.Remote[it.Name] = struct{}{}
		}
	}

	rep.Missing, rep.Extra = Diff(rep.Expected, rep.Remote)
	r.logger.Info("Reconciliation finished",
		zap.String("category", category),
		zap.Int("expected", len(rep.Expected)),
		zap.Int("found", len(rep.Remote)),
		zap.Int("missing", len(rep.Missing)),
		zap.Int("extra", len(rep.Extra)),
		zap.Bool("partial", rep.Partial),
	)
	return rep, nil
}
