package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-sync/internal/woo"
	"github.com/JakeFAU/catalog-sync/internal/woo/wootest"
)

func set(names ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

func newReporter(t *testing.T, srv *wootest.Server, pageSize int) *Reporter {
	t.Helper()
	c, err := woo.NewClient(woo.Config{BaseURL: srv.URL, PageSize: pageSize, Timeout: 2 * time.Second}, nil)
	require.NoError(t, err)
	return New(c, nil)
}

func TestDiff(t *testing.T) {
	t.Parallel()

	missing, extra := Diff(set("A", "B", "C"), set("A", "B", "D"))
	assert.Equal(t, []string{"C"}, missing)
	assert.Equal(t, []string{"D"}, extra)

	missing, extra = Diff(set(), set())
	assert.Empty(t, missing)
	assert.Empty(t, extra)
}

func TestReconcilePagesUntilEmpty(t *testing.T) {
	t.Parallel()

	srv := wootest.NewServer(t)
	id := srv.AddCategory("Omaya Products")
	for _, n := range []string{"A", "B", "D"} {
		srv.AddProduct(woo.Product{Name: n, Categories: []woo.CategoryLink{{ID: id}}})
	}
	srv.AddProduct(woo.Product{Name: "C"})

	rep, err := newReporter(t, srv, 2).Reconcile(context.Background(), "Omaya Products", set("A", "B", "C"))
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, rep.Missing)
	assert.Equal(t, []string{"D"}, rep.Extra)
	assert.Len(t, rep.Remote, 3)
	assert.False(t, rep.Partial)
	assert.False(t, rep.Clean())
	assert.Equal(t, 3, srv.Calls("GET products"), "two full pages and one empty page")

	assert.Equal(t, `Verification Results for 'Omaya Products':
- Expected: 3
- Found on store: 3
- Missing (1): C
- Extra in category (1): D`, rep.Render())
}

func TestReconcileCategoryAbsent(t *testing.T) {
	t.Parallel()

	srv := wootest.NewServer(t)
	rep, err := newReporter(t, srv, 100).Reconcile(context.Background(), "Nowhere", set("A"))
	require.NoError(t, err)
	assert.True(t, rep.CategoryAbsent)
	assert.Equal(t, "Verification: Category 'Nowhere' not found.", rep.Render())
	assert.Zero(t, srv.Calls("GET products"))
}

func TestReconcilePartialOnPageError(t *testing.T) {
	t.Parallel()

	srv := wootest.NewServer(t)
	id := srv.AddCategory("Cakes")
	for i := range 3 {
		srv.AddProduct(woo.Product{Name: fmt.Sprintf("Cake %d", i), Categories: []woo.CategoryLink{{ID: id}}})
	}
	srv.FailListPage = 2

	rep, err := newReporter(t, srv, 2).Reconcile(context.Background(), "Cakes", set("Cake 0", "Cake 1", "Cake 2"))
	require.NoError(t, err)
	assert.True(t, rep.Partial)
	assert.Equal(t, []string{"Cake 2"}, rep.Missing)
	assert.Contains(t, rep.Render(), "- Partial: page 2")
}

func TestRenderTruncatesSamples(t *testing.T) {
	t.Parallel()

	var names []string
	for i := range 12 {
		names = append(names, fmt.Sprintf("N%02d", i))
	}
	rep := Report{Category: "X", Expected: set(names...), Remote: set(), Missing: names}
	out := rep.Render()
	assert.Contains(t, out, "- Missing (12): N00, N01, N02, N03, N04, N05, N06, N07, N08, N09 ...")
	assert.Contains(t, out, "- Extra in category: None")

	clean := Report{Category: "X", Expected: set("A"), Remote: set("A")}
	assert.True(t, clean.Clean())
	assert.Contains(t, clean.Render(), "- Missing: None")
}
