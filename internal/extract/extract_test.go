package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingHTML = `<html><body>
<div class="block-stl2">
  <div class="img-holder"><img src="./img/uploads1/thumb/a.jpg"></div>
  <div class="text-block"><h3> Chocolate Cake </h3></div>
  <p class="price"><span>27,000 ل.س</span></p>
  <div class="btn-sec"><a class="btn4" href="/Product/11/Ar">Details</a></div>
</div>
<div class="block-stl2">
  <div class="text-block"><h3></h3></div>
  <div class="btn-sec"><a class="btn4" href="/Product/12/Ar">Details</a></div>
</div>
</body></html>`

func TestListingExtractsBlocksInOrder(t *testing.T) {
	t.Parallel()

	blocks, err := New(Selectors{}).Listing([]byte(listingHTML))
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	assert.Equal(t, Block{
		Name:  "Chocolate Cake",
		Price: "27,000 ل.س",
		Link:  "/Product/11/Ar",
		Image: "./img/uploads1/thumb/a.jpg",
	}, blocks[0])

	assert.Equal(t, "/Product/12/Ar", blocks[1].Link)
	assert.Empty(t, blocks[1].Name)
	assert.ElementsMatch(t, []string{"name", "price", "image"}, blocks[1].Missing)
}

func TestListingWithoutBlocks(t *testing.T) {
	t.Parallel()

	blocks, err := New(Selectors{}).Listing([]byte(`<html><body><p>nothing here</p></body></html>`))
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestDetailReadsStaticAnchors(t *testing.T) {
	t.Parallel()

	page := `<html><head>
<title>Vanilla Cake | Omaya Class</title>
<meta property="og:title" content=" Vanilla Cake ">
</head><body>
<img src="./img/uploads1/thumb/v.jpg">
<img src="./img/uploads1/larg/v.jpg">
<div class="price"><span>12,500 ل.س</span></div>
</body></html>`

	d, err := New(Selectors{}).Detail([]byte(page))
	require.NoError(t, err)
	assert.Equal(t, "./img/uploads1/larg/v.jpg", d.LargeImage)
	assert.Equal(t, "Vanilla Cake", d.MetaTitle)
	assert.Equal(t, "Vanilla Cake | Omaya Class", d.PageTitle)
	assert.Equal(t, "12,500 ل.س", d.Price)
	assert.Equal(t, "Vanilla Cake", d.TitleHead("|"))
	assert.Empty(t, d.Name)
}

func TestTitleHeadWithoutSeparator(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Detail{PageTitle: "Omaya Class"}.TitleHead("|"))
	assert.Empty(t, Detail{PageTitle: "A | B"}.TitleHead(""))
}

func TestRenderedPrefersContainerHeading(t *testing.T) {
	t.Parallel()

	page := `<html><body>
<h1>Site Header</h1>
<div class="text-block"><h3>Rendered Cake</h3></div>
<p class="price"><span>9,000 ل.س</span></p>
<img src="/img/uploads1/larg/r.png">
</body></html>`

	d, err := New(Selectors{}).Rendered([]byte(page))
	require.NoError(t, err)
	assert.Equal(t, "Rendered Cake", d.Name)
	assert.Equal(t, "9,000 ل.س", d.Price)
	assert.Equal(t, "/img/uploads1/larg/r.png", d.LargeImage)
}

func TestRenderedFallsBackToAnyHeading(t *testing.T) {
	t.Parallel()

	d, err := New(Selectors{}).Rendered([]byte(`<html><body><div class="product-block"><h2>Fallback Heading</h2></div></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Fallback Heading", d.Name)
	assert.Empty(t, d.Price)
}

func TestSelectorOverrides(t *testing.T) {
	t.Parallel()

	e := New(Selectors{Block: "li.item", Name: "span.n"})
	blocks, err := e.Listing([]byte(`<ul><li class="item"><span class="n">X</span></li></ul>`))
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "X", blocks[0].Name)
	assert.Equal(t, DefaultSelectors().Price, e.Selectors().Price)
}
