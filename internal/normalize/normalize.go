// Package normalize converts raw scraped strings into values the remote
// catalog accepts. Every function here is pure and performs no I/O.
package normalize

import (
	"net/url"
	"path"
	"strconv"
	"strings"
	"unicode"

	"github.com/JakeFAU/catalog-sync/internal/product"
)

// DefaultCurrencyTokens are the unit markers stripped from price text.
var DefaultCurrencyTokens = []string{"ل.س"}

// DefaultPlaceholderPath is the site-relative path of the fallback image.
const DefaultPlaceholderPath = "/img/uploads1/larg/prod_deff.jpg"

var acceptedImageExt = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

var arabicIndicDigits = strings.NewReplacer(
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
)

// Price strips currency tokens, thousands separators and decimal points from
// raw and parses what is left as an integer. Anything that is not all digits
// afterwards yields 0.
//
// The transform is lossy on purpose: the source currency has no fractional
// unit in practice, so "1.500" and "1,500" both mean 1500 and the original
// text cannot be recovered from the result.
func Price(raw string, currencyTokens []string) int64 {
	s := raw
	for _, tok := range currencyTokens {
		if tok != "" {
			s = strings.ReplaceAll(s, tok, "")
		}
	}
	s = strings.NewReplacer(",", "", ".", "", "٬", "", "٫", "").Replace(s)
	s = arabicIndicDigits.Replace(strings.TrimSpace(s))
	if s == "" {
		return 0
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return 0
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ImageURL returns imageURL unchanged when its path carries an accepted
// extension, and placeholder otherwise. Unparseable input is rejected the
// same way. An empty placeholder falls back to DefaultPlaceholderPath. The
// function is idempotent as long as placeholder itself has an accepted
// extension.
func ImageURL(imageURL, placeholder string) string {
	if placeholder == "" {
		placeholder = DefaultPlaceholderPath
	}
	if strings.TrimSpace(imageURL) == "" {
		return placeholder
	}
	u, err := url.Parse(imageURL)
	if err != nil {
		return placeholder
	}
	if !HasAcceptedExt(u.Path) {
		return placeholder
	}
	return imageURL
}

// HasAcceptedExt reports whether p ends in one of the accepted image extensions.
func HasAcceptedExt(p string) bool {
	_, ok := acceptedImageExt[strings.ToLower(path.Ext(p))]
	return ok
}

// PlaceholderURL resolves the placeholder path against the site base URL.
func PlaceholderURL(baseURL, placeholderPath string) string {
	if placeholderPath == "" {
		placeholderPath = DefaultPlaceholderPath
	}
	abs, err := Resolve(baseURL, placeholderPath)
	if err != nil {
		return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(placeholderPath, "/")
	}
	return abs
}

// RepairImagePath strips a leading relative-path marker from src and resolves
// the result against baseURL. It returns the absolute URL and the repaired
// path; both are empty when src is empty.
func RepairImagePath(baseURL, src string) (string, string) {
	src = strings.TrimSpace(src)
	src = strings.TrimPrefix(src, ".")
	if src == "" {
		return "", ""
	}
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return src, src
	}
	abs, err := Resolve(baseURL, src)
	if err != nil {
		return src, src
	}
	return abs, src
}

// Resolve joins ref onto base the way a browser would.
func Resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

// Options configures Record.
type Options struct {
	CurrencyTokens   []string
	PlaceholderImage string
}

// Record derives NormalizedPrice and sanitizes ImageURL. SourcePath and
// DetailLink are left untouched.
func Record(rec product.Record, opts Options) product.Record {
	tokens := opts.CurrencyTokens
	if tokens == nil {
		tokens = DefaultCurrencyTokens
	}
	rec.NormalizedPrice = Price(rec.Price, tokens)
	rec.ImageURL = ImageURL(rec.ImageURL, opts.PlaceholderImage)
	return rec
}

// Batch applies Record to every element and returns a new slice.
func Batch(batch []product.Record, opts Options) []product.Record {
	out := make([]product.Record, len(batch))
	for i, rec := range batch {
		out[i] = Record(rec, opts)
	}
	return out
}
