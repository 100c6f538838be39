// Package wootest provides an in-memory catalog served over httptest for
// tests of packages that talk to the woo client.
package wootest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/JakeFAU/catalog-sync/internal/woo"
)

const prefix = "/wp-json/wc/v3/"

// Server is a fake catalog.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	categories []woo.Category
	products   []woo.Product
	nextID     int64
	calls      map[string]int

	// HideCategories makes category listings return nothing, so a create
	// call hits the term_exists conflict path.
	HideCategories bool
	// FailProducts maps product names to a status returned on create/update.
	FailProducts map[string]int
	// FailSearch maps search terms to a status returned on search.
	FailSearch map[string]int
	// FailListPage makes the category listing fail from that page on.
	FailListPage int
}

// NewServer starts a fake catalog that is closed when t finishes.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		nextID:       100,
		calls:        make(map[string]int),
		FailProducts: make(map[string]int),
		FailSearch:   make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// AddCategory seeds a category and returns its id.
func (s *Server) AddCategory(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.categories = append(s.categories, woo.Category{ID: s.nextID, Name: name})
	return s.nextID
}

// AddProduct seeds a product and returns its id.
func (s *Server) AddProduct(p woo.Product) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	p.ID = s.nextID
	s.products = append(s.products, p)
	return p.ID
}

// Products returns a copy of the stored products.
func (s *Server) Products() []woo.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]woo.Product(nil), s.products...)
}

// Categories returns a copy of the stored categories.
func (s *Server) Categories() []woo.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]woo.Category(nil), s.categories...)
}

// Calls returns how often "METHOD resource" was requested, where resource
// is "products", "products/{id}" collapsed to "products/:id", or
// "products/categories".
func (s *Server) Calls(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	resource := strings.TrimPrefix(r.URL.Path, prefix)
	if resource == r.URL.Path {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.Method + " " + resource
	if strings.HasPrefix(resource, "products/") && resource != "products/categories" {
		key = r.Method + " products/:id"
	}
	s.calls[key]++

	switch {
	case resource == "products/categories" && r.Method == http.MethodGet:
		cats := s.categories
		if s.HideCategories {
			cats = nil
		}
		writeJSON(w, http.StatusOK, paginate(cats, r))
	case resource == "products/categories" && r.Method == http.MethodPost:
		s.createCategory(w, r)
	case resource == "products" && r.Method == http.MethodGet:
		s.listProducts(w, r)
	case resource == "products" && r.Method == http.MethodPost:
		s.saveProduct(w, r, 0)
	case strings.HasPrefix(resource, "products/") && r.Method == http.MethodPut:
		id, err := strconv.ParseInt(strings.TrimPrefix(resource, "products/"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "rest_invalid_param", "bad id", 0)
			return
		}
		s.saveProduct(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "rest_no_route", "no route", 0)
	}
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	var in woo.Category
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" {
		writeError(w, http.StatusBadRequest, "rest_missing_callback_param", "name required", 0)
		return
	}
	for _, c := range s.categories {
		if c.Name == in.Name {
			writeError(w, http.StatusBadRequest, "term_exists", "A term with the name provided already exists.", c.ID)
			return
		}
	}
	s.nextID++
	in.ID = s.nextID
	s.categories = append(s.categories, in)
	writeJSON(w, http.StatusCreated, in)
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var matched []woo.Product
	if term := q.Get("search"); term != "" {
		if code, ok := s.FailSearch[term]; ok {
			writeError(w, code, "search_failed", "search failed", 0)
			return
		}
		for _, p := range s.products {
			if strings.Contains(strings.ToLower(p.Name), strings.ToLower(term)) {
				matched = append(matched, p)
			}
		}
	} else if cat := q.Get("category"); cat != "" {
		page, _ := strconv.Atoi(q.Get("page"))
		if s.FailListPage > 0 && page >= s.FailListPage {
			writeError(w, http.StatusInternalServerError, "internal", "boom", 0)
			return
		}
		id, _ := strconv.ParseInt(cat, 10, 64)
		for _, p := range s.products {
			for _, link := range p.Categories {
				if link.ID == id {
					matched = append(matched, p)
					break
				}
			}
		}
	} else {
		matched = s.products
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	writeJSON(w, http.StatusOK, paginate(matched, r))
}

func (s *Server) saveProduct(w http.ResponseWriter, r *http.Request, id int64) {
	var in woo.Product
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "rest_invalid_json", err.Error(), 0)
		return
	}
	if code, ok := s.FailProducts[in.Name]; ok {
		writeError(w, code, "woocommerce_rest_cannot_create", "rejected", 0)
		return
	}
	if id == 0 {
		s.nextID++
		in.ID = s.nextID
		s.products = append(s.products, in)
		writeJSON(w, http.StatusCreated, in)
		return
	}
	for i := range s.products {
		if s.products[i].ID == id {
			in.ID = id
			s.products[i] = in
			writeJSON(w, http.StatusOK, in)
			return
		}
	}
	writeError(w, http.StatusNotFound, "woocommerce_rest_product_invalid_id", "Invalid ID.", 0)
}

func paginate[T any](items []T, r *http.Request) []T {
	q := r.URL.Query()
	perPage, err := strconv.Atoi(q.Get("per_page"))
	if err != nil || perPage <= 0 {
		perPage = 10
	}
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page <= 0 {
		page = 1
	}
	start := (page - 1) * perPage
	if start >= len(items) {
		return []T{}
	}
	end := min(start+perPage, len(items))
	return items[start:end]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string, resourceID int64) {
	body := map[string]any{
		"code":    code,
		"message": msg,
		"data":    map[string]any{"status": status},
	}
	if resourceID > 0 {
		body["data"] = map[string]any{"status": status, "resource_id": resourceID}
	}
	writeJSON(w, status, body)
}
