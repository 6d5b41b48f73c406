// Package identity decides which dedup key scheme can uniquely identify the
// articles of a single fetch batch. Feeds are wildly inconsistent about
// which fields they populate, so the scheme is re-negotiated every batch.
package identity

import "strings"

// Article is a flattened view of a parsed feed item: field name to value.
// Missing fields are simply absent.
type Article map[string]string

// Field returns the article's value for a field, or "" when absent.
func (a Article) Field(name string) string {
	return a[name]
}

// The single-field candidate schemes, in preference order. Merged candidates
// are every unordered pair, joined with "," in this declaration order.
var idFields = []string{"guid", "pubdate", "title"}

func candidateTypes() []string {
	candidates := make([]string, 0, len(idFields)+len(idFields)*(len(idFields)-1)/2)
	candidates = append(candidates, idFields...)
	for i := 0; i < len(idFields); i++ {
		for j := i + 1; j < len(idFields); j++ {
			candidates = append(candidates, idFields[i]+","+idFields[j])
		}
	}
	return candidates
}

// IDValue computes an article's dedup key under a scheme. Merged schemes
// concatenate the member fields' values.
func IDValue(article Article, idType string) string {
	fields := strings.Split(idType, ",")
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(article.Field(f))
	}
	return b.String()
}

// Resolver accumulates one fetch batch's worth of articles and eliminates
// candidate schemes that cannot uniquely identify them. It is a short-lived
// value: build one per batch, record every article, call IDType, discard.
type Resolver struct {
	candidates      []string
	useIDTypes      map[string]bool
	idsRecorded     map[string]map[string]struct{}
	failedTypeNames []string
}

func NewResolver() *Resolver {
	candidates := candidateTypes()
	use := make(map[string]bool, len(candidates))
	recorded := make(map[string]map[string]struct{}, len(candidates))
	for _, c := range candidates {
		use[c] = true
		recorded[c] = make(map[string]struct{})
	}
	return &Resolver{
		candidates:  candidates,
		useIDTypes:  use,
		idsRecorded: recorded,
	}
}

// RecordArticle evaluates every still-viable scheme against one article.
// A scheme dies on an empty value (it cannot identify this article) or on a
// value already seen this batch (it collides, so it cannot be trusted).
func (r *Resolver) RecordArticle(article Article) {
	for _, idType := range r.candidates {
		if !r.useIDTypes[idType] {
			continue
		}

		value := IDValue(article, idType)
		if value == "" {
			r.eliminate(idType)
			continue
		}
		if _, seen := r.idsRecorded[idType][value]; seen {
			r.eliminate(idType)
			continue
		}
		r.idsRecorded[idType][value] = struct{}{}
	}
}

func (r *Resolver) eliminate(idType string) {
	r.useIDTypes[idType] = false
	r.failedTypeNames = append(r.failedTypeNames, idType)
}

// IDType picks the scheme for the batch: a surviving single field first,
// then a surviving merged pair, then the most recently eliminated scheme.
// The final fallback is knowingly imperfect; identity resolution must never
// block delivery.
func (r *Resolver) IDType() string {
	for _, idType := range r.candidates {
		if r.useIDTypes[idType] && !strings.Contains(idType, ",") {
			return idType
		}
	}
	for _, idType := range r.candidates {
		if r.useIDTypes[idType] {
			return idType
		}
	}
	return r.failedTypeNames[len(r.failedTypeNames)-1]
}
