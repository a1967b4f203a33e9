// Collection grouping and ordered navigation across the latest-per-slug set.

package repository

import (
	"context"
	"sort"

	"github.com/docforge/docforge/internal/docs"
)

// UncategorizedCollection is the synthetic group for documents with no
// collection. It always sorts last.
const UncategorizedCollection = "Uncategorized"

// Collection is a named, ordered group of documents.
type Collection struct {
	Name string           `json:"name"`
	Docs []*docs.Document `json:"docs"`
}

// ListCollections groups the latest version of every visible slug by
// collection. Within a collection documents sort by order ascending (missing
// order after all explicit orders), tie-broken by title then slug.
func (r *Repository) ListCollections(ctx context.Context, o Options) ([]Collection, error) {
	latest, err := r.latestPerSlug(ctx, o)
	if err != nil {
		return nil, err
	}

	groups := map[string][]*docs.Document{}
	for _, d := range latest {
		name := d.Collection
		if name == "" {
			name = UncategorizedCollection
		}
		groups[name] = append(groups[name], d)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i] == UncategorizedCollection {
			return false
		}
		if names[j] == UncategorizedCollection {
			return true
		}
		return names[i] < names[j]
	})

	out := make([]Collection, 0, len(names))
	for _, name := range names {
		ds := groups[name]
		sort.Slice(ds, func(i, j int) bool {
			oi, oj := ds[i].Order, ds[j].Order
			switch {
			case oi != nil && oj != nil && *oi != *oj:
				return *oi < *oj
			case oi != nil && oj == nil:
				return true
			case oi == nil && oj != nil:
				return false
			}
			if ds[i].Title != ds[j].Title {
				return ds[i].Title < ds[j].Title
			}
			return ds[i].Slug < ds[j].Slug
		})
		out = append(out, Collection{Name: name, Docs: ds})
	}
	return out, nil
}

// PrevNext returns the documents immediately before and after doc within its
// collection's sorted order. Either side is nil at a boundary, both are nil
// when the document has no collection.
func (r *Repository) PrevNext(ctx context.Context, doc *docs.Document, o Options) (prev, next *docs.Document, err error) {
	if doc == nil || doc.Collection == "" {
		return nil, nil, nil
	}
	cols, err := r.ListCollections(ctx, o)
	if err != nil {
		return nil, nil, err
	}
	for _, c := range cols {
		if c.Name != doc.Collection {
			continue
		}
		for i, d := range c.Docs {
			if d.Slug != doc.Slug {
				continue
			}
			if i > 0 {
				prev = c.Docs[i-1]
			}
			if i < len(c.Docs)-1 {
				next = c.Docs[i+1]
			}
			return prev, next, nil
		}
	}
	return nil, nil, nil
}
