// Package dedup merges per-source batches into one list of new listings.
package dedup

import "github.com/amishk599/jobinbox/internal/model"

// Merge concatenates batches in the order given and keeps the first listing
// seen for each origin URL. Listings already in known, or without an origin
// URL, are dropped. known is not modified.
func Merge(known model.KeySet, batches ...[]model.Listing) []model.Listing {
	total := 0
	for _, b := range batches {
		total += len(b)
	}

	seen := make(model.KeySet, total)
	out := make([]model.Listing, 0, total)
	for _, batch := range batches {
		for _, l := range batch {
			if l.OriginURL == "" || known.Has(l.OriginURL) || seen.Has(l.OriginURL) {
				continue
			}
			seen.Add(l.OriginURL)
			out = append(out, l)
		}
	}
	return out
}
