// Package product defines the record types that flow through the ingestion
// and sync pipeline, together with the artifact codecs used to hand a batch
// from one stage to the next.
package product

import "fmt"

// Record is the unit of work for every pipeline stage.
//
// The JSON shape is the artifact contract between the ingest and sync
// commands and must stay stable. NormalizedPrice is derived from Price and is
// recomputed whenever a batch is loaded, so it is not serialized.
type Record struct {
	Name            string `json:"name"`
	Price           string `json:"price"`
	ImageURL        string `json:"image_url"`
	SourcePath      string `json:"original_image_path"`
	DetailLink      string `json:"product_link"`
	NormalizedPrice int64  `json:"-"`
}

// Key returns the identity key used for deduplication.
func (r Record) Key() string {
	if r.DetailLink != "" {
		return r.DetailLink
	}
	return r.Name
}

// CategoryRef names a remote catalog category. RemoteID is zero until the
// category has been resolved or created remotely.
type CategoryRef struct {
	Name     string `json:"name"`
	RemoteID int64  `json:"remote_id"`
}

// Resolved reports whether the remote id is known.
func (c CategoryRef) Resolved() bool {
	return c.RemoteID > 0
}

// Clone returns a copy of the batch so stages never share backing arrays.
func Clone(batch []Record) []Record {
	if batch == nil {
		return nil
	}
	out := make([]Record, len(batch))
	copy(out, batch)
	return out
}

// Names returns the set of record names in the batch.
func Names(batch []Record) map[string]struct{} {
	out := make(map[string]struct{}, len(batch))
	for _, rec := range batch {
		out[rec.Name] = struct{}{}
	}
	return out
}

// ItemTypeSimple is the remote item type sent for every record.
const ItemTypeSimple = "simple"

// DefaultDescriptionTemplate embeds the raw price text for traceability.
const DefaultDescriptionTemplate = "Scraped from Omaya Class. Original Price: %s"

// Description renders the item description for a record. The template must
// contain a single %s verb, which receives the raw price text.
func Description(template string, rec Record) string {
	if template == "" {
		template = DefaultDescriptionTemplate
	}
	return fmt.Sprintf(template, rec.Price)
}
