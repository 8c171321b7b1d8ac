// Package metrics defines the Prometheus collectors for the photo catalog.
//
// Metrics cover the catalog store, the ingestion pipeline, thumbnail
// derivation, the external metadata tool, XMP synchronization, badge
// refresh scheduling and retrieval queries. All collectors are registered
// via promauto at package init.
package metrics
