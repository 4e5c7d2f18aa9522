// Package archive moves aged event and delivery-attempt rows out of the hot
// store into cold object storage.
//
// The Worker sweeps on a fixed interval: rows older than the retention
// window are encoded as JSON lines, written to date-partitioned keys in
// cold storage, and only then deleted from the hot store, so a failed
// upload never loses data. Expired notifications past retention are purged
// outright, cascading their state rows.
package archive
