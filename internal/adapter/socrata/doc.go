// Package socrata queries the SODA open-data API for service-request records.
//
// A fetch tries the configured dataset first. When that attempt fails for any
// reason (transport, non-2xx status, schema) the client asks the catalog search
// endpoint for a replacement dataset id, falling back to a known-good id, and
// tries exactly once more.
package socrata
