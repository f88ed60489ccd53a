// Package feed serves record sets for a trailing window through a short-lived
// cache, plus the once-per-day "yesterday" baseline used for day-over-day deltas.
package feed
