// Package domain defines the core domain types and interfaces.
//
// This package contains concept-oriented files (mood.go, record.go, stats.go, snapshot.go, etc.)
// with shared types and cross-cutting interfaces. Apart from small value-type helpers there is no
// implementation code here; interfaces live on the consumer side of each adapter.
package domain
