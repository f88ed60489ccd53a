// Package app owns the refresh cycle.
//
// A Controller turns the record feed into published MapSnapshots: fetch the window,
// aggregate, rank against yesterday's baseline, publish. It holds the current snapshot,
// the degraded flag and the last error; HTTP handlers and the RefreshTicker only talk to it.
package app
