// Package models defines the marketplace entities mirrored on the device,
// the wire payloads exchanged with the backend and the aggregates computed
// over the local store.
package models
