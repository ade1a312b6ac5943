// Package cli provides the interactive marketkeeper command-line client.
//
// It drives an initialized app.Core through a small REPL: sign in, browse
// listings and orders, inspect reviews and profile stats, manage the cart
// and queue telemetry. Every read reports where its data came from, so the
// offline behaviour of the core can be observed by stopping the backend.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App and runREPL for details.
package cli
