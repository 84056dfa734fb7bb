// Package startup wires configuration into running components: build
// metadata, default file locations, database store selection, and the
// startup/shutdown logging every command shares.
package startup
