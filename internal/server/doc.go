// Package server exposes the catalog over HTTP: health probes, a status API
// for checkpoints and bindings, device-relative path resolution, and a
// dedicated Prometheus metrics listener.
package server
