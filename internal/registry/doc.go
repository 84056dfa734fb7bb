// Package registry maintains the device and mount binding records for the
// local system. It pairs device identity resolution with the catalog store:
// attached devices are registered under their stable IDs, stale bindings are
// deactivated, and stored device/path pairs resolve back to live filesystem
// paths through the current bindings.
package registry
