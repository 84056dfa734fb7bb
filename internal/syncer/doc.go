// Package syncer converges catalog records written by different systems.
// Each sweep visits the records not yet reconciled since the previous sweep,
// decides whether the underlying file or device is still reachable from this
// system, and either takes over ownership of the record or retires it. When a
// record cannot be verified either way it is kept; deletion only happens when
// the file is verifiably gone from a reachable device.
package syncer
