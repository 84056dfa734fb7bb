// Package pathutil converts between absolute on-disk paths, device mount
// points, and canonical device-relative paths.
//
// Relative paths are the catalog's stable file identity: the same physical
// file scanned from two different mount points must resolve to the same
// relative path. All functions are pure string manipulation with no
// filesystem access, so they behave identically for paths that originated on
// another platform.
package pathutil
