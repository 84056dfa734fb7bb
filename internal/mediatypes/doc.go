// Package mediatypes classifies file extensions into the media categories
// the catalog tracks. It is the single source of truth for which files a
// scan records.
package mediatypes
