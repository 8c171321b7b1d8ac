// Package metadata extracts and normalizes EXIF/XMP metadata.
//
// Raw tool output is a flat map of group-prefixed tags. Normalization
// resolves each logical field through a cascade of namespace prefixes,
// converts EXIF datetimes to ISO-style strings, parses decimal and DMS
// GPS coordinates, and coerces keyword values of any supported shape
// into a list of strings.
//
// Reads are format-aware: standard files use only the embedded stream,
// RAW files only the sidecar, and DNG merges both with the sidecar
// winning on conflict.
package metadata
