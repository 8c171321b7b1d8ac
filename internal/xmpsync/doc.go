// Package xmpsync classifies catalog records against their XMP truth
// sources (embedded stream and/or sidecar file) and performs
// directional transfers between the catalog and XMP.
//
// The one absolute rule: for proprietary RAW files the embedded channel
// is never read and never written. RAW sync is decided exclusively
// against the sidecar.
package xmpsync
