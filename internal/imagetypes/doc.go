// Package imagetypes classifies image files by extension and computes
// content fingerprints.
//
// Files fall into one of four categories:
//   - standard: common raster formats (JPEG, PNG, TIFF, ...)
//   - raw: proprietary camera RAW formats (CR2, NEF, ARW, ...)
//   - dng: Adobe DNG, which carries both embedded and sidecar metadata
//   - unknown: anything else
//
// The category drives the metadata read/write policy and the thumbnail
// extraction strategy elsewhere in the catalog.
package imagetypes
