package imagetypes

import (
	"path/filepath"
	"strings"
)

// Category represents the metadata-handling class of an image file.
type Category string

const (
	// CategoryStandard represents common raster formats with embedded XMP.
	CategoryStandard Category = "standard"
	// CategoryRaw represents proprietary camera RAW formats.
	CategoryRaw Category = "raw"
	// CategoryDNG represents Adobe DNG files.
	CategoryDNG Category = "dng"
	// CategoryUnknown represents unrecognized file types.
	CategoryUnknown Category = "unknown"
)

// RawExtensions maps lowercase RAW extensions (without dot) to true.
var RawExtensions = map[string]bool{
	"cr2": true, "cr3": true, "crw": true,
	"nef": true, "nrw": true,
	"arw": true, "srf": true, "sr2": true,
	"orf": true,
	"raf": true,
	"rw2": true, "raw": true,
	"pef": true, "ptx": true,
	"rwl": true,
	"3fr": true,
	"iiq": true,
	"x3f": true,
}

// StandardExtensions maps lowercase standard extensions (without dot) to true.
var StandardExtensions = map[string]bool{
	"jpg": true, "jpeg": true,
	"tif": true, "tiff": true,
	"png":  true,
	"bmp":  true,
	"webp": true,
	"heic": true,
}

// Ext returns the lowercase extension of path without the leading dot.
func Ext(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// CategoryOf classifies a file by its extension. It never fails;
// unrecognized extensions yield CategoryUnknown.
func CategoryOf(path string) Category {
	ext := Ext(path)
	switch {
	case ext == "dng":
		return CategoryDNG
	case RawExtensions[ext]:
		return CategoryRaw
	case StandardExtensions[ext]:
		return CategoryStandard
	}
	return CategoryUnknown
}

// IsRaw reports whether the file is a proprietary camera RAW.
// DNG is not considered RAW for metadata purposes.
func IsRaw(path string) bool {
	return CategoryOf(path) == CategoryRaw
}

// RawFormat returns the RAW format tag (the lowercase extension) for RAW
// files, or "" for anything else.
func RawFormat(path string) string {
	if !IsRaw(path) {
		return ""
	}
	return Ext(path)
}

// SidecarPath returns the canonical sidecar path for an image: the image
// path with its extension replaced by ".xmp".
func SidecarPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".xmp"
}

// SidecarCandidates returns sidecar paths to probe on read, in priority
// order. Lowercase ".xmp" is canonical; legacy ".XMP" is accepted.
func SidecarCandidates(path string) []string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return []string{base + ".xmp", base + ".XMP"}
}
