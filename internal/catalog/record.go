package catalog

import (
	"strings"
)

// ImageRecord is one catalog row. Zero values mean absent for scalar
// fields; GPS coordinates use pointers so that 0.0 remains a valid
// coordinate.
type ImageRecord struct {
	ID         int64
	Filename   string
	Filepath   string
	FileHash   string
	FileSize   int64
	FileFormat string

	IsRaw     bool
	RawFormat string
	RawInfo   string // opaque JSON

	Width       int
	Height      int
	AspectRatio float64
	Megapixels  float64

	CameraMake          string
	CameraModel         string
	LensModel           string
	FocalLength         float64
	FocalLength35mm     float64
	Aperture            float64
	ShutterSpeed        string
	ShutterSpeedDecimal float64
	ISO                 int
	ExposureMode        string
	ExposureBias        float64
	MeteringMode        string
	WhiteBalance        string
	FlashUsed           bool
	FlashMode           string
	ColorSpace          string
	Orientation         int

	DateTimeOriginal  string
	DateTimeDigitized string
	DateTimeModified  string
	ProcessedDate     string

	GPSLatitude  *float64
	GPSLongitude *float64
	GPSAltitude  *float64
	GPSDirection *float64
	GPSCity      string
	GPSState     string
	GPSCountry   string
	GPSLocation  string

	Artist    string
	Copyright string
	Software  string

	Title          string
	Description    string
	LrRating       int // 1..5, 0 when absent
	ColorLabel     string
	LrInstructions string

	ExifJSON string

	ClipEmbedding   []float32
	Dinov2Embedding []float32
	AestheticScore  float64
	TechnicalScore  float64
	IsMonochrome    bool

	Tags            []string
	BioclipTaxonomy []string
	GeoHierarchy    string

	AIDescriptionHash  string
	ModelUsed          string
	ProcessingTime     float64
	EmbeddingGenerated bool
	LLMGenerated       bool
	Success            bool
	ErrorMessage       string
	AppVersion         string

	SyncState       string
	LastXMPMtime    float64 // unix seconds
	LastSyncAt      string
	LastSyncCheckAt string
	LastImportMtime float64
}

// computeDerived fills aspect_ratio and megapixels from the dimensions.
func (r *ImageRecord) computeDerived() {
	if r.Width > 0 && r.Height > 0 {
		r.AspectRatio = float64(r.Width) / float64(r.Height)
		r.Megapixels = float64(r.Width) * float64(r.Height) / 1e6
	}
}

// bioclipPrefixes are the taxonomic markers that must never appear in
// the unified tag space; bioclip_taxonomy is their sole carrier.
var bioclipPrefixes = []string{
	"Specie:", "Genere:", "Famiglia:", "Confidenza:", "Nome comune:",
	"Species:", "Genus:", "Family:", "Confidence:", "Common name:",
	"Kingdom:", "Regno:",
}

// IsBioclipTag reports whether tag carries a taxonomic marker prefix.
// Importers use it to keep such entries out of the unified tag space
// before they reach UpdateTags.
func IsBioclipTag(tag string) bool {
	for _, p := range bioclipPrefixes {
		if strings.HasPrefix(tag, p) {
			return true
		}
	}
	return false
}

// validateTags checks the unified tag list: entries must be non-empty
// after trimming and free of taxonomic markers.
func validateTags(tags []string) error {
	for _, tag := range tags {
		if strings.TrimSpace(tag) == "" {
			return ErrInvalidTags
		}
		if IsBioclipTag(tag) {
			return ErrInvalidTags
		}
	}
	return nil
}

// MaxTaxonomyDepth caps bioclip_taxonomy at kingdom..species-epithet.
const MaxTaxonomyDepth = 7
