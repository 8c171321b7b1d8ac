package metadata

// Normalized is the flat, typed result of metadata extraction.
// Zero values mean the field was absent; Raw carries the full
// group-prefixed dump for inspection and pass-through.
type Normalized struct {
	Width  int
	Height int

	CameraMake      string
	CameraModel     string
	LensModel       string
	FocalLength     float64
	FocalLength35mm float64
	Aperture        float64
	ShutterSpeed    string
	ShutterDecimal  float64
	ISO             int
	ExposureMode    string
	ExposureBias    float64
	MeteringMode    string
	WhiteBalance    string
	FlashUsed       bool
	FlashMode       string
	ColorSpace      string
	Orientation     int // 1..8, 0 when absent

	DateTimeOriginal  string
	DateTimeDigitized string
	DateTimeModified  string

	GPSLatitude  *float64
	GPSLongitude *float64
	GPSAltitude  *float64
	GPSDirection *float64

	Artist    string
	Copyright string
	Software  string

	Title        string
	Description  string
	Rating       int // 1..5, 0 when absent
	ColorLabel   string
	Instructions string
	Keywords     []string

	Raw map[string]interface{}
}
