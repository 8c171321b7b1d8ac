package metadata

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// nsPrefixes is the namespace cascade tried for every logical field,
// in priority order. The empty prefix matches bare tag names.
var nsPrefixes = []string{
	"XMP-dc:", "XMP-lr:", "XMP-xmp:", "XMP-exif:", "XMP:",
	"EXIF:", "IFD0:", "Main:", "Composite:", "IPTC:", "",
}

// FirstValue resolves tag through the namespace cascade and returns the
// first non-empty value found.
func FirstValue(m map[string]interface{}, tag string) (interface{}, bool) {
	for _, prefix := range nsPrefixes {
		if v, ok := m[prefix+tag]; ok && !isEmpty(v) {
			return v, true
		}
	}
	return nil, false
}

func isEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []interface{}:
		return len(t) == 0
	}
	return false
}

// String resolves tag to a trimmed string, or "" when absent.
func String(m map[string]interface{}, tag string) string {
	v, ok := FirstValue(m, tag)
	if !ok {
		return ""
	}
	return strings.TrimSpace(asString(v))
}

// Float resolves tag to a float64, or 0 when absent or unparseable.
func Float(m map[string]interface{}, tag string) float64 {
	v, ok := FirstValue(m, tag)
	if !ok {
		return 0
	}
	f, _ := asFloat(v)
	return f
}

// Int resolves tag to an int, or 0 when absent or unparseable.
func Int(m map[string]interface{}, tag string) int {
	f, ok := FirstValue(m, tag)
	if !ok {
		return 0
	}
	if n, ok := asFloat(f); ok {
		return int(n)
	}
	return 0
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, asString(e))
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprintf("%v", v)
}

func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		// Tolerate unit suffixes like "24.0 mm" or "f/2.8".
		s = strings.TrimPrefix(s, "f/")
		if i := strings.IndexByte(s, ' '); i > 0 {
			s = s[:i]
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// NormalizeDateTime converts EXIF "YYYY:MM:DD HH:MM:SS" into
// "YYYY-MM-DD HH:MM:SS". Already-normalized strings pass through.
// Trailing timezone or subsecond suffixes are preserved.
func NormalizeDateTime(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 10 {
		return s
	}
	if s[4] == ':' && s[7] == ':' {
		return s[:4] + "-" + s[5:7] + "-" + s[8:]
	}
	return s
}

var dmsPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*deg\s*(\d+(?:\.\d+)?)'?\s*(?:(\d+(?:\.\d+)?)"?)?\s*([NSEW])?`)

// ParseGPSCoord parses a GPS coordinate in decimal or DMS form
// ("45.437", `45 deg 26' 13.20" N`) and applies the hemisphere sign from
// either the inline suffix or the separate ref value ("S", "West", ...).
// Returns nil when the value cannot be parsed.
func ParseGPSCoord(v interface{}, ref string) *float64 {
	if v == nil {
		return nil
	}

	if f, ok := v.(float64); ok {
		return applyHemisphere(f, ref)
	}

	s := strings.TrimSpace(asString(v))
	if s == "" {
		return nil
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return applyHemisphere(f, ref)
	}

	m := dmsPattern.FindStringSubmatch(s)
	if m == nil {
		return nil
	}

	deg, _ := strconv.ParseFloat(m[1], 64)
	min, _ := strconv.ParseFloat(m[2], 64)
	var sec float64
	if m[3] != "" {
		sec, _ = strconv.ParseFloat(m[3], 64)
	}

	val := deg + min/60 + sec/3600
	if m[4] != "" {
		ref = m[4]
	}
	return applyHemisphere(val, ref)
}

func applyHemisphere(v float64, ref string) *float64 {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	if strings.HasPrefix(ref, "S") || strings.HasPrefix(ref, "W") {
		v = -math.Abs(v)
	}
	return &v
}

// ParseShutter converts a shutter speed value into a printable string and
// a decimal. Accepts "1/250", numeric seconds, and strings with an "s"
// suffix.
func ParseShutter(v interface{}) (string, float64) {
	if v == nil {
		return "", 0
	}

	s := strings.TrimSpace(asString(v))
	if s == "" {
		return "", 0
	}

	if num, den, ok := parseFraction(s); ok && den != 0 {
		return s, num / den
	}

	s = strings.TrimSuffix(s, "s")
	d, err := strconv.ParseFloat(s, 64)
	if err != nil || d <= 0 {
		return "", 0
	}
	return FormatShutter(d), d
}

// FormatShutter renders a decimal exposure time as "1/250" for fast
// shutters or "0.5s" for slow ones.
func FormatShutter(d float64) string {
	if d <= 0 {
		return ""
	}
	if d < 0.3 {
		return fmt.Sprintf("1/%d", int(math.Round(1/d)))
	}
	return strconv.FormatFloat(d, 'g', 4, 64) + "s"
}

func parseFraction(s string) (num, den float64, ok bool) {
	i := strings.IndexByte(s, '/')
	if i <= 0 {
		return 0, 0, false
	}
	num, err1 := strconv.ParseFloat(strings.TrimSpace(s[:i]), 64)
	den, err2 := strconv.ParseFloat(strings.TrimSpace(s[i+1:]), 64)
	return num, den, err1 == nil && err2 == nil
}

// symbolic orientation forms, composite patterns first: "Mirror horizontal
// and rotate 270 CW" must not match the bare "Rotate 270 CW" rule.
var orientationComposites = []struct {
	pattern string
	value   int
}{
	{"mirror horizontal and rotate 270 cw", 5},
	{"mirror horizontal and rotate 90 cw", 7},
	{"mirror vertical and rotate 270 cw", 7},
	{"mirror vertical and rotate 90 cw", 5},
}

var orientationSimple = []struct {
	pattern string
	value   int
}{
	{"horizontal (normal)", 1},
	{"mirror horizontal", 2},
	{"rotate 180", 3},
	{"mirror vertical", 4},
	{"rotate 90 cw", 6},
	{"rotate 270 cw", 8},
	{"rotate 90", 6},
	{"rotate 270", 8},
}

// ParseOrientation accepts numeric 1..8 and symbolic EXIF orientation
// forms. Returns 0 when the value is absent or unrecognized.
func ParseOrientation(v interface{}) int {
	if v == nil {
		return 0
	}

	if f, ok := asFloat(v); ok {
		n := int(f)
		if n >= 1 && n <= 8 {
			return n
		}
		return 0
	}

	s := strings.ToLower(strings.TrimSpace(asString(v)))
	for _, c := range orientationComposites {
		if strings.Contains(s, c.pattern) {
			return c.value
		}
	}
	for _, c := range orientationSimple {
		if strings.Contains(s, c.pattern) {
			return c.value
		}
	}
	return 0
}

// ratingKeys is the Adobe-first priority order for ratings.
var ratingKeys = []string{"XMP-xmp:Rating", "XMP-lr:Rating", "EXIF:Rating", "XMP-microsoft:Rating"}

// ParseRating resolves a 1..5 integer rating following Adobe-first
// priority, falling back to any "*:Rating" field. Non-integer and
// out-of-range values are treated as absent.
func ParseRating(m map[string]interface{}) int {
	for _, key := range ratingKeys {
		if v, ok := m[key]; ok {
			if r := ratingValue(v); r != 0 {
				return r
			}
		}
	}
	for key, v := range m {
		if strings.HasSuffix(key, ":Rating") || key == "Rating" {
			if r := ratingValue(v); r != 0 {
				return r
			}
		}
	}
	return 0
}

func ratingValue(v interface{}) int {
	f, ok := asFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0
	}
	n := int(f)
	if n >= 1 && n <= 5 {
		return n
	}
	return 0
}

// labelKeys is the priority order for color labels.
var labelKeys = []string{"XMP-xmp:Label", "XMP-lr:Label", "XMP-photoshop:Urgency"}

// ParseColorLabel resolves the color label following Adobe-first priority,
// falling back to any "*:Label" or "*:ColorLabel" field.
func ParseColorLabel(m map[string]interface{}) string {
	for _, key := range labelKeys {
		if v, ok := m[key]; ok && !isEmpty(v) {
			return strings.TrimSpace(asString(v))
		}
	}
	for key, v := range m {
		if strings.HasSuffix(key, ":Label") || strings.HasSuffix(key, ":ColorLabel") {
			if !isEmpty(v) {
				return strings.TrimSpace(asString(v))
			}
		}
	}
	return ""
}

// CoerceKeywords converts a keyword value of any supported shape into a
// list of trimmed, non-empty strings. Supported shapes: native lists,
// JSON-array-encoded strings, and strings separated by comma, pipe,
// semicolon or newline.
func CoerceKeywords(v interface{}) []string {
	if v == nil {
		return nil
	}

	switch t := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s := strings.TrimSpace(asString(e)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s := strings.TrimSpace(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		if strings.HasPrefix(s, "[") {
			var arr []interface{}
			if err := json.Unmarshal([]byte(s), &arr); err == nil {
				return CoerceKeywords(arr)
			}
		}
		return splitKeywords(s)
	}

	if s := strings.TrimSpace(asString(v)); s != "" {
		return []string{s}
	}
	return nil
}

func splitKeywords(s string) []string {
	sep := func(r rune) bool {
		return r == ',' || r == '|' || r == ';' || r == '\n'
	}
	var out []string
	for _, part := range strings.FieldsFunc(s, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Normalize converts a raw group-prefixed tag map into a Normalized record.
func Normalize(raw map[string]interface{}) *Normalized {
	n := &Normalized{Raw: raw}
	if raw == nil {
		return n
	}

	n.Width = Int(raw, "ImageWidth")
	n.Height = Int(raw, "ImageHeight")

	n.CameraMake = String(raw, "Make")
	n.CameraModel = String(raw, "Model")
	n.LensModel = String(raw, "LensModel")
	if n.LensModel == "" {
		n.LensModel = String(raw, "LensID")
	}
	n.FocalLength = Float(raw, "FocalLength")
	n.FocalLength35mm = Float(raw, "FocalLengthIn35mmFormat")
	if n.FocalLength35mm == 0 {
		n.FocalLength35mm = Float(raw, "FocalLength35efl")
	}
	n.Aperture = Float(raw, "FNumber")
	if n.Aperture == 0 {
		n.Aperture = Float(raw, "Aperture")
	}
	if v, ok := FirstValue(raw, "ExposureTime"); ok {
		n.ShutterSpeed, n.ShutterDecimal = ParseShutter(v)
	} else if v, ok := FirstValue(raw, "ShutterSpeed"); ok {
		n.ShutterSpeed, n.ShutterDecimal = ParseShutter(v)
	}
	n.ISO = Int(raw, "ISO")
	n.ExposureMode = String(raw, "ExposureProgram")
	if n.ExposureMode == "" {
		n.ExposureMode = String(raw, "ExposureMode")
	}
	n.ExposureBias = Float(raw, "ExposureCompensation")
	n.MeteringMode = String(raw, "MeteringMode")
	n.WhiteBalance = String(raw, "WhiteBalance")
	if flash := String(raw, "Flash"); flash != "" {
		n.FlashMode = flash
		lower := strings.ToLower(flash)
		n.FlashUsed = strings.Contains(lower, "fired") && !strings.Contains(lower, "not fire") ||
			lower == "on"
	}
	n.ColorSpace = String(raw, "ColorSpace")
	if v, ok := FirstValue(raw, "Orientation"); ok {
		n.Orientation = ParseOrientation(v)
	}

	n.DateTimeOriginal = NormalizeDateTime(String(raw, "DateTimeOriginal"))
	n.DateTimeDigitized = NormalizeDateTime(String(raw, "CreateDate"))
	n.DateTimeModified = NormalizeDateTime(String(raw, "ModifyDate"))

	if lat, ok := FirstValue(raw, "GPSLatitude"); ok {
		n.GPSLatitude = ParseGPSCoord(lat, String(raw, "GPSLatitudeRef"))
	}
	if lon, ok := FirstValue(raw, "GPSLongitude"); ok {
		n.GPSLongitude = ParseGPSCoord(lon, String(raw, "GPSLongitudeRef"))
	}
	if alt, ok := FirstValue(raw, "GPSAltitude"); ok {
		n.GPSAltitude = ParseGPSCoord(alt, "")
	}
	if dir, ok := FirstValue(raw, "GPSImgDirection"); ok {
		n.GPSDirection = ParseGPSCoord(dir, "")
	}

	n.Artist = String(raw, "Artist")
	if n.Artist == "" {
		n.Artist = String(raw, "Creator")
	}
	n.Copyright = String(raw, "Copyright")
	if n.Copyright == "" {
		n.Copyright = String(raw, "Rights")
	}
	n.Software = String(raw, "Software")

	n.Title = String(raw, "Title")
	n.Description = String(raw, "Description")
	if n.Description == "" {
		n.Description = String(raw, "ImageDescription")
	}
	n.Rating = ParseRating(raw)
	n.ColorLabel = ParseColorLabel(raw)
	n.Instructions = String(raw, "Instructions")

	if kw, ok := FirstValue(raw, "Subject"); ok {
		n.Keywords = CoerceKeywords(kw)
	} else if kw, ok := FirstValue(raw, "Keywords"); ok {
		n.Keywords = CoerceKeywords(kw)
	}

	return n
}
