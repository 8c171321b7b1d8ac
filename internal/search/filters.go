package search

import (
	"fmt"
	"strings"
	"time"
)

// Filters is the structured predicate compiled into SQL over the
// images table. Nil fields are absent predicates.
type Filters struct {
	// Exact matches.
	Camera           *string
	Lens             *string
	FileType         *string
	RawFormat        *string
	FlashUsed        *bool
	ExposureMode     *string
	OrientationClass *string // landscape, portrait, square
	Monochrome       *bool
	ColorLabel       *string

	// Ranges. A nil bound leaves that side open.
	FocalMin, FocalMax         *float64
	Focal35Min, Focal35Max     *float64
	ISOMin, ISOMax             *int
	ApertureMin, ApertureMax   *float64
	BiasMin, BiasMax           *float64
	AestheticMin, AestheticMax *float64
	TechnicalMin, TechnicalMax *float64

	// Rating: the predicate is "= 5" when Rating is 5, ">= n" otherwise.
	Rating *int

	// Booleans.
	HasGPS        *bool
	SyncOutOfDate *bool

	// Date range over datetime_original, "YYYY-MM-DD" bounds.
	DateFrom *string
	DateTo   *string
}

// Compile translates the filters into a WHERE clause (without the
// keyword) and its arguments. Invalid predicate values are compilation
// errors surfaced to the caller.
func (f *Filters) Compile() (string, []interface{}, error) {
	if f == nil {
		return "", nil, nil
	}

	var clauses []string
	var args []interface{}

	eq := func(column string, value interface{}) {
		clauses = append(clauses, column+" = ?")
		args = append(args, value)
	}

	if f.Camera != nil {
		eq("camera_model", *f.Camera)
	}
	if f.Lens != nil {
		eq("lens_model", *f.Lens)
	}
	if f.FileType != nil {
		eq("file_format", strings.ToLower(*f.FileType))
	}
	if f.RawFormat != nil {
		eq("raw_format", strings.ToLower(*f.RawFormat))
	}
	if f.FlashUsed != nil {
		eq("flash_used", boolArg(*f.FlashUsed))
	}
	if f.ExposureMode != nil {
		eq("exposure_mode", *f.ExposureMode)
	}
	if f.OrientationClass != nil {
		switch *f.OrientationClass {
		case "landscape":
			clauses = append(clauses, "aspect_ratio > 1")
		case "portrait":
			clauses = append(clauses, "aspect_ratio < 1 AND aspect_ratio > 0")
		case "square":
			clauses = append(clauses, "aspect_ratio = 1")
		default:
			return "", nil, fmt.Errorf("invalid orientation class %q", *f.OrientationClass)
		}
	}
	if f.Monochrome != nil {
		eq("is_monochrome", boolArg(*f.Monochrome))
	}
	if f.ColorLabel != nil {
		eq("color_label", *f.ColorLabel)
	}

	if err := addRangeF(&clauses, &args, "focal_length", f.FocalMin, f.FocalMax); err != nil {
		return "", nil, err
	}
	if err := addRangeF(&clauses, &args, "focal_length_35mm", f.Focal35Min, f.Focal35Max); err != nil {
		return "", nil, err
	}
	if err := addRangeI(&clauses, &args, "iso", f.ISOMin, f.ISOMax); err != nil {
		return "", nil, err
	}
	if err := addRangeF(&clauses, &args, "aperture", f.ApertureMin, f.ApertureMax); err != nil {
		return "", nil, err
	}
	if err := addRangeF(&clauses, &args, "exposure_bias", f.BiasMin, f.BiasMax); err != nil {
		return "", nil, err
	}
	if err := addRangeF(&clauses, &args, "aesthetic_score", f.AestheticMin, f.AestheticMax); err != nil {
		return "", nil, err
	}
	if err := addRangeF(&clauses, &args, "technical_score", f.TechnicalMin, f.TechnicalMax); err != nil {
		return "", nil, err
	}

	if f.Rating != nil {
		r := *f.Rating
		if r < 1 || r > 5 {
			return "", nil, fmt.Errorf("invalid rating filter %d", r)
		}
		if r == 5 {
			clauses = append(clauses, "lr_rating = ?")
		} else {
			clauses = append(clauses, "lr_rating >= ?")
		}
		args = append(args, r)
	}

	if f.HasGPS != nil {
		if *f.HasGPS {
			clauses = append(clauses, "gps_latitude IS NOT NULL AND gps_longitude IS NOT NULL")
		} else {
			clauses = append(clauses, "(gps_latitude IS NULL OR gps_longitude IS NULL)")
		}
	}
	if f.SyncOutOfDate != nil {
		if *f.SyncOutOfDate {
			clauses = append(clauses, "sync_state NOT IN (?, ?, ?)")
		} else {
			clauses = append(clauses, "sync_state IN (?, ?, ?)")
		}
		args = append(args, "PERFECT_SYNC", "NO_XMP", "")
	}

	if f.DateFrom != nil {
		if err := checkDate(*f.DateFrom); err != nil {
			return "", nil, err
		}
		clauses = append(clauses, "datetime_original >= ?")
		args = append(args, *f.DateFrom)
	}
	if f.DateTo != nil {
		if err := checkDate(*f.DateTo); err != nil {
			return "", nil, err
		}
		// Inclusive upper bound over the whole day.
		clauses = append(clauses, "datetime_original <= ?")
		args = append(args, *f.DateTo+" 23:59:59")
	}
	if f.DateFrom != nil && f.DateTo != nil && *f.DateFrom > *f.DateTo {
		return "", nil, fmt.Errorf("date range inverted: %s > %s", *f.DateFrom, *f.DateTo)
	}

	return strings.Join(clauses, " AND "), args, nil
}

func boolArg(b bool) int {
	if b {
		return 1
	}
	return 0
}

func addRangeF(clauses *[]string, args *[]interface{}, column string, min, max *float64) error {
	if min != nil && max != nil && *min > *max {
		return fmt.Errorf("%s range inverted: %v > %v", column, *min, *max)
	}
	if min != nil {
		*clauses = append(*clauses, column+" >= ?")
		*args = append(*args, *min)
	}
	if max != nil {
		*clauses = append(*clauses, column+" <= ?")
		*args = append(*args, *max)
	}
	return nil
}

func addRangeI(clauses *[]string, args *[]interface{}, column string, min, max *int) error {
	if min != nil && max != nil && *min > *max {
		return fmt.Errorf("%s range inverted: %d > %d", column, *min, *max)
	}
	if min != nil {
		*clauses = append(*clauses, column+" >= ?")
		*args = append(*args, *min)
	}
	if max != nil {
		*clauses = append(*clauses, column+" <= ?")
		*args = append(*args, *max)
	}
	return nil
}

func checkDate(s string) error {
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return nil
}
