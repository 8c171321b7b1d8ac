package search

import (
	"strings"
	"testing"
)

func strp(s string) *string    { return &s }
func intp(i int) *int          { return &i }
func floatp(f float64) *float64 { return &f }
func boolp(b bool) *bool       { return &b }

func TestCompileNilAndEmpty(t *testing.T) {
	var f *Filters
	where, args, err := f.Compile()
	if err != nil || where != "" || args != nil {
		t.Errorf("nil filters: %q %v %v", where, args, err)
	}

	where, args, err = (&Filters{}).Compile()
	if err != nil || where != "" || len(args) != 0 {
		t.Errorf("empty filters: %q %v %v", where, args, err)
	}
}

func TestCompileExactMatches(t *testing.T) {
	f := &Filters{
		Camera:   strp("EOS R5"),
		FileType: strp("NEF"),
	}
	where, args, err := f.Compile()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(where, "camera_model = ?") || !strings.Contains(where, "file_format = ?") {
		t.Errorf("where = %q", where)
	}
	// File type is normalized to lowercase.
	if args[1] != "nef" {
		t.Errorf("file type arg = %v, want nef", args[1])
	}
}

func TestCompileRatingSpecialCase(t *testing.T) {
	where, args, err := (&Filters{Rating: intp(5)}).Compile()
	if err != nil {
		t.Fatal(err)
	}
	if where != "lr_rating = ?" || args[0] != 5 {
		t.Errorf("rating 5: %q %v", where, args)
	}

	where, _, err = (&Filters{Rating: intp(3)}).Compile()
	if err != nil {
		t.Fatal(err)
	}
	if where != "lr_rating >= ?" {
		t.Errorf("rating 3: %q", where)
	}

	if _, _, err := (&Filters{Rating: intp(6)}).Compile(); err == nil {
		t.Error("rating 6 should fail")
	}
}

func TestCompileRanges(t *testing.T) {
	f := &Filters{ISOMin: intp(100), ISOMax: intp(800), ApertureMax: floatp(2.8)}
	where, args, err := f.Compile()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(where, "iso >= ?") || !strings.Contains(where, "iso <= ?") ||
		!strings.Contains(where, "aperture <= ?") {
		t.Errorf("where = %q", where)
	}
	if len(args) != 3 {
		t.Errorf("args = %v", args)
	}

	if _, _, err := (&Filters{ISOMin: intp(800), ISOMax: intp(100)}).Compile(); err == nil {
		t.Error("inverted range should fail")
	}
}

func TestCompileOrientationClass(t *testing.T) {
	for class, want := range map[string]string{
		"landscape": "aspect_ratio > 1",
		"portrait":  "aspect_ratio < 1",
		"square":    "aspect_ratio = 1",
	} {
		where, _, err := (&Filters{OrientationClass: strp(class)}).Compile()
		if err != nil {
			t.Fatalf("%s: %v", class, err)
		}
		if !strings.Contains(where, want) {
			t.Errorf("%s: where = %q", class, where)
		}
	}
	if _, _, err := (&Filters{OrientationClass: strp("diagonal")}).Compile(); err == nil {
		t.Error("unknown orientation class should fail")
	}
}

func TestCompileBooleans(t *testing.T) {
	where, _, err := (&Filters{HasGPS: boolp(true)}).Compile()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(where, "gps_latitude IS NOT NULL") {
		t.Errorf("has gps: %q", where)
	}

	where, args, err := (&Filters{SyncOutOfDate: boolp(true)}).Compile()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(where, "sync_state NOT IN") || len(args) != 3 {
		t.Errorf("out of date: %q %v", where, args)
	}
}

func TestCompileDateRange(t *testing.T) {
	f := &Filters{DateFrom: strp("2024-01-01"), DateTo: strp("2024-06-30")}
	where, args, err := f.Compile()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(where, "datetime_original >= ?") || !strings.Contains(where, "datetime_original <= ?") {
		t.Errorf("where = %q", where)
	}
	// Inclusive end of day on the upper bound.
	if args[1] != "2024-06-30 23:59:59" {
		t.Errorf("upper bound = %v", args[1])
	}

	if _, _, err := (&Filters{DateFrom: strp("bad")}).Compile(); err == nil {
		t.Error("invalid date should fail")
	}
	f = &Filters{DateFrom: strp("2024-06-30"), DateTo: strp("2024-01-01")}
	if _, _, err := f.Compile(); err == nil {
		t.Error("inverted date range should fail")
	}
}
