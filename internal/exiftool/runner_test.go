package exiftool

import (
	"testing"
)

func TestDecodeSingle(t *testing.T) {
	out := []byte(`[{"SourceFile":"a.jpg","EXIF:Make":"OLYMPUS","EXIF:ISO":200}]`)
	m, err := decodeSingle(out)
	if err != nil {
		t.Fatalf("decodeSingle failed: %v", err)
	}
	if m["EXIF:Make"] != "OLYMPUS" {
		t.Errorf("EXIF:Make = %v", m["EXIF:Make"])
	}
	if m["EXIF:ISO"] != float64(200) {
		t.Errorf("EXIF:ISO = %v", m["EXIF:ISO"])
	}
}

func TestDecodeSingleEmpty(t *testing.T) {
	m, err := decodeSingle([]byte(`[]`))
	if err != nil {
		t.Fatalf("decodeSingle on empty array failed: %v", err)
	}
	if len(m) != 0 {
		t.Errorf("expected empty map, got %v", m)
	}
}

func TestDecodeSingleMalformed(t *testing.T) {
	if _, err := decodeSingle([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed output")
	}
}

func TestNewRunnerDefaultBinary(t *testing.T) {
	r := NewRunner("")
	if r.bin != "exiftool" {
		t.Errorf("default binary = %q, want exiftool", r.bin)
	}
}
