package logging

import "testing"

func TestGetLevelDefault(t *testing.T) {
	// Without LOG_LEVEL/DEBUG set the default is Info.
	level := GetLevel()
	if level < LevelDebug || level > LevelError {
		t.Errorf("GetLevel returned out-of-range level %d", level)
	}
}

func TestSetDebug(t *testing.T) {
	SetDebug(true)
	if !IsDebugEnabled() {
		t.Error("expected debug to be enabled after SetDebug(true)")
	}

	// SetDebug(false) never lowers the level; it only raises it when true.
	SetDebug(false)
	if !IsDebugEnabled() {
		t.Error("SetDebug(false) must not lower an already-raised level")
	}
}
