package config

import "testing"

func TestDefault(t *testing.T) {
	b := Default()
	if b.BIOSPath != "" || b.ForceCGB || b.Frames != 0 || b.StartInDoubleSpeed {
		t.Fatalf("Default() = %+v, want zero value", b)
	}
}
