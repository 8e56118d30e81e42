package linux

import (
	"os"
	"testing"
)

func TestGetLastCap_Reasonable(t *testing.T) {
	lastCap := getLastCap()
	if lastCap < 40 || lastCap > 63 {
		t.Errorf("getLastCap() = %d, want a value between 40 and 63", lastCap)
	}
}

func TestGetLastCap_Cached(t *testing.T) {
	first := getLastCap()
	second := getLastCap()
	if first != second {
		t.Errorf("getLastCap() not stable across calls: %d != %d", first, second)
	}
}

func TestDropAll(t *testing.T) {
	err := DropAll()
	if os.Geteuid() == 0 {
		if err != nil {
			t.Errorf("DropAll() as root = %v, want nil", err)
		}
		return
	}
	if err == nil {
		t.Error("DropAll() as non-root = nil, want a permission error")
	}
}

func TestClearAmbient_NoPanic(t *testing.T) {
	clearAmbient()
}
