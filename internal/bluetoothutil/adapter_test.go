package bluetoothutil

import (
	"errors"
	"runtime"
	"testing"
)

func TestIsBenignEnableError(t *testing.T) {
	windows := runtime.GOOS == "windows"
	cases := []struct {
		err  error
		want bool
	}{
		{err: nil, want: false},
		{err: errors.New("some other error"), want: false},
		{err: errors.New("Incorrect function."), want: windows},
		{err: errors.New(" incorrect function "), want: windows},
	}
	for _, tc := range cases {
		if got := isBenignEnableError(tc.err); got != tc.want {
			t.Fatalf("isBenignEnableError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestAdapterByID(t *testing.T) {
	if adapterByID("") == nil {
		t.Fatalf("expected default adapter")
	}
	if adapterByID("hci1") == nil {
		t.Fatalf("expected adapter for explicit id")
	}
}
