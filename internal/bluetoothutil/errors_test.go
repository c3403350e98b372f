package bluetoothutil

import (
	"fmt"
	"testing"

	"github.com/godbus/dbus/v5"
)

type plainErr string

func (e plainErr) Error() string {
	return string(e)
}

func TestIsDBusErrorName(t *testing.T) {
	err := dbus.NewError("org.bluez.Error.InProgress", nil)
	if !IsDBusErrorName(err, "org.bluez.Error.InProgress") {
		t.Fatalf("expected pointer match")
	}
	if !IsDBusErrorName(fmt.Errorf("scan: %w", *err), "org.bluez.Error.InProgress") {
		t.Fatalf("expected wrapped value match")
	}
	if IsDBusErrorName(err, "org.bluez.Error.Failed") {
		t.Fatalf("unexpected match for another name")
	}
	if IsDBusErrorName(plainErr("plain"), "org.bluez.Error.InProgress") {
		t.Fatalf("unexpected match for plain error")
	}
}

func TestErrorClassifiers(t *testing.T) {
	tests := []struct {
		name     string
		classify func(error) bool
		err      error
		want     bool
	}{
		{"stop scan nil", IsBenignStopScanError, nil, true},
		{"stop scan not ready", IsBenignStopScanError, dbus.NewError("org.bluez.Error.NotReady", nil), true},
		{"stop scan nothing started", IsBenignStopScanError, dbus.NewError("org.bluez.Error.Failed", []any{"No discovery started"}), true},
		{"stop scan serious", IsBenignStopScanError, plainErr("adapter removed"), false},
		{"in progress nil", IsScanAlreadyInProgressError, nil, false},
		{"in progress dbus", IsScanAlreadyInProgressError, dbus.NewError("org.bluez.Error.InProgress", nil), true},
		{"in progress text", IsScanAlreadyInProgressError, plainErr("Operation already in progress"), true},
		{"in progress other", IsScanAlreadyInProgressError, plainErr("busy"), false},
		{"advertising nil", IsAlreadyAdvertisingError, nil, false},
		{"advertising dbus", IsAlreadyAdvertisingError, dbus.NewError("org.bluez.Error.AlreadyExists", nil), true},
		{"advertising other", IsAlreadyAdvertisingError, plainErr("permission denied"), false},
		{"peer gone dbus", IsPeerGoneError, dbus.NewError("org.bluez.Error.NotConnected", nil), true},
		{"peer gone no reply", IsPeerGoneError, dbus.NewError("org.freedesktop.DBus.Error.NoReply", nil), true},
		{"peer gone wrapped", IsPeerGoneError, fmt.Errorf("notify: %w", plainErr("device disconnected")), true},
		{"peer gone busy", IsPeerGoneError, plainErr("busy"), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.classify(tc.err); got != tc.want {
				t.Fatalf("got %v want %v for %v", got, tc.want, tc.err)
			}
		})
	}
}
