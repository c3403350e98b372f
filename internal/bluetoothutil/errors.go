package bluetoothutil

import (
	"errors"
	"strings"

	"github.com/godbus/dbus/v5"
)

// errorClass recognises one failure by its BlueZ D-Bus name, or by message text
// on platforms where the stack does not surface D-Bus errors.
type errorClass struct {
	dbusNames []string
	texts     []string
}

func (c errorClass) matches(err error) bool {
	if err == nil {
		return false
	}
	for _, name := range c.dbusNames {
		if IsDBusErrorName(err, name) {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, text := range c.texts {
		if strings.Contains(msg, text) {
			return true
		}
	}

	return false
}

var (
	stopScanNoise = errorClass{
		dbusNames: []string{"org.bluez.Error.NotReady"},
		texts:     []string{"no discovery started", "cancel", "stopped", "not scanning", "no scan in progress"},
	}
	scanBusy = errorClass{
		dbusNames: []string{"org.bluez.Error.InProgress"},
		texts:     []string{"already in progress"},
	}
	alreadyAdvertising = errorClass{
		dbusNames: []string{"org.bluez.Error.AlreadyExists"},
		texts:     []string{"already exists"},
	}
	peerGone = errorClass{
		dbusNames: []string{"org.bluez.Error.NotConnected", "org.freedesktop.DBus.Error.NoReply"},
		texts:     []string{"not connected", "disconnected"},
	}
)

// IsDBusErrorName matches both value and pointer dbus.Error anywhere in the chain.
func IsDBusErrorName(err error, want string) bool {
	if ptr := (*dbus.Error)(nil); errors.As(err, &ptr) && ptr != nil {
		return ptr.Name == want
	}
	var val dbus.Error

	return errors.As(err, &val) && val.Name == want
}

// IsBenignStopScanError reports StopScan failures that only mean nothing was scanning.
func IsBenignStopScanError(err error) bool {
	return err == nil || stopScanNoise.matches(err)
}

func IsScanAlreadyInProgressError(err error) bool {
	return scanBusy.matches(err)
}

// IsAlreadyAdvertisingError reports BlueZ refusing a second advertisement registration.
func IsAlreadyAdvertisingError(err error) bool {
	return alreadyAdvertising.matches(err)
}

// IsPeerGoneError reports a write to a central that already disconnected.
func IsPeerGoneError(err error) bool {
	return peerGone.matches(err)
}
