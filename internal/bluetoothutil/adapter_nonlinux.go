//go:build !linux

package bluetoothutil

import "tinygo.org/x/bluetooth"

// Named adapters are a BlueZ feature. Other stacks only have the default one.
func adapterByID(string) *bluetooth.Adapter {
	return bluetooth.DefaultAdapter
}
