//go:build !linux

package transport

import "errors"

// BLEServerPort is only available where BlueZ exposes the peripheral role.
type BLEServerPort struct {
	*BLEClientPort
}

func NewBLEServerPort(_, _ string) (*BLEServerPort, error) {
	return nil, errors.New("ble server role is only supported on linux")
}
