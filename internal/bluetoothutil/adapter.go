package bluetoothutil

import (
	"fmt"
	"runtime"
	"strings"

	"tinygo.org/x/bluetooth"
)

// OpenAdapter picks the adapter by ID (empty means the default one) and enables it.
func OpenAdapter(adapterID string) (*bluetooth.Adapter, error) {
	adapter := adapterByID(strings.TrimSpace(adapterID))
	if err := adapter.Enable(); err != nil && !isBenignEnableError(err) {
		return nil, fmt.Errorf("enable bluetooth adapter: %w", err)
	}

	return adapter, nil
}

// isBenignEnableError matches the Windows RoInitialize S_FALSE result, which
// tinygo bluetooth reports as "Incorrect function." when COM is already up.
func isBenignEnableError(err error) bool {
	if err == nil || runtime.GOOS != "windows" {
		return false
	}
	msg := strings.TrimSuffix(strings.TrimSpace(strings.ToLower(err.Error())), ".")

	return msg == "incorrect function"
}
