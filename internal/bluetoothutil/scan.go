package bluetoothutil

import (
	"context"
	"fmt"
	"sort"

	"tinygo.org/x/bluetooth"
)

// Peripheral is one BLE-MIDI advertiser seen during a scan.
type Peripheral struct {
	Address string
	Name    string
	RSSI    int16
}

// WaitForDevice scans until target advertises or ctx ends. BlueZ only connects
// to devices it has seen recently, so this primes it before a direct connect.
func WaitForDevice(ctx context.Context, adapter *bluetooth.Adapter, target bluetooth.Address) error {
	found := false
	err := scan(ctx, adapter, func(r bluetooth.ScanResult) bool {
		if r.Address.MAC != target.MAC {
			return false
		}
		found = true

		return true
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("device %q was not discovered; pair it in OS Bluetooth settings and keep it nearby", target.String())
	}

	return nil
}

// ScanMIDI collects peripherals advertising the BLE-MIDI service until ctx ends.
func ScanMIDI(ctx context.Context, adapter *bluetooth.Adapter) ([]Peripheral, error) {
	seen := make(map[string]Peripheral)
	err := scan(ctx, adapter, func(r bluetooth.ScanResult) bool {
		if !r.HasServiceUUID(MIDIServiceUUID()) {
			return false
		}
		addr := r.Address.String()
		p := seen[addr]
		p.Address = addr
		p.RSSI = r.RSSI
		if name := r.LocalName(); name != "" {
			p.Name = name
		}
		seen[addr] = p

		return false
	})
	if err != nil {
		return nil, err
	}

	out := make([]Peripheral, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })

	return out, nil
}

// scan runs one adapter scan until onResult returns true or ctx ends.
// onResult runs on the scan goroutine.
func scan(ctx context.Context, adapter *bluetooth.Adapter, onResult func(bluetooth.ScanResult) bool) error {
	if err := stopScan(adapter); err != nil {
		return fmt.Errorf("reset bluetooth scan state: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
			if onResult(r) {
				_ = a.StopScan()
			}
		})
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		_ = stopScan(adapter)
		err = <-done
	}
	if IsScanAlreadyInProgressError(err) {
		return fmt.Errorf("another bluetooth scan is running: %w", err)
	}
	if err != nil && !IsBenignStopScanError(err) {
		return fmt.Errorf("scan bluetooth devices: %w", err)
	}

	return nil
}

func stopScan(adapter *bluetooth.Adapter) error {
	if err := adapter.StopScan(); err != nil && !IsBenignStopScanError(err) {
		return err
	}

	return nil
}
