package transport

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"tinygo.org/x/bluetooth"

	"github.com/skobkin/scribblego/internal/bluetoothutil"
	"github.com/skobkin/scribblego/internal/settings"
)

const (
	defaultBluetoothDiscoverWait  = 12 * time.Second
	defaultBluetoothSubscribeWait = 8 * time.Second
	// BLE-MIDI packets must fit the default ATT payload.
	maxBLEMIDIPacket = 20
)

type bluetoothConnState struct {
	device bluetooth.Device
	io     bluetooth.DeviceCharacteristic

	closed    chan struct{}
	closeOnce sync.Once
	errMu     sync.RWMutex
	asyncErr  error
}

// BLEClientPort connects to a BLE-MIDI peripheral as a central.
type BLEClientPort struct {
	address   string
	adapterID string

	mu      sync.RWMutex
	conn    *bluetoothConnState
	writeMu sync.Mutex
	queue   *messageQueue
	decoder bleMIDIDecoder
	start   time.Time
	onPeer  func(bool)
}

func NewBLEClientPort(address, adapterID string) *BLEClientPort {
	return &BLEClientPort{
		address:   strings.TrimSpace(address),
		adapterID: strings.TrimSpace(adapterID),
		queue:     newMessageQueue("ble", defaultMessageQueueSize),
		start:     time.Now(),
	}
}

func (t *BLEClientPort) Name() string {
	return "ble"
}

func (t *BLEClientPort) Kind() settings.Transport {
	return settings.TransportBLE
}

func (t *BLEClientPort) StatusTarget() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.address
}

func (t *BLEClientPort) OnPeerChange(fn func(connected bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPeer = fn
}

func (t *BLEClientPort) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.conn != nil
}

func (t *BLEClientPort) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger := portLogger("ble", "role", "client", "address", t.address, "adapter", t.adapterID)

	if t.conn != nil {
		logger.Debug("connect skipped: already connected")

		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr, err := parseBluetoothAddress(t.address)
	if err != nil {
		logger.Warn("connect failed: invalid address", "error", err)

		return err
	}

	logger.Info("connecting")
	adapter, err := bluetoothutil.OpenAdapter(t.adapterID)
	if err != nil {
		logger.Warn("enable adapter failed", "error", err)

		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	device, err := adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil && shouldRetryBluetoothConnectWithDiscovery(err) {
		logger.Info("direct connect failed, trying discovery fallback", "error", err)
		if discoverErr := discoverBluetoothDevice(ctx, adapter, addr); discoverErr != nil {
			return fmt.Errorf("connect bluetooth device %q: %w", t.address, errors.Join(err, fmt.Errorf("discovery failed: %w", discoverErr)))
		}
		device, err = adapter.Connect(addr, bluetooth.ConnectionParams{})
	}
	if err != nil {
		logger.Warn("connect device failed", "error", err)

		return fmt.Errorf("connect bluetooth device %q: %w", t.address, err)
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{bluetoothutil.MIDIServiceUUID()})
	if err != nil {
		_ = device.Disconnect()

		return fmt.Errorf("discover midi service: %w", err)
	}
	if len(services) == 0 {
		_ = device.Disconnect()

		return errors.New("BLE-MIDI service is not available")
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{bluetoothutil.MIDIIOUUID()})
	if err != nil {
		_ = device.Disconnect()

		return fmt.Errorf("discover midi characteristic: %w", err)
	}
	if len(chars) != 1 {
		_ = device.Disconnect()

		return fmt.Errorf("unexpected characteristic count: %d", len(chars))
	}

	state := &bluetoothConnState{
		device: device,
		io:     chars[0],
		closed: make(chan struct{}),
	}
	t.decoder = bleMIDIDecoder{}

	if err := enableBluetoothNotificationsWithTimeout(ctx, device, state.io, func(packet []byte) {
		t.handlePacket(packet)
	}, defaultBluetoothSubscribeWait); err != nil {
		_ = device.Disconnect()
		logger.Warn("subscribe to notifications failed", "error", err)

		return fmt.Errorf("subscribe to midi notifications: %w", err)
	}

	if err := ctx.Err(); err != nil {
		state.markClosed()
		_ = state.io.EnableNotifications(nil)
		_ = device.Disconnect()

		return err
	}

	t.conn = state
	if t.onPeer != nil {
		go t.onPeer(true)
	}
	logger.Info("connected")

	return nil
}

func (t *BLEClientPort) Close() error {
	t.mu.Lock()
	logger := portLogger("ble", "role", "client", "address", t.address)
	state := t.conn
	t.conn = nil
	onPeer := t.onPeer
	t.mu.Unlock()
	if state == nil {
		return nil
	}

	state.markClosed()
	var closeErr error
	if err := state.io.EnableNotifications(nil); err != nil {
		closeErr = errors.Join(closeErr, fmt.Errorf("disable midi notifications: %w", err))
	}
	if err := state.device.Disconnect(); err != nil {
		closeErr = errors.Join(closeErr, fmt.Errorf("disconnect bluetooth device: %w", err))
	}
	if onPeer != nil {
		onPeer(false)
	}
	if closeErr != nil {
		logger.Warn("close failed", "error", closeErr)

		return closeErr
	}
	logger.Info("closed")

	return nil
}

func (t *BLEClientPort) ReadMessage(ctx context.Context) (midi.Message, error) {
	state, err := t.currentState()
	if err != nil {
		return nil, err
	}
	msg, err := t.queue.pop(ctx, state.closed)
	if errors.Is(err, ErrNotConnected) {
		if asyncErr := state.closeErr(); asyncErr != nil {
			return nil, asyncErr
		}
	}

	return msg, err
}

func (t *BLEClientPort) WriteMessage(ctx context.Context, msg midi.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	state, err := t.currentState()
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	for _, packet := range splitBLEMIDIPackets(bleTimestamp(t.start), msg) {
		written, err := state.io.WriteWithoutResponse(packet)
		if err != nil {
			if bluetoothutil.IsPeerGoneError(err) {
				go t.failState(state, err)

				return ErrNotConnected
			}

			return fmt.Errorf("write midi characteristic: %w", err)
		}
		if written != len(packet) {
			return fmt.Errorf("short write to midi characteristic: wrote %d of %d", written, len(packet))
		}
	}

	return nil
}

func (t *BLEClientPort) handlePacket(packet []byte) {
	msgs, err := t.decoder.Decode(packet)
	for _, msg := range msgs {
		t.queue.push(msg)
	}
	if err != nil {
		portLogger("ble").Debug("malformed ble-midi packet", "len", len(packet), "error", err)
	}
}

func (t *BLEClientPort) currentState() (*bluetoothConnState, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.conn == nil {
		return nil, ErrNotConnected
	}

	return t.conn, nil
}

func (t *BLEClientPort) failState(state *bluetoothConnState, err error) {
	state.setAsyncError(err)
	state.markClosed()

	t.mu.Lock()
	lost := t.conn == state
	if lost {
		t.conn = nil
	}
	onPeer := t.onPeer
	t.mu.Unlock()

	_ = state.io.EnableNotifications(nil)
	_ = state.device.Disconnect()
	if lost && onPeer != nil {
		onPeer(false)
	}
	portLogger("ble").Warn("connection failed and was closed", "error", err)
}

// bleTimestamp is the 13-bit millisecond clock carried by BLE-MIDI packets.
func bleTimestamp(start time.Time) uint16 {
	return uint16(time.Since(start).Milliseconds() & 0x1FFF)
}

// splitBLEMIDIPackets encodes msg, splitting long SysEx across continuation packets.
func splitBLEMIDIPackets(ts uint16, msg midi.Message) [][]byte {
	packet := encodeBLEMIDIPacket(ts, []midi.Message{msg})
	if len(packet) <= maxBLEMIDIPacket {
		return [][]byte{packet}
	}

	header := packet[0]
	body := packet[1:]
	var packets [][]byte
	for len(body) > 0 {
		n := min(len(body), maxBLEMIDIPacket-1)
		// keep the closing timestamp and F7 together
		if n == len(body)-1 && body[len(body)-1] == 0xF7 {
			n--
		}
		chunk := append([]byte{header}, body[:n]...)
		packets = append(packets, chunk)
		body = body[n:]
	}

	return packets
}

func parseBluetoothAddress(raw string) (bluetooth.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return bluetooth.Address{}, errors.New("bluetooth address is empty")
	}

	mac, err := bluetooth.ParseMAC(strings.ToUpper(trimmed))
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("invalid bluetooth address %q: %w", trimmed, err)
	}

	return bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}, nil
}

func shouldRetryBluetoothConnectWithDiscovery(err error) bool {
	if err == nil || runtime.GOOS != "linux" {
		return false
	}
	msg := strings.ToLower(err.Error())
	if bluetoothutil.IsDBusErrorName(err, "org.freedesktop.DBus.Error.UnknownMethod") {
		return strings.Contains(msg, "org.freedesktop.dbus.properties") &&
			strings.Contains(msg, "method \"get\"")
	}

	return strings.Contains(msg, "org.freedesktop.dbus.properties") &&
		strings.Contains(msg, "method \"get\"") &&
		strings.Contains(msg, "doesn't exist")
}

func discoverBluetoothDevice(ctx context.Context, adapter *bluetooth.Adapter, target bluetooth.Address) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultBluetoothDiscoverWait)
		defer cancel()
	}
	if err := bluetoothutil.WaitForDevice(ctx, adapter, target); err != nil {
		portLogger("ble", "target", target.String()).Warn("device discovery failed", "error", err)

		return err
	}

	return nil
}

func (s *bluetoothConnState) markClosed() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
}

func (s *bluetoothConnState) setAsyncError(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	if s.asyncErr == nil {
		s.asyncErr = err
	}
	s.errMu.Unlock()
}

func (s *bluetoothConnState) closeErr() error {
	s.errMu.RLock()
	defer s.errMu.RUnlock()

	return s.asyncErr
}

func enableBluetoothNotificationsWithTimeout(
	ctx context.Context,
	device bluetooth.Device,
	char bluetooth.DeviceCharacteristic,
	callback func([]byte),
	wait time.Duration,
) error {
	if wait <= 0 {
		wait = defaultBluetoothSubscribeWait
	}

	done := make(chan error, 1)
	go func() {
		done <- char.EnableNotifications(callback)
	}()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = device.Disconnect()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}

		return ctx.Err()
	case <-timer.C:
		_ = device.Disconnect()
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("timed out after %s (abort returned: %w)", wait, err)
			}
		case <-time.After(2 * time.Second):
		}

		return fmt.Errorf("timed out after %s", wait)
	}
}
