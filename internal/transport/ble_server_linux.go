//go:build linux

package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"tinygo.org/x/bluetooth"

	"github.com/skobkin/scribblego/internal/bluetoothutil"
	"github.com/skobkin/scribblego/internal/settings"
)

// bleMIDIService is the GATT service registered once per adapter for the process lifetime.
type bleMIDIService struct {
	char bluetooth.Characteristic

	mu      sync.RWMutex
	onWrite func(value []byte)
}

var (
	bleServicesMu sync.Mutex
	bleServices   = map[string]*bleMIDIService{}
)

func registerBLEMIDIService(adapterID string, adapter *bluetooth.Adapter) (*bleMIDIService, error) {
	bleServicesMu.Lock()
	defer bleServicesMu.Unlock()
	if svc, ok := bleServices[adapterID]; ok {
		return svc, nil
	}

	svc := &bleMIDIService{}
	err := adapter.AddService(&bluetooth.Service{
		UUID: bluetoothutil.MIDIServiceUUID(),
		Characteristics: []bluetooth.CharacteristicConfig{{
			Handle: &svc.char,
			UUID:   bluetoothutil.MIDIIOUUID(),
			Value:  []byte{},
			Flags: bluetooth.CharacteristicReadPermission |
				bluetooth.CharacteristicWriteWithoutResponsePermission |
				bluetooth.CharacteristicNotifyPermission,
			WriteEvent: func(_ bluetooth.Connection, _ int, value []byte) {
				svc.mu.RLock()
				fn := svc.onWrite
				svc.mu.RUnlock()
				if fn != nil {
					fn(value)
				}
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("add midi service: %w", err)
	}
	bleServices[adapterID] = svc

	return svc, nil
}

// BLEServerPort advertises the BLE-MIDI service and serves one central.
type BLEServerPort struct {
	adapterID string
	localName string

	mu      sync.RWMutex
	svc     *bleMIDIService
	adv     *bluetooth.Advertisement
	peer    bool
	closed  chan struct{}
	writeMu sync.Mutex
	queue   *messageQueue
	decoder bleMIDIDecoder
	start   time.Time
	onPeer  func(bool)
}

func NewBLEServerPort(adapterID, localName string) (*BLEServerPort, error) {
	return &BLEServerPort{
		adapterID: strings.TrimSpace(adapterID),
		localName: strings.TrimSpace(localName),
		queue:     newMessageQueue("ble", defaultMessageQueueSize),
		start:     time.Now(),
	}, nil
}

func (t *BLEServerPort) Name() string {
	return "ble"
}

func (t *BLEServerPort) Kind() settings.Transport {
	return settings.TransportBLE
}

func (t *BLEServerPort) StatusTarget() string {
	return t.localName
}

func (t *BLEServerPort) OnPeerChange(fn func(connected bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPeer = fn
}

// Connected reports whether a central is attached.
func (t *BLEServerPort) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.svc != nil && t.peer
}

func (t *BLEServerPort) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	logger := portLogger("ble", "role", "server", "adapter", t.adapterID, "local_name", t.localName)
	if t.svc != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	adapter, err := bluetoothutil.OpenAdapter(t.adapterID)
	if err != nil {
		return err
	}
	adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		logger.Info("central connection changed", "address", device.Address.String(), "connected", connected)
		t.setPeer(connected)
	})

	svc, err := registerBLEMIDIService(t.adapterID, adapter)
	if err != nil {
		return err
	}
	adv := adapter.DefaultAdvertisement()
	if err := adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    t.localName,
		ServiceUUIDs: []bluetooth.UUID{bluetoothutil.MIDIServiceUUID()},
	}); err != nil {
		return fmt.Errorf("configure advertisement: %w", err)
	}
	if err := adv.Start(); err != nil && !bluetoothutil.IsAlreadyAdvertisingError(err) {
		return fmt.Errorf("start advertisement: %w", err)
	}

	t.decoder = bleMIDIDecoder{}
	svc.mu.Lock()
	svc.onWrite = t.handlePacket
	svc.mu.Unlock()

	t.svc = svc
	t.adv = adv
	t.closed = make(chan struct{})
	logger.Info("advertising")

	return nil
}

func (t *BLEServerPort) Close() error {
	t.mu.Lock()
	svc := t.svc
	adv := t.adv
	hadPeer := t.peer
	onPeer := t.onPeer
	t.svc = nil
	t.adv = nil
	t.peer = false
	if t.closed != nil {
		close(t.closed)
		t.closed = nil
	}
	t.mu.Unlock()
	if svc == nil {
		return nil
	}

	svc.mu.Lock()
	svc.onWrite = nil
	svc.mu.Unlock()

	var err error
	if adv != nil {
		if stopErr := adv.Stop(); stopErr != nil {
			err = fmt.Errorf("stop advertisement: %w", stopErr)
		}
	}
	if hadPeer && onPeer != nil {
		onPeer(false)
	}
	portLogger("ble", "role", "server").Info("closed")

	return err
}

func (t *BLEServerPort) ReadMessage(ctx context.Context) (midi.Message, error) {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed == nil {
		return nil, ErrNotConnected
	}

	return t.queue.pop(ctx, closed)
}

func (t *BLEServerPort) WriteMessage(ctx context.Context, msg midi.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.RLock()
	svc := t.svc
	peer := t.peer
	t.mu.RUnlock()
	if svc == nil || !peer {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	for _, packet := range splitBLEMIDIPackets(bleTimestamp(t.start), msg) {
		if _, err := svc.char.Write(packet); err != nil {
			if bluetoothutil.IsPeerGoneError(err) {
				t.setPeer(false)

				return ErrNotConnected
			}

			return fmt.Errorf("notify midi characteristic: %w", err)
		}
	}

	return nil
}

func (t *BLEServerPort) handlePacket(packet []byte) {
	msgs, err := t.decoder.Decode(packet)
	for _, msg := range msgs {
		t.queue.push(msg)
	}
	if err != nil {
		portLogger("ble", "role", "server").Debug("malformed ble-midi packet", "len", len(packet), "error", err)
	}
}

func (t *BLEServerPort) setPeer(connected bool) {
	t.mu.Lock()
	changed := t.svc != nil && t.peer != connected
	if t.svc != nil {
		t.peer = connected
	}
	onPeer := t.onPeer
	t.mu.Unlock()
	if changed && onPeer != nil {
		onPeer(connected)
	}
}
