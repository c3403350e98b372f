package transport

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strconv"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/skobkin/scribblego/internal/settings"
)

const rtpReadBuffer = 1500

type rtpPeer struct {
	ssrc    uint32
	name    string
	control *net.UDPAddr
	data    *net.UDPAddr
}

// RTPPort is an AppleMIDI session listener. Peers invite it on the control port
// and exchange RTP-MIDI on the data port (control port + 1).
type RTPPort struct {
	host    string
	port    int
	session string
	ssrc    uint32

	mu      sync.RWMutex
	control *net.UDPConn
	data    *net.UDPConn
	peers   map[uint32]*rtpPeer
	closed  chan struct{}
	wg      sync.WaitGroup
	onPeer  func(bool)
	writeMu sync.Mutex
	seq     uint16
	start   time.Time
	queue   *messageQueue
}

func NewRTPPort(host string, port int, session string) *RTPPort {
	return &RTPPort{
		host:    host,
		port:    port,
		session: session,
		ssrc:    rand.Uint32(),
		peers:   make(map[uint32]*rtpPeer),
		queue:   newMessageQueue("rtp", defaultMessageQueueSize),
	}
}

func (t *RTPPort) Name() string {
	return "rtp"
}

func (t *RTPPort) Kind() settings.Transport {
	return settings.TransportWiFi
}

func (t *RTPPort) StatusTarget() string {
	return net.JoinHostPort(t.host, strconv.Itoa(t.port))
}

func (t *RTPPort) OnPeerChange(fn func(connected bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPeer = fn
}

// Connected reports whether at least one peer completed the data-port invitation.
func (t *RTPPort) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.connectedLocked()
}

func (t *RTPPort) connectedLocked() bool {
	for _, p := range t.peers {
		if p.data != nil {
			return true
		}
	}

	return false
}

func (t *RTPPort) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	logger := portLogger("rtp", "target", t.StatusTarget(), "session", t.session)
	if t.control != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.port <= 0 || t.port >= 65535 {
		return fmt.Errorf("invalid rtp port: %d", t.port)
	}

	var lc net.ListenConfig
	controlConn, err := lc.ListenPacket(ctx, "udp", net.JoinHostPort(t.host, strconv.Itoa(t.port)))
	if err != nil {
		return fmt.Errorf("listen rtp control port: %w", err)
	}
	dataConn, err := lc.ListenPacket(ctx, "udp", net.JoinHostPort(t.host, strconv.Itoa(t.port+1)))
	if err != nil {
		_ = controlConn.Close()

		return fmt.Errorf("listen rtp data port: %w", err)
	}

	t.control = controlConn.(*net.UDPConn)
	t.data = dataConn.(*net.UDPConn)
	t.peers = make(map[uint32]*rtpPeer)
	t.closed = make(chan struct{})
	t.start = time.Now()
	t.wg.Add(2)
	go t.serve(t.control, false)
	go t.serve(t.data, true)
	logger.Info("listening")

	return nil
}

func (t *RTPPort) Close() error {
	t.mu.Lock()
	control, data := t.control, t.data
	peers := t.peers
	hadPeer := t.connectedLocked()
	onPeer := t.onPeer
	t.control, t.data = nil, nil
	t.peers = make(map[uint32]*rtpPeer)
	if t.closed != nil {
		close(t.closed)
	}
	t.mu.Unlock()
	if control == nil {
		return nil
	}

	for _, p := range peers {
		bye := encodeAppleMIDI(appleMIDIPacket{Command: appleMIDIBye, SSRC: t.ssrc})
		if p.control != nil {
			_, _ = control.WriteToUDP(bye, p.control)
		}
	}
	err := errors.Join(control.Close(), data.Close())
	t.wg.Wait()
	if hadPeer && onPeer != nil {
		onPeer(false)
	}
	portLogger("rtp").Info("closed")

	return err
}

func (t *RTPPort) ReadMessage(ctx context.Context) (midi.Message, error) {
	t.mu.RLock()
	closed := t.closed
	listening := t.control != nil
	t.mu.RUnlock()
	if !listening {
		return nil, ErrNotConnected
	}

	return t.queue.pop(ctx, closed)
}

func (t *RTPPort) WriteMessage(ctx context.Context, msg midi.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.RLock()
	conn := t.data
	targets := make([]*net.UDPAddr, 0, len(t.peers))
	for _, p := range t.peers {
		if p.data != nil {
			targets = append(targets, p.data)
		}
	}
	t.mu.RUnlock()
	if conn == nil || len(targets) == 0 {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.seq++
	packet, err := encodeRTPMIDI(t.seq, t.timestamp(), t.ssrc, []midi.Message{msg})
	if err != nil {
		return err
	}
	for _, addr := range targets {
		if _, err := conn.WriteToUDP(packet, addr); err != nil {
			return fmt.Errorf("write rtp to %s: %w", addr, err)
		}
	}

	return nil
}

// timestamp is the session clock in 100 microsecond units.
func (t *RTPPort) timestamp() uint32 {
	return uint32(time.Since(t.start) / (100 * time.Microsecond))
}

func (t *RTPPort) serve(conn *net.UDPConn, isData bool) {
	defer t.wg.Done()
	logger := portLogger("rtp", "data", isData)
	buf := make([]byte, rtpReadBuffer)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				logger.Warn("read failed", "error", err)
			}

			return
		}
		packet := append([]byte(nil), buf[:n]...)
		if isAppleMIDI(packet) {
			t.handleSession(conn, from, packet, isData)

			continue
		}
		if !isData {
			continue
		}
		msgs, _, err := decodeRTPMIDI(packet)
		for _, msg := range msgs {
			t.queue.push(msg)
		}
		if err != nil {
			logger.Debug("malformed rtp-midi packet", "from", from.String(), "error", err)
		}
	}
}

func (t *RTPPort) handleSession(conn *net.UDPConn, from *net.UDPAddr, packet []byte, isData bool) {
	logger := portLogger("rtp", "from", from.String())
	p, err := decodeAppleMIDI(packet)
	if err != nil {
		logger.Debug("malformed applemidi packet", "error", err)

		return
	}

	switch p.Command {
	case appleMIDIInvitation:
		reply := encodeAppleMIDI(appleMIDIPacket{Command: appleMIDIAccept, Token: p.Token, SSRC: t.ssrc, Name: t.session})
		if _, err := conn.WriteToUDP(reply, from); err != nil {
			logger.Warn("accept invitation failed", "error", err)

			return
		}
		t.mu.Lock()
		wasConnected := t.connectedLocked()
		peer, ok := t.peers[p.SSRC]
		if !ok {
			peer = &rtpPeer{ssrc: p.SSRC}
			t.peers[p.SSRC] = peer
		}
		peer.name = p.Name
		if isData {
			peer.data = from
		} else {
			peer.control = from
		}
		nowConnected := t.connectedLocked()
		onPeer := t.onPeer
		t.mu.Unlock()
		logger.Info("invitation accepted", "peer", p.Name, "data", isData)
		if !wasConnected && nowConnected && onPeer != nil {
			onPeer(true)
		}
	case appleMIDIBye:
		t.mu.Lock()
		wasConnected := t.connectedLocked()
		delete(t.peers, p.SSRC)
		nowConnected := t.connectedLocked()
		onPeer := t.onPeer
		t.mu.Unlock()
		logger.Info("peer left", "ssrc", p.SSRC)
		if wasConnected && !nowConnected && onPeer != nil {
			onPeer(false)
		}
	case appleMIDISync:
		if p.Count >= 2 {
			return
		}
		reply := p
		reply.SSRC = t.ssrc
		reply.Count = p.Count + 1
		reply.Timestamps[reply.Count] = uint64(t.timestamp())
		if _, err := conn.WriteToUDP(encodeAppleMIDI(reply), from); err != nil {
			logger.Debug("sync reply failed", "error", err)
		}
	}
}
