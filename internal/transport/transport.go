// Package transport owns the single UDP datagram socket a session binds
// for a room: enabling broadcast, sending fire-and-forget, and yielding
// inbound datagrams to the frame codec (spec §4.3).
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"localchat/internal/debuglog"
	"localchat/internal/localerr"
	"localchat/internal/portmap"
)

// bindWatchdog bounds a single bind attempt, per spec §5's "socket-bind
// operation has a 2-second watchdog".
const bindWatchdog = 2 * time.Second

// BroadcastAddr is the destination used for the room-wide broadcast leg
// of every fan-out send (spec §6.3).
const BroadcastAddr = "255.255.255.255"

// Datagram is one inbound UDP payload and its source.
type Datagram struct {
	Payload []byte
	Addr    net.IP
	Port    int
}

// Transport owns one bound, broadcast-enabled UDP socket.
type Transport struct {
	conn     *net.UDPConn
	port     int
	basePort int
}

// Bind binds a UDP socket for roomName, trying the deterministic base
// port and its sequential fallbacks (spec §4.2) until one succeeds or
// every candidate is exhausted, in which case it returns
// localerr.ErrBindExhausted. The bound socket has broadcast sends
// enabled.
func Bind(roomName string) (*Transport, error) {
	var lastErr error
	for _, port := range portmap.Candidates(roomName) {
		conn, err := bindPort(port)
		if err == nil {
			if la, ok := conn.LocalAddr().(*net.UDPAddr); ok && la.Port != port {
				conn.Close()
				return nil, fmt.Errorf("transport: bound port mismatch: wanted %d, got %d", port, la.Port)
			}
			debuglog.Logf("transport: bound port %d for room", port)
			return &Transport{conn: conn, port: port, basePort: portmap.Port(roomName)}, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("transport: bind %d: %w", port, err)
		}
		lastErr = err
	}
	debuglog.Logf("transport: bind exhausted after %d attempts: %v", portmap.MaxFallbackAttempts, lastErr)
	return nil, localerr.ErrBindExhausted
}

func bindPort(port int) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), bindWatchdog)
	defer cancel()
	pc, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}

// Port reports the bound port.
func (t *Transport) Port() int {
	return t.port
}

// SendTo sends payload to a specific address:port, fire-and-forget.
// PermissionDenied errors are suppressed (common for certain broadcast
// destinations on locked-down hosts); any other error is logged but
// never returned to the session-level caller, per spec §4.3/§7.
func (t *Transport) SendTo(addr string, port int, payload []byte) {
	dst := &net.UDPAddr{IP: net.ParseIP(addr), Port: port}
	if dst.IP == nil {
		debuglog.Logf("transport: send: unparseable address %q", addr)
		return
	}
	_, err := t.conn.WriteToUDP(payload, dst)
	if err == nil {
		return
	}
	if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
		debuglog.Debugf("transport: send to %s:%d suppressed (permission denied)", addr, port)
		return
	}
	debuglog.Logf("transport: %s: %s:%d: %v", localerr.ErrTransportSend, addr, port, err)
}

// Broadcast sends payload to 255.255.255.255 on the room's base port,
// which differs from the bound port when a fallback port was used.
func (t *Transport) Broadcast(payload []byte) {
	t.SendTo(BroadcastAddr, t.basePort, payload)
}

// Recv blocks until the next datagram arrives or ctx is done.
func (t *Transport) Recv(ctx context.Context) (Datagram, error) {
	type result struct {
		dg  Datagram
		err error
	}
	ch := make(chan result, 1)
	go func() {
		buf := make([]byte, 65535)
		n, srcAddr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			ch <- result{err: err}
			return
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		ch <- result{dg: Datagram{Payload: payload, Addr: srcAddr.IP, Port: srcAddr.Port}}
	}()
	select {
	case <-ctx.Done():
		return Datagram{}, ctx.Err()
	case r := <-ch:
		return r.dg, r.err
	}
}

// Close closes the underlying socket.
func (t *Transport) Close() error {
	return t.conn.Close()
}
