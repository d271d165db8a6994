package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/skobkin/mavrouter/internal/mavlink"
)

const maxDatagramSize = 2048

// UDPInDriver binds a local (ip, port) and treats every datagram as
// exactly one frame. Peers are learned on first receive and multiplexed
// onto the one bound socket, one EndpointKey per peer (§4.3).
type UDPInDriver struct {
	logger    *slog.Logger
	dialect   *mavlink.Dialect
	bindAddr  *net.UDPAddr
	statusKey EndpointKey
	events    chan<- Event

	mu    sync.Mutex
	peers map[EndpointKey]*net.UDPAddr
	conn  *net.UDPConn
}

func NewUDPInDriver(logger *slog.Logger, dialect *mavlink.Dialect, ip string, port int, events chan<- Event) *UDPInDriver {
	addr := &net.UDPAddr{IP: net.ParseIP(ip), Port: port}

	return &UDPInDriver{
		logger:    logger.With("driver", "udpin", "bind", addr.String()),
		dialect:   dialect,
		bindAddr:  addr,
		statusKey: EndpointKey(fmt.Sprintf("udpin:%s", addr.String())),
		events:    events,
		peers:     make(map[EndpointKey]*net.UDPAddr),
	}
}

func (d *UDPInDriver) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		d.publishStatus(StatusConnecting, nil)
		conn, err := net.ListenUDP("udp", d.bindAddr)
		if err != nil {
			d.logger.Error("bind failed", "error", err)
			d.publishStatus(StatusReconnecting, err)
			if !sleepWithContext(ctx, reconnectBackoff) {
				return
			}
			continue
		}

		d.setConn(conn)
		d.publishStatus(StatusConnected, nil)
		err = d.readLoop(ctx, conn)
		_ = conn.Close()
		d.setConn(nil)
		d.publishStatus(StatusReconnecting, err)

		if !sleepWithContext(ctx, reconnectBackoff) {
			return
		}
	}
}

func (d *UDPInDriver) setConn(conn *net.UDPConn) {
	d.mu.Lock()
	d.conn = conn
	d.mu.Unlock()
}

func (d *UDPInDriver) readLoop(ctx context.Context, conn *net.UDPConn) error {
	buf := make([]byte, maxDatagramSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, peer, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}

			return err
		}
		if d.isOwnAddress(peer) {
			continue
		}

		key := d.learnPeer(peer)
		data := append([]byte(nil), buf[:n]...)
		res := mavlink.Parse(data, d.dialect)
		d.events <- Event{Kind: EventFrame, Endpoint: key, Result: res, Driver: d}
	}
}

func (d *UDPInDriver) isOwnAddress(peer *net.UDPAddr) bool {
	return peer.Port == d.bindAddr.Port && peer.IP.Equal(d.bindAddr.IP)
}

func (d *UDPInDriver) learnPeer(peer *net.UDPAddr) EndpointKey {
	key := EndpointKey(fmt.Sprintf("udpin:%s", peer.String()))

	d.mu.Lock()
	if _, ok := d.peers[key]; !ok {
		d.peers[key] = peer
		d.logger.Info("peer learned", "peer", peer.String())
	}
	d.mu.Unlock()

	return key
}

func (d *UDPInDriver) Forward(ctx context.Context, key EndpointKey, raw []byte) error {
	d.mu.Lock()
	peer, ok := d.peers[key]
	conn := d.conn
	d.mu.Unlock()

	if !ok || conn == nil {
		return fmt.Errorf("udpin: no known peer for endpoint %q", key)
	}
	if deadline, hasDeadline := ctx.Deadline(); hasDeadline {
		_ = conn.SetWriteDeadline(deadline)
	}
	_, err := conn.WriteToUDP(raw, peer)

	return err
}

func (d *UDPInDriver) publishStatus(status Status, err error) {
	d.events <- Event{Kind: EventStatus, Endpoint: d.statusKey, Status: status, Err: err, Driver: d}
}
