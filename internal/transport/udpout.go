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

// UDPOutDriver opens an ephemeral local socket and targets one configured
// (ip, port). Received datagrams are handled symmetrically to UDP-in,
// allowing bidirectional use over the same connected socket (§4.3).
type UDPOutDriver struct {
	logger  *slog.Logger
	dialect *mavlink.Dialect
	key     EndpointKey
	target  *net.UDPAddr
	events  chan<- Event

	mu   sync.Mutex
	conn *net.UDPConn
}

func NewUDPOutDriver(logger *slog.Logger, dialect *mavlink.Dialect, ip string, port int, events chan<- Event) *UDPOutDriver {
	target := &net.UDPAddr{IP: net.ParseIP(ip), Port: port}

	return &UDPOutDriver{
		logger:  logger.With("driver", "udpout", "target", target.String()),
		dialect: dialect,
		key:     EndpointKey(fmt.Sprintf("udpout:%s", target.String())),
		target:  target,
		events:  events,
	}
}

func (d *UDPOutDriver) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		d.publishStatus(StatusConnecting, nil)
		conn, err := net.DialUDP("udp", nil, d.target)
		if err != nil {
			d.logger.Error("dial failed", "error", err)
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

func (d *UDPOutDriver) setConn(conn *net.UDPConn) {
	d.mu.Lock()
	d.conn = conn
	d.mu.Unlock()
}

func (d *UDPOutDriver) readLoop(ctx context.Context, conn *net.UDPConn) error {
	buf := make([]byte, maxDatagramSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := conn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}

			return err
		}

		data := append([]byte(nil), buf[:n]...)
		res := mavlink.Parse(data, d.dialect)
		d.events <- Event{Kind: EventFrame, Endpoint: d.key, Result: res, Driver: d}
	}
}

func (d *UDPOutDriver) Forward(ctx context.Context, _ EndpointKey, raw []byte) error {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("udpout: not connected to %s", d.target)
	}
	if deadline, hasDeadline := ctx.Deadline(); hasDeadline {
		_ = conn.SetWriteDeadline(deadline)
	}
	_, err := conn.Write(raw)

	return err
}

func (d *UDPOutDriver) publishStatus(status Status, err error) {
	d.events <- Event{Kind: EventStatus, Endpoint: d.key, Status: status, Err: err, Driver: d}
}
