package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/skobkin/mavrouter/internal/mavlink"
)

// TCPOutDriver is a client connection to a remote MAVLink server. It keeps
// a per-connection rolling byte buffer and drains it through the frame
// codec until the residual buffer can't possibly hold another frame
// (§4.3).
type TCPOutDriver struct {
	logger  *slog.Logger
	dialect *mavlink.Dialect
	key     EndpointKey
	host    string
	port    int
	events  chan<- Event

	mu   sync.Mutex
	conn net.Conn
}

func NewTCPOutDriver(logger *slog.Logger, dialect *mavlink.Dialect, host string, port int, events chan<- Event) *TCPOutDriver {
	return &TCPOutDriver{
		logger:  logger.With("driver", "tcpout", "target", net.JoinHostPort(host, strconv.Itoa(port))),
		dialect: dialect,
		key:     EndpointKey(fmt.Sprintf("tcpout:%s:%d", host, port)),
		host:    host,
		port:    port,
		events:  events,
	}
}

func (d *TCPOutDriver) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		d.publishStatus(StatusConnecting, nil)
		dialer := net.Dialer{Timeout: 6 * time.Second}
		conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(d.host, strconv.Itoa(d.port)))
		if err != nil {
			d.logger.Warn("connect failed", "error", err)
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

func (d *TCPOutDriver) setConn(conn net.Conn) {
	d.mu.Lock()
	d.conn = conn
	d.mu.Unlock()
}

func (d *TCPOutDriver) readLoop(ctx context.Context, conn net.Conn) error {
	var buf []byte
	chunk := make([]byte, 2048)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			buf = drainBuffer(buf, d.dialect, d.key, d, func(ev Event) { d.events <- ev })
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}

			return err
		}
	}
}

func (d *TCPOutDriver) Forward(ctx context.Context, _ EndpointKey, raw []byte) error {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("tcpout: not connected to %s:%d", d.host, d.port)
	}
	if deadline, hasDeadline := ctx.Deadline(); hasDeadline {
		_ = conn.SetWriteDeadline(deadline)
	}
	_, err := conn.Write(raw)

	return err
}

func (d *TCPOutDriver) publishStatus(status Status, err error) {
	d.events <- Event{Kind: EventStatus, Endpoint: d.key, Status: status, Err: err, Driver: d}
}
