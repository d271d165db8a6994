package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/skobkin/mavrouter/internal/mavlink"
)

const defaultSerialReadTimeout = 300 * time.Millisecond

// SerialDriver opens a UART at a configured baud rate and drains its
// rolling read buffer through the frame codec with the same discipline as
// TCP-out (§4.3).
type SerialDriver struct {
	logger   *slog.Logger
	dialect  *mavlink.Dialect
	key      EndpointKey
	portName string
	baudRate int
	events   chan<- Event

	mu   sync.Mutex
	port serial.Port
}

func NewSerialDriver(logger *slog.Logger, dialect *mavlink.Dialect, portName string, baudRate int, events chan<- Event) *SerialDriver {
	return &SerialDriver{
		logger:   logger.With("driver", "serial", "port", portName, "baud", baudRate),
		dialect:  dialect,
		key:      EndpointKey(fmt.Sprintf("serial:%s:%d", portName, baudRate)),
		portName: portName,
		baudRate: baudRate,
		events:   events,
	}
}

func (d *SerialDriver) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		d.publishStatus(StatusConnecting, nil)
		port, err := serial.Open(d.portName, &serial.Mode{BaudRate: d.baudRate})
		if err != nil {
			d.logger.Warn("open failed", "error", err)
			d.publishStatus(StatusReconnecting, err)
			if !sleepWithContext(ctx, reconnectBackoff) {
				return
			}
			continue
		}
		if err := port.SetReadTimeout(defaultSerialReadTimeout); err != nil {
			_ = port.Close()
			d.publishStatus(StatusReconnecting, err)
			if !sleepWithContext(ctx, reconnectBackoff) {
				return
			}
			continue
		}

		d.setPort(port)
		d.publishStatus(StatusConnected, nil)
		err = d.readLoop(ctx, port)
		_ = port.Close()
		d.setPort(nil)
		d.publishStatus(StatusReconnecting, err)

		if !sleepWithContext(ctx, reconnectBackoff) {
			return
		}
	}
}

func (d *SerialDriver) setPort(port serial.Port) {
	d.mu.Lock()
	d.port = port
	d.mu.Unlock()
}

func (d *SerialDriver) readLoop(ctx context.Context, port serial.Port) error {
	var buf []byte
	chunk := make([]byte, 2048)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := port.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			buf = drainBuffer(buf, d.dialect, d.key, d, func(ev Event) { d.events <- ev })
		}
		if err != nil {
			return fmt.Errorf("serial read: %w", err)
		}
	}
}

func (d *SerialDriver) Forward(ctx context.Context, _ EndpointKey, raw []byte) error {
	d.mu.Lock()
	port := d.port
	d.mu.Unlock()

	if port == nil {
		return fmt.Errorf("serial: port %s not open", d.portName)
	}

	written := 0
	for written < len(raw) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := port.Write(raw[written:])
		if err != nil {
			return fmt.Errorf("serial write: %w", err)
		}
		written += n
	}

	return nil
}

func (d *SerialDriver) publishStatus(status Status, err error) {
	d.events <- Event{Kind: EventStatus, Endpoint: d.key, Status: status, Err: err, Driver: d}
}
