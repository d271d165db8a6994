package transport

import "github.com/skobkin/mavrouter/internal/mavlink"

// minFrameSize is the smallest possible MAVLink v1 frame (6-byte header +
// 0-byte payload... but a real frame always carries at least the 2-byte
// trailer, so 8 bytes is the floor used to decide whether the residual
// buffer could possibly still hold a frame (§4.3).
const minFrameSize = 8

// drainBuffer repeatedly parses buf, emitting a frame event per extracted
// frame, until the codec can't yield another one. Used by both TCP-out and
// serial, whose drivers own a per-connection rolling buffer and must drive
// the codec themselves rather than handing raw chunks to the router.
func drainBuffer(buf []byte, dialect *mavlink.Dialect, key EndpointKey, source Driver, emit func(Event)) []byte {
	for len(buf) >= minFrameSize {
		res := mavlink.Parse(buf, dialect)
		if res.Kind == mavlink.KindIncompleteFrame || res.Consumed == 0 {
			break
		}
		if res.Kind != mavlink.KindNotAFrame {
			emit(Event{Kind: EventFrame, Endpoint: key, Result: res, Driver: source})
		}
		buf = buf[res.Consumed:]
	}

	if len(buf) > 0 && cap(buf) > 4*len(buf) {
		compacted := make([]byte, len(buf))
		copy(compacted, buf)
		buf = compacted
	}

	return buf
}
