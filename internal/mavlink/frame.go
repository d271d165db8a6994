package mavlink

const (
	stxV1 = 0xFE
	stxV2 = 0xFD

	headerLenV1 = 6
	headerLenV2 = 10
	trailerLen  = 2
)

// Frame is an in-flight MAVLink PDU, decoded or partially decoded.
type Frame struct {
	Version           Version
	PayloadLength     uint8
	IncompatibleFlags uint8
	CompatibleFlags   uint8
	Sequence          uint8
	SystemID          uint8
	ComponentID       uint8
	MessageID         uint32
	CRCExtra          uint8
	Payload           []byte
	Checksum          uint16
	Raw               []byte

	Message         Message
	TargetSystem    uint8
	TargetComponent uint8
	TargetKind      TargetKind
}

// Result is the outcome of one Parse call: either a usable Frame (Kind ==
// KindNone, KindUnknownMessage, KindChecksumInvalid, KindFailedToUnpack, or
// KindIncompatibleFlags all populate Frame with the raw bytes extracted;
// only KindNone and KindUnknownMessage carry decode-worthy data) or a
// "keep waiting"/"resync" signal with Frame == nil.
type Result struct {
	Frame    *Frame
	Consumed int
	Kind     Kind
}

// Parse scans buf for one MAVLink v1 or v2 frame. It never blocks and
// never allocates more than one frame's worth of data. Callers should loop:
// advance buf by Consumed bytes and call Parse again, stopping when Kind is
// KindIncompleteFrame (wait for more bytes) or Consumed == 0 with an empty
// remaining buffer.
func Parse(buf []byte, dialect *Dialect) Result {
	if len(buf) == 0 {
		return Result{Kind: KindIncompleteFrame}
	}

	i := 0
	for i < len(buf) && buf[i] != stxV1 && buf[i] != stxV2 {
		i++
	}
	if i > 0 {
		return Result{Consumed: i, Kind: KindNotAFrame}
	}

	if buf[0] == stxV1 {
		return parseV1(buf, dialect)
	}

	return parseV2(buf, dialect)
}

func parseV1(buf []byte, dialect *Dialect) Result {
	if len(buf) < 2 {
		return Result{Kind: KindIncompleteFrame}
	}
	payloadLen := int(buf[1])
	total := headerLenV1 + payloadLen + trailerLen
	if len(buf) < total {
		return Result{Kind: KindIncompleteFrame}
	}

	raw := append([]byte(nil), buf[:total]...)
	frame := &Frame{
		Version:       V1,
		PayloadLength: uint8(payloadLen),
		Sequence:      raw[2],
		SystemID:      raw[3],
		ComponentID:   raw[4],
		MessageID:     uint32(raw[5]),
		Payload:       append([]byte(nil), raw[headerLenV1:headerLenV1+payloadLen]...),
		Checksum:      uint16(raw[headerLenV1+payloadLen]) | uint16(raw[headerLenV1+payloadLen+1])<<8,
		Raw:           raw,
	}

	return finishParse(frame, dialect, raw[1:headerLenV1+payloadLen], total)
}

func parseV2(buf []byte, dialect *Dialect) Result {
	if len(buf) < headerLenV2 {
		return Result{Kind: KindIncompleteFrame}
	}
	payloadLen := int(buf[1])
	total := headerLenV2 + payloadLen + trailerLen
	if len(buf) < total {
		return Result{Kind: KindIncompleteFrame}
	}

	raw := append([]byte(nil), buf[:total]...)
	incompat := raw[2]
	frame := &Frame{
		Version:           V2,
		PayloadLength:     uint8(payloadLen),
		IncompatibleFlags: incompat,
		CompatibleFlags:   raw[3],
		Sequence:          raw[4],
		SystemID:          raw[5],
		ComponentID:       raw[6],
		MessageID:         uint32(raw[7]) | uint32(raw[8])<<8 | uint32(raw[9])<<16,
		Payload:           append([]byte(nil), raw[headerLenV2:headerLenV2+payloadLen]...),
		Checksum:          uint16(raw[headerLenV2+payloadLen]) | uint16(raw[headerLenV2+payloadLen+1])<<8,
		Raw:               raw,
	}

	if incompat != 0 {
		return Result{Frame: frame, Consumed: total, Kind: KindIncompatibleFlags}
	}

	return finishParse(frame, dialect, raw[1:headerLenV2+payloadLen], total)
}

// finishParse looks up the dialect, validates the checksum, restores v2
// truncation, and decodes. crcBody is the raw slice from byte 1 through the
// end of the payload (v1 and v2 differ only in header width).
func finishParse(frame *Frame, dialect *Dialect, crcBody []byte, total int) Result {
	spec, err := dialect.Attributes(frame.MessageID)
	if err != nil {
		return Result{Frame: frame, Consumed: total, Kind: KindUnknownMessage}
	}
	frame.CRCExtra = spec.CRCExtra

	computed := frameChecksum(crcBody, spec.CRCExtra)
	if computed != frame.Checksum {
		return Result{Frame: frame, Consumed: total, Kind: KindChecksumInvalid}
	}

	decodeLen := spec.CoreLength
	if frame.Version == V2 {
		decodeLen = spec.ExpectedLength
	}
	payload := frame.Payload
	if uint16(len(payload)) < decodeLen {
		padded := make([]byte, decodeLen)
		copy(padded, payload)
		payload = padded
	}

	msg, derr := spec.Decode(payload)
	if derr != nil {
		return Result{Frame: frame, Consumed: total, Kind: KindFailedToUnpack}
	}
	frame.Message = msg
	frame.TargetKind = spec.Targeting
	frame.TargetSystem, frame.TargetComponent = ResolveTarget(spec.Targeting, msg)

	return Result{Frame: frame, Consumed: total, Kind: KindNone}
}

// Pack assembles final on-wire bytes for an outgoing frame from an
// already-serialized wire-order payload.
func Pack(version Version, messageID uint32, crcExtra uint8, systemID, componentID, sequence uint8, payload []byte) ([]byte, error) {
	switch version {
	case V1:
		return packV1(messageID, crcExtra, systemID, componentID, sequence, payload)
	case V2:
		return packV2(messageID, crcExtra, systemID, componentID, sequence, payload)
	default:
		return nil, newErr(KindFailedToUnpack, errProtocolUndefined)
	}
}

func packV1(messageID uint32, crcExtra uint8, systemID, componentID, sequence uint8, payload []byte) ([]byte, error) {
	if messageID > 0xFF {
		return nil, errMessageIDTooWideForV1
	}
	if len(payload) > 255 {
		return nil, errPayloadTooLarge
	}

	frame := make([]byte, headerLenV1+len(payload)+trailerLen)
	frame[0] = stxV1
	frame[1] = byte(len(payload))
	frame[2] = sequence
	frame[3] = systemID
	frame[4] = componentID
	frame[5] = byte(messageID)
	copy(frame[headerLenV1:], payload)

	crc := frameChecksum(frame[1:headerLenV1+len(payload)], crcExtra)
	frame[headerLenV1+len(payload)] = byte(crc)
	frame[headerLenV1+len(payload)+1] = byte(crc >> 8)

	return frame, nil
}

func packV2(messageID uint32, crcExtra uint8, systemID, componentID, sequence uint8, payload []byte) ([]byte, error) {
	if messageID > 0xFFFFFF {
		return nil, errMessageIDTooWideForV2
	}
	truncated := truncateTrailingZeros(payload)
	if len(truncated) > 255 {
		return nil, errPayloadTooLarge
	}

	frame := make([]byte, headerLenV2+len(truncated)+trailerLen)
	frame[0] = stxV2
	frame[1] = byte(len(truncated))
	frame[2] = 0 // incompatible_flags: signing unsupported, always zero
	frame[3] = 0 // compatible_flags
	frame[4] = sequence
	frame[5] = systemID
	frame[6] = componentID
	frame[7] = byte(messageID)
	frame[8] = byte(messageID >> 8)
	frame[9] = byte(messageID >> 16)
	copy(frame[headerLenV2:], truncated)

	crc := frameChecksum(frame[1:headerLenV2+len(truncated)], crcExtra)
	frame[headerLenV2+len(truncated)] = byte(crc)
	frame[headerLenV2+len(truncated)+1] = byte(crc >> 8)

	return frame, nil
}

// truncateTrailingZeros drops trailing zero bytes for v2 payload packing,
// but never below length 1.
func truncateTrailingZeros(payload []byte) []byte {
	end := len(payload)
	for end > 1 && payload[end-1] == 0 {
		end--
	}

	return payload[:end]
}

// EncodeFrame packs a typed Message through the dialect and wraps it in a
// full on-wire frame, ready to hand to a driver's Forward.
func EncodeFrame(dialect *Dialect, msg Message, version Version, systemID, componentID, sequence uint8) ([]byte, error) {
	id, payload, crcExtra, _, err := dialect.Encode(msg, version)
	if err != nil {
		return nil, err
	}

	return Pack(version, id, crcExtra, systemID, componentID, sequence, payload)
}
