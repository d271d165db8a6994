package mavlink

import (
	"bytes"
	"testing"
)

func TestParse_V1Heartbeat(t *testing.T) {
	dialect := CommonDialect()
	msg := &Heartbeat{Type: 1, Autopilot: 3, BaseMode: 0, SystemStatus: 4, MavlinkVersion: 3}
	raw, err := EncodeFrame(dialect, msg, V1, 1, 1, 7)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}

	res := Parse(raw, dialect)
	if res.Kind != KindNone {
		t.Fatalf("Kind = %v, want KindNone", res.Kind)
	}
	if res.Consumed != len(raw) {
		t.Fatalf("Consumed = %d, want %d", res.Consumed, len(raw))
	}
	hb, ok := res.Frame.Message.(*Heartbeat)
	if !ok {
		t.Fatalf("decoded message type = %T, want *Heartbeat", res.Frame.Message)
	}
	if hb.Autopilot != 3 || hb.SystemStatus != 4 {
		t.Fatalf("decoded heartbeat = %+v, want Autopilot=3 SystemStatus=4", hb)
	}
	if res.Frame.TargetKind != TargetBroadcast {
		t.Fatalf("TargetKind = %v, want broadcast", res.Frame.TargetKind)
	}
}

func TestParse_V2SetModeTargeting(t *testing.T) {
	dialect := CommonDialect()
	msg := &SetMode{CustomMode: 4, TargetSys: 9, BaseMode: 81}
	raw, err := EncodeFrame(dialect, msg, V2, 1, 1, 0)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}

	res := Parse(raw, dialect)
	if res.Kind != KindNone {
		t.Fatalf("Kind = %v, want KindNone", res.Kind)
	}
	if res.Frame.TargetKind != TargetSystem {
		t.Fatalf("TargetKind = %v, want system", res.Frame.TargetKind)
	}
	if res.Frame.TargetSystem != 9 {
		t.Fatalf("TargetSystem = %d, want 9", res.Frame.TargetSystem)
	}
	if res.Frame.TargetComponent != 0 {
		t.Fatalf("TargetComponent = %d, want 0 (SetMode has no component field)", res.Frame.TargetComponent)
	}
}

func TestParse_V2Truncation(t *testing.T) {
	dialect := CommonDialect()
	msg := &SetMode{CustomMode: 0, TargetSys: 0, BaseMode: 0}
	raw, err := EncodeFrame(dialect, msg, V2, 1, 1, 0)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}

	// every field is zero, so the packer should have truncated the payload
	// down to 1 byte instead of the full 6-byte core length.
	payloadLen := int(raw[1])
	if payloadLen != 1 {
		t.Fatalf("truncated payload length = %d, want 1", payloadLen)
	}

	res := Parse(raw, dialect)
	if res.Kind != KindNone {
		t.Fatalf("Kind = %v, want KindNone", res.Kind)
	}
	sm, ok := res.Frame.Message.(*SetMode)
	if !ok {
		t.Fatalf("decoded message type = %T, want *SetMode", res.Frame.Message)
	}
	if sm.CustomMode != 0 || sm.TargetSys != 0 || sm.BaseMode != 0 {
		t.Fatalf("restored message = %+v, want all-zero", sm)
	}
}

func TestParse_V2NeverTruncatesBelowOneByte(t *testing.T) {
	got := truncateTrailingZeros(nil)
	if len(got) != 0 {
		t.Fatalf("truncating nil payload = %v, want empty", got)
	}
	got = truncateTrailingZeros([]byte{0, 0, 0})
	if len(got) != 1 {
		t.Fatalf("truncating all-zero payload = %v, want length 1", got)
	}
}

func TestParse_ChecksumInvalid(t *testing.T) {
	dialect := CommonDialect()
	msg := &Heartbeat{Type: 1, Autopilot: 1, BaseMode: 0, SystemStatus: 0, MavlinkVersion: 3}
	raw, err := EncodeFrame(dialect, msg, V1, 1, 1, 0)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	raw[len(raw)-1] ^= 0xFF // corrupt trailer CRC high byte

	res := Parse(raw, dialect)
	if res.Kind != KindChecksumInvalid {
		t.Fatalf("Kind = %v, want KindChecksumInvalid", res.Kind)
	}
	if res.Consumed != len(raw) {
		t.Fatalf("Consumed = %d, want %d (bad frame dropped whole)", res.Consumed, len(raw))
	}
}

func TestParse_UnknownMessage(t *testing.T) {
	dialect := CommonDialect()
	// hand-assemble a v1 frame for message id 99, not in the dialect.
	payload := []byte{1, 2, 3, 4}
	raw := []byte{stxV1, byte(len(payload)), 0, 1, 1, 99}
	raw = append(raw, payload...)
	raw = append(raw, 0xAB, 0xCD) // checksum irrelevant: unknown message skips validation

	res := Parse(raw, dialect)
	if res.Kind != KindUnknownMessage {
		t.Fatalf("Kind = %v, want KindUnknownMessage", res.Kind)
	}
	if res.Consumed != len(raw) {
		t.Fatalf("Consumed = %d, want %d", res.Consumed, len(raw))
	}
	if !bytes.Equal(res.Frame.Payload, payload) {
		t.Fatalf("Frame.Payload = %v, want %v (opaque passthrough)", res.Frame.Payload, payload)
	}
}

func TestParse_IncompatibleFlagsDiscardsFrame(t *testing.T) {
	dialect := CommonDialect()
	msg := &Heartbeat{Type: 1, Autopilot: 1}
	raw, err := EncodeFrame(dialect, msg, V2, 1, 1, 0)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	raw[2] = 0x01 // set incompatible_flags, e.g. signing, which we don't support

	res := Parse(raw, dialect)
	if res.Kind != KindIncompatibleFlags {
		t.Fatalf("Kind = %v, want KindIncompatibleFlags", res.Kind)
	}
	if res.Consumed != len(raw) {
		t.Fatalf("Consumed = %d, want %d", res.Consumed, len(raw))
	}
}

func TestParse_ResyncSkipsGarbage(t *testing.T) {
	dialect := CommonDialect()
	msg := &Heartbeat{Type: 1}
	frame, err := EncodeFrame(dialect, msg, V1, 1, 1, 0)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	garbage := []byte{0x01, 0x02, 0x03}
	buf := append(append([]byte(nil), garbage...), frame...)

	res := Parse(buf, dialect)
	if res.Kind != KindNotAFrame {
		t.Fatalf("Kind = %v, want KindNotAFrame", res.Kind)
	}
	if res.Consumed != len(garbage) {
		t.Fatalf("Consumed = %d, want %d (garbage only)", res.Consumed, len(garbage))
	}

	res = Parse(buf[res.Consumed:], dialect)
	if res.Kind != KindNone {
		t.Fatalf("second Parse Kind = %v, want KindNone", res.Kind)
	}
}

func TestParse_IncompleteFrameWaitsForMoreBytes(t *testing.T) {
	dialect := CommonDialect()
	msg := &Heartbeat{Type: 1}
	frame, err := EncodeFrame(dialect, msg, V1, 1, 1, 0)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}

	res := Parse(frame[:len(frame)-2], dialect)
	if res.Kind != KindIncompleteFrame {
		t.Fatalf("Kind = %v, want KindIncompleteFrame", res.Kind)
	}
	if res.Consumed != 0 {
		t.Fatalf("Consumed = %d, want 0 (wait for the rest)", res.Consumed)
	}
}

func TestParse_EmptyBufferIsIncomplete(t *testing.T) {
	res := Parse(nil, CommonDialect())
	if res.Kind != KindIncompleteFrame {
		t.Fatalf("Kind = %v, want KindIncompleteFrame", res.Kind)
	}
	if res.Frame != nil {
		t.Fatalf("Frame = %+v, want nil", res.Frame)
	}
}

func TestParse_NoStartByteConsumesEverything(t *testing.T) {
	garbage := []byte{0x01, 0x02, 0x03}
	res := Parse(garbage, CommonDialect())
	if res.Kind != KindNotAFrame {
		t.Fatalf("Kind = %v, want KindNotAFrame", res.Kind)
	}
	if res.Consumed != len(garbage) {
		t.Fatalf("Consumed = %d, want %d", res.Consumed, len(garbage))
	}
}

func TestPack_V1RejectsWideMessageID(t *testing.T) {
	_, err := Pack(V1, 42001, 0, 1, 1, 0, []byte{0})
	if err == nil {
		t.Fatalf("expected error packing a v2-only message id as v1")
	}
}
