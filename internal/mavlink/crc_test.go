package mavlink

import "testing"

func TestCRCExtra_Heartbeat(t *testing.T) {
	spec := heartbeatSpec()
	if spec.CRCExtra != 50 {
		t.Fatalf("HEARTBEAT CRC_EXTRA = %d, want 50", spec.CRCExtra)
	}
}

func TestFrameChecksum_RoundTrip(t *testing.T) {
	spec := heartbeatSpec()
	msg := &Heartbeat{Type: 1, Autopilot: 3, BaseMode: 0, SystemStatus: 4, MavlinkVersion: 3}
	payload, err := spec.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	body := append([]byte{byte(len(payload)), 0, 1, 1, 0}, payload...)
	crc := frameChecksum(body, spec.CRCExtra)

	packed, err := Pack(V1, spec.ID, spec.CRCExtra, 1, 1, 0, payload)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	gotCRC := uint16(packed[len(packed)-2]) | uint16(packed[len(packed)-1])<<8
	if gotCRC != crc {
		t.Fatalf("packed trailer CRC = %#x, want %#x", gotCRC, crc)
	}
}
