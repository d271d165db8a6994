package mavlink

import (
	"encoding/binary"
	"fmt"
	"math"
)

// CommonDialect returns a small, hand-built dialect covering the handful of
// common.xml messages a router needs to exercise every targeting kind, plus
// one custom message in the >= 42000 vendor range (the convention real
// MAVLink dialects use to avoid colliding with upstream ids). A generated
// dialect (from a real common.xml/ardupilotmega.xml) would be produced by a
// separate code-generation step and is out of scope here; this table is
// what that generator's output looks like.
func CommonDialect() *Dialect {
	return NewDialect(
		heartbeatSpec(),
		setModeSpec(),
		paramRequestReadSpec(),
		componentPingSpec(),
	)
}

// --- HEARTBEAT (id 0, broadcast) ---

// Heartbeat announces autopilot presence and mode. Broadcast: every field is
// informational, none names a recipient.
type Heartbeat struct {
	CustomMode     uint32
	Type           uint8
	Autopilot      uint8
	BaseMode       uint8
	SystemStatus   uint8
	MavlinkVersion uint8
}

func (m *Heartbeat) MessageID() uint32 { return 0 }

func heartbeatSpec() *MessageSpec {
	fields := []FieldSpec{
		{Name: "custom_mode", Type: FieldUint32},
		{Name: "type", Type: FieldUint8},
		{Name: "autopilot", Type: FieldUint8},
		{Name: "base_mode", Type: FieldUint8},
		{Name: "system_status", Type: FieldUint8},
		{Name: "mavlink_version", Type: FieldUint8},
	}

	decode := func(p []byte) (Message, error) {
		if len(p) < 9 {
			return nil, fmt.Errorf("heartbeat: payload too short: %d bytes", len(p))
		}
		return &Heartbeat{
			CustomMode:     binary.LittleEndian.Uint32(p[0:4]),
			Type:           p[4],
			Autopilot:      p[5],
			BaseMode:       p[6],
			SystemStatus:   p[7],
			MavlinkVersion: p[8],
		}, nil
	}

	encode := func(msg Message) ([]byte, error) {
		m, ok := msg.(*Heartbeat)
		if !ok {
			return nil, fmt.Errorf("heartbeat: unexpected type %T", msg)
		}
		p := make([]byte, 9)
		binary.LittleEndian.PutUint32(p[0:4], m.CustomMode)
		p[4] = m.Type
		p[5] = m.Autopilot
		p[6] = m.BaseMode
		p[7] = m.SystemStatus
		p[8] = m.MavlinkVersion
		return p, nil
	}

	return NewMessageSpec(0, "HEARTBEAT", fields, TargetBroadcast, decode, encode)
}

// --- SET_MODE (id 11, system-targeted) ---

// SetMode requests a mode change on one system. Component is implicit
// (targets the autopilot), so only target_system participates in addressing.
type SetMode struct {
	CustomMode uint32
	TargetSys  uint8
	BaseMode   uint8
}

func (m *SetMode) MessageID() uint32     { return 11 }
func (m *SetMode) TargetSystemID() uint8 { return m.TargetSys }

func setModeSpec() *MessageSpec {
	fields := []FieldSpec{
		{Name: "custom_mode", Type: FieldUint32},
		{Name: "target_system", Type: FieldUint8},
		{Name: "base_mode", Type: FieldUint8},
	}

	decode := func(p []byte) (Message, error) {
		if len(p) < 6 {
			return nil, fmt.Errorf("set_mode: payload too short: %d bytes", len(p))
		}
		return &SetMode{
			CustomMode: binary.LittleEndian.Uint32(p[0:4]),
			TargetSys:  p[4],
			BaseMode:   p[5],
		}, nil
	}

	encode := func(msg Message) ([]byte, error) {
		m, ok := msg.(*SetMode)
		if !ok {
			return nil, fmt.Errorf("set_mode: unexpected type %T", msg)
		}
		p := make([]byte, 6)
		binary.LittleEndian.PutUint32(p[0:4], m.CustomMode)
		p[4] = m.TargetSys
		p[5] = m.BaseMode
		return p, nil
	}

	return NewMessageSpec(11, "SET_MODE", fields, TargetSystem, decode, encode)
}

// --- PARAM_REQUEST_READ (id 20, system_component-targeted) ---

// ParamRequestRead asks one component on one system for a parameter value.
// param_index -1 means "look up by name" instead.
type ParamRequestRead struct {
	ParamIndex int16
	TargetSys  uint8
	TargetComp uint8
	ParamID    string
}

func (m *ParamRequestRead) MessageID() uint32        { return 20 }
func (m *ParamRequestRead) TargetSystemID() uint8    { return m.TargetSys }
func (m *ParamRequestRead) TargetComponentID() uint8 { return m.TargetComp }

func paramRequestReadSpec() *MessageSpec {
	fields := []FieldSpec{
		{Name: "param_index", Type: FieldInt16},
		{Name: "target_system", Type: FieldUint8},
		{Name: "target_component", Type: FieldUint8},
		{Name: "param_id", Type: FieldChar, Ordinality: 16},
	}

	decode := func(p []byte) (Message, error) {
		if len(p) < 20 {
			return nil, fmt.Errorf("param_request_read: payload too short: %d bytes", len(p))
		}
		return &ParamRequestRead{
			ParamIndex: int16(binary.LittleEndian.Uint16(p[0:2])),
			TargetSys:  p[2],
			TargetComp: p[3],
			ParamID:    trimCString(p[4:20]),
		}, nil
	}

	encode := func(msg Message) ([]byte, error) {
		m, ok := msg.(*ParamRequestRead)
		if !ok {
			return nil, fmt.Errorf("param_request_read: unexpected type %T", msg)
		}
		p := make([]byte, 20)
		binary.LittleEndian.PutUint16(p[0:2], uint16(m.ParamIndex))
		p[2] = m.TargetSys
		p[3] = m.TargetComp
		copy(p[4:20], m.ParamID)
		return p, nil
	}

	return NewMessageSpec(20, "PARAM_REQUEST_READ", fields, TargetSystemComponent, decode, encode)
}

// --- COMPONENT_PING (id 42001, custom/vendor range, component-targeted) ---

// ComponentPing is a vendor extension (id >= 42000, outside the upstream
// common.xml id space) used to probe a single component's liveness
// independent of its host system, and to exercise v2 extension fields.
type ComponentPing struct {
	SeqNum     uint32
	TargetComp uint8
	Payload    float32 // extension field, v2 only
}

func (m *ComponentPing) MessageID() uint32        { return 42001 }
func (m *ComponentPing) TargetComponentID() uint8 { return m.TargetComp }

func componentPingSpec() *MessageSpec {
	fields := []FieldSpec{
		{Name: "seq_num", Type: FieldUint32},
		{Name: "target_component", Type: FieldUint8},
		{Name: "payload", Type: FieldFloat32, Extension: true},
	}

	decode := func(p []byte) (Message, error) {
		if len(p) < 5 {
			return nil, fmt.Errorf("component_ping: payload too short: %d bytes", len(p))
		}
		m := &ComponentPing{
			SeqNum:     binary.LittleEndian.Uint32(p[0:4]),
			TargetComp: p[4],
		}
		if len(p) >= 9 {
			m.Payload = math.Float32frombits(binary.LittleEndian.Uint32(p[5:9]))
		}
		return m, nil
	}

	encode := func(msg Message) ([]byte, error) {
		m, ok := msg.(*ComponentPing)
		if !ok {
			return nil, fmt.Errorf("component_ping: unexpected type %T", msg)
		}
		p := make([]byte, 9)
		binary.LittleEndian.PutUint32(p[0:4], m.SeqNum)
		p[4] = m.TargetComp
		binary.LittleEndian.PutUint32(p[5:9], math.Float32bits(m.Payload))
		return p, nil
	}

	return NewMessageSpec(42001, "COMPONENT_PING", fields, TargetComponent, decode, encode)
}

func trimCString(b []byte) string {
	end := 0
	for end < len(b) && b[end] != 0 {
		end++
	}
	return string(b[:end])
}
