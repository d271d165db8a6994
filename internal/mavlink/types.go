package mavlink

import "sort"

// Version is the MAVLink protocol version a frame was framed with.
type Version uint8

const (
	V1 Version = 1
	V2 Version = 2
)

// TargetKind describes which fields of a decoded message address a peer.
type TargetKind int

const (
	TargetBroadcast TargetKind = iota
	TargetSystem
	TargetSystemComponent
	TargetComponent
)

func (k TargetKind) String() string {
	switch k {
	case TargetSystem:
		return "system"
	case TargetSystemComponent:
		return "system_component"
	case TargetComponent:
		return "component"
	default:
		return "broadcast"
	}
}

// FieldType is a MAVLink primitive wire type.
type FieldType int

const (
	FieldUint8 FieldType = iota
	FieldInt8
	FieldUint16
	FieldInt16
	FieldUint32
	FieldInt32
	FieldUint64
	FieldInt64
	FieldFloat32
	FieldFloat64
	FieldChar
)

// Size returns the primitive's wire size in bytes, used both for byte-order
// sorting and payload length accounting.
func (t FieldType) Size() int {
	switch t {
	case FieldUint8, FieldInt8, FieldChar:
		return 1
	case FieldUint16, FieldInt16:
		return 2
	case FieldUint32, FieldInt32, FieldFloat32:
		return 4
	case FieldUint64, FieldInt64, FieldFloat64:
		return 8
	default:
		return 1
	}
}

// WireName is the MAVLink XML type name used in CRC_EXTRA computation.
func (t FieldType) WireName() string {
	switch t {
	case FieldUint8:
		return "uint8_t"
	case FieldInt8:
		return "int8_t"
	case FieldUint16:
		return "uint16_t"
	case FieldInt16:
		return "int16_t"
	case FieldUint32:
		return "uint32_t"
	case FieldInt32:
		return "int32_t"
	case FieldUint64:
		return "uint64_t"
	case FieldInt64:
		return "int64_t"
	case FieldFloat32:
		return "float"
	case FieldFloat64:
		return "double"
	case FieldChar:
		return "char"
	default:
		return "uint8_t"
	}
}

// FieldSpec describes one field of a message in declaration order.
// Ordinality is 1 for a scalar field, >1 for a fixed-size array (a char
// array of length N has Type FieldChar and Ordinality N).
type FieldSpec struct {
	Name       string
	Type       FieldType
	Ordinality int
	Extension  bool
}

func (f FieldSpec) byteSize() int {
	n := f.Ordinality
	if n <= 0 {
		n = 1
	}

	return f.Type.Size() * n
}

// wireOrder sorts fields by MAVLink's payload byte-order rule: descending
// primitive size class, extensions last (in declaration order within each
// group), preserving declaration order within a size class. Stable sort so
// declaration order survives within ties.
func wireOrder(fields []FieldSpec) []FieldSpec {
	core := make([]FieldSpec, 0, len(fields))
	ext := make([]FieldSpec, 0)
	for _, f := range fields {
		if f.Extension {
			ext = append(ext, f)
		} else {
			core = append(core, f)
		}
	}
	sort.SliceStable(core, func(i, j int) bool {
		return core[i].Type.Size() > core[j].Type.Size()
	})

	return append(core, ext...)
}

// Message is implemented by every generated MAVLink message type. It is
// the "sum type + trait" the runtime dispatches on; UnknownMessage plays
// the fallback-variant role for opaque forwarding.
type Message interface {
	MessageID() uint32
}

// SystemTargeted is implemented by messages whose targeting kind is
// TargetSystem or TargetSystemComponent.
type SystemTargeted interface {
	TargetSystemID() uint8
}

// ComponentTargeted is implemented by messages whose targeting kind is
// TargetSystemComponent or TargetComponent.
type ComponentTargeted interface {
	TargetComponentID() uint8
}

// UnknownMessage carries an undecoded payload for a message id absent from
// the loaded dialect, so it can still be forwarded opaquely.
type UnknownMessage struct {
	ID      uint32
	Payload []byte
}

func (m *UnknownMessage) MessageID() uint32 { return m.ID }

// DecodeFunc unpacks a padded-to-full-length payload into a typed Message.
type DecodeFunc func(payload []byte) (Message, error)

// EncodeFunc packs a typed Message into wire-order payload bytes.
type EncodeFunc func(msg Message) ([]byte, error)

// MessageSpec is one dialect table entry: immutable after construction.
type MessageSpec struct {
	ID             uint32
	Name           string
	Fields         []FieldSpec // wire order, core then extension
	CRCExtra       uint8
	CoreLength     uint16
	ExpectedLength uint16 // core + extension, used for v2 truncation restore
	Targeting      TargetKind
	Decode         DecodeFunc
	Encode         EncodeFunc
}

// NewMessageSpec builds a MessageSpec from fields in declaration order,
// computing wire order, CRC_EXTRA, and lengths.
func NewMessageSpec(id uint32, name string, declFields []FieldSpec, targeting TargetKind, decode DecodeFunc, encode EncodeFunc) *MessageSpec {
	wire := wireOrder(declFields)

	var coreLen, extLen uint16
	for _, f := range wire {
		if f.Extension {
			extLen += uint16(f.byteSize())
		} else {
			coreLen += uint16(f.byteSize())
		}
	}

	return &MessageSpec{
		ID:             id,
		Name:           name,
		Fields:         wire,
		CRCExtra:       crcExtraForMessage(name, wire),
		CoreLength:     coreLen,
		ExpectedLength: coreLen + extLen,
		Targeting:      targeting,
		Decode:         decode,
		Encode:         encode,
	}
}
