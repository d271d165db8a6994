package mavlink

import "fmt"

// Dialect is an immutable message_id -> MessageSpec table. It is safe for
// unsynchronized concurrent reads once built: nothing mutates it after
// NewDialect returns.
type Dialect struct {
	specs map[uint32]*MessageSpec
}

// NewDialect builds a Dialect from generated (or hand-authored, for tests)
// MessageSpecs. Duplicate ids panic: that's a code-generation bug, not a
// runtime condition.
func NewDialect(specs ...*MessageSpec) *Dialect {
	table := make(map[uint32]*MessageSpec, len(specs))
	for _, s := range specs {
		if _, dup := table[s.ID]; dup {
			panic(fmt.Sprintf("mavlink: duplicate message id %d (%s)", s.ID, s.Name))
		}
		table[s.ID] = s
	}

	return &Dialect{specs: table}
}

// Attributes returns the MessageSpec for id, or ErrUnknownMessage.
func (d *Dialect) Attributes(id uint32) (*MessageSpec, error) {
	spec, ok := d.specs[id]
	if !ok {
		return nil, ErrUnknownMessage
	}

	return spec, nil
}

// Decode unpacks a message_id + padded payload into its typed Message.
func (d *Dialect) Decode(id uint32, version Version, paddedPayload []byte) (Message, error) {
	spec, err := d.Attributes(id)
	if err != nil {
		return nil, err
	}

	msg, err := spec.Decode(paddedPayload)
	if err != nil {
		return nil, newErr(KindFailedToUnpack, fmt.Errorf("unpack %s: %w", spec.Name, err))
	}
	_ = version // version does not change field layout, only packing width

	return msg, nil
}

// Encode packs a typed Message and returns its wire id, payload, CRC_EXTRA
// and targeting kind for framing.
func (d *Dialect) Encode(msg Message, version Version) (id uint32, payload []byte, crcExtra uint8, targeting TargetKind, err error) {
	id = msg.MessageID()
	spec, aerr := d.Attributes(id)
	if aerr != nil {
		return 0, nil, 0, TargetBroadcast, aerr
	}

	payload, err = spec.Encode(msg)
	if err != nil {
		return 0, nil, 0, TargetBroadcast, fmt.Errorf("pack %s: %w", spec.Name, err)
	}
	_ = version

	return id, payload, spec.CRCExtra, spec.Targeting, nil
}

// ResolveTarget derives (target_system, target_component) from a spec's
// targeting kind and the decoded message, per §4.1's targeting resolution
// table. Messages implement SystemTargeted/ComponentTargeted for the
// fields the kind requires; a message missing the expected interface
// resolves that half of the pair to 0.
func ResolveTarget(kind TargetKind, msg Message) (targetSystem, targetComponent uint8) {
	if kind == TargetSystem || kind == TargetSystemComponent {
		if st, ok := msg.(SystemTargeted); ok {
			targetSystem = st.TargetSystemID()
		}
	}
	if kind == TargetComponent || kind == TargetSystemComponent {
		if ct, ok := msg.(ComponentTargeted); ok {
			targetComponent = ct.TargetComponentID()
		}
	}

	return targetSystem, targetComponent
}
