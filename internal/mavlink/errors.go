package mavlink

import "errors"

// Kind identifies the disposition of a failed parse/decode per the codec's
// error handling table: some kinds keep the frame buffer intact, others
// drop the frame and move on.
type Kind int

const (
	// KindNone means no error occurred.
	KindNone Kind = iota
	// KindNotAFrame means the scanner found no start byte yet; garbage
	// bytes were consumed to resynchronize.
	KindNotAFrame
	// KindIncompleteFrame means a start byte was found but not enough
	// bytes followed yet; the buffer is left intact from the start byte.
	KindIncompleteFrame
	// KindChecksumInvalid means the trailer checksum didn't match.
	KindChecksumInvalid
	// KindUnknownMessage means the message id isn't in the loaded dialect.
	KindUnknownMessage
	// KindFailedToUnpack means the payload couldn't be decoded into its
	// typed message.
	KindFailedToUnpack
	// KindIncompatibleFlags means a v2 frame carried non-zero
	// incompatible_flags and was dropped per §1 (signing unsupported).
	KindIncompatibleFlags
)

func (k Kind) String() string {
	switch k {
	case KindNotAFrame:
		return "not_a_frame"
	case KindIncompleteFrame:
		return "incomplete_frame"
	case KindChecksumInvalid:
		return "checksum_invalid"
	case KindUnknownMessage:
		return "unknown_message"
	case KindFailedToUnpack:
		return "failed_to_unpack"
	case KindIncompatibleFlags:
		return "incompatible_flags"
	default:
		return "none"
	}
}

// CodecError wraps a Kind with the context that produced it.
type CodecError struct {
	Kind Kind
	Err  error
}

func (e *CodecError) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Err.Error()
	}

	return e.Kind.String()
}

func (e *CodecError) Unwrap() error { return e.Err }

func newErr(kind Kind, err error) *CodecError {
	return &CodecError{Kind: kind, Err: err}
}

// Is reports whether err carries the given Kind, for errors.Is(err, KindX)
// style checks against a sentinel-shaped kind wrapper.
func Is(err error, kind Kind) bool {
	var ce *CodecError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}

	return false
}

// ErrUnknownMessage is returned by Dialect.Attributes/Decode for an id with
// no MessageSpec, distinct from a decode failure on a known id.
var ErrUnknownMessage = newErr(KindUnknownMessage, errors.New("message id not in dialect"))

var (
	errProtocolUndefined     = errors.New("mavlink: undefined protocol version")
	errMessageIDTooWideForV1 = errors.New("mavlink: message id exceeds v1's 8-bit id space")
	errMessageIDTooWideForV2 = errors.New("mavlink: message id exceeds v2's 24-bit id space")
	errPayloadTooLarge       = errors.New("mavlink: payload exceeds 255 bytes")
)
