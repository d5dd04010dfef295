package textdoc

import (
	"errors"
	"fmt"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

var (
	// ErrInvalidRange is matched by every *InvalidRangeError.
	ErrInvalidRange = errors.New("textdoc: range start is after range end")

	// ErrDeserialization is matched by every *DeserializationError.
	ErrDeserialization = errors.New("textdoc: malformed notification payload")
)

// InvalidRangeError reports a ranged change whose start resolves to a byte
// offset after its end. Conformant clients never send one.
type InvalidRangeError struct {
	Start       protocol.Position
	End         protocol.Position
	StartOffset int
	EndOffset   int
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("textdoc: start offset must not be after end offset: %d:%d (offset %d) is not <= %d:%d (offset %d)",
		e.Start.Line, e.Start.Character, e.StartOffset,
		e.End.Line, e.End.Character, e.EndOffset)
}

func (e *InvalidRangeError) Is(target error) bool { return target == ErrInvalidRange }

// DeserializationError reports a notification whose params could not be
// decoded into the shape its method requires.
type DeserializationError struct {
	Method string
	Err    error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("textdoc: decoding %s params: %v", e.Method, e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

func (e *DeserializationError) Is(target error) bool { return target == ErrDeserialization }
