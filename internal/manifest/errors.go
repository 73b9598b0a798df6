package manifest

import (
	"errors"
	"fmt"
)

var (
	ErrMissingManifest              = errors.New("missing manifest")
	ErrMalformedManifestFence       = errors.New("malformed manifest fence")
	ErrInvalidManifestSyntax        = errors.New("invalid manifest syntax")
	ErrConflictingTargetDeclaration = errors.New("conflicting target declaration")
)

// Error wraps extraction and normalization failures. Kind is one of the
// sentinels above; Line is the 1-based source line when known.
type Error struct {
	Kind error
	Line int
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Msg == "":
		return e.Kind.Error()
	case e.Line > 0:
		return fmt.Sprintf("%s: line %d: %s", e.Kind.Error(), e.Line, e.Msg)
	default:
		return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Kind }

func missingf(format string, args ...any) error {
	return &Error{Kind: ErrMissingManifest, Msg: fmt.Sprintf(format, args...)}
}

func fenceErrorf(line int, format string, args ...any) error {
	return &Error{Kind: ErrMalformedManifestFence, Line: line, Msg: fmt.Sprintf(format, args...)}
}

func syntaxErrorf(line int, format string, args ...any) error {
	return &Error{Kind: ErrInvalidManifestSyntax, Line: line, Msg: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...any) error {
	return &Error{Kind: ErrConflictingTargetDeclaration, Msg: fmt.Sprintf(format, args...)}
}
