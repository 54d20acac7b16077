package qspace

import (
	"github.com/pkg/errors"

	"github.com/fumin/qspace/expr"
)

// Errors returned by HilbertSpace operations.
// They are wrapped with the offending subsystem, operator or index, and should be matched with errors.Is.
var (
	ErrUnknownSubsystem        = errors.New("unknown subsystem")
	ErrUnknownOperator         = errors.New("unknown operator")
	ErrInvalidSubsystem        = errors.New("invalid subsystem")
	ErrDimensionMismatch       = errors.New("dimension mismatch")
	ErrExpression              = expr.ErrExpression
	ErrInteractionDefinition   = errors.New("invalid interaction definition")
	ErrNotReady                = errors.New("lookup not generated")
	ErrAmbiguousOrMissingMatch = errors.New("no unique dressed state for bare state")
	ErrIndexOutOfRange         = errors.New("index out of range")
	ErrConfigurationLimit      = errors.New("total dimension exceeds limit")
)
