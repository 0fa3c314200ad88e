package engine

import (
	"errors"

	"github.com/cbodonnell/tabletop/pkg/messages"
	"github.com/cbodonnell/tabletop/pkg/metrics"
)

var (
	// ErrRoleViolation is returned when a participant attempts an action its role does not allow.
	// Local violations are rejected before anything is sent.
	ErrRoleViolation = errors.New("role violation")
	// ErrUnknownPiece is returned for an event referencing a piece that is not in the scene.
	ErrUnknownPiece = errors.New("unknown piece")
	// ErrDuplicatePiece is returned when adding a piece whose id is already in the scene.
	ErrDuplicatePiece = errors.New("duplicate piece")
	// ErrInvalidEvent is returned when an event cannot be applied to the scene.
	ErrInvalidEvent = errors.New("invalid event")
)

func IsRoleViolation(err error) bool {
	return errors.Is(err, ErrRoleViolation)
}

func IsUnknownPiece(err error) bool {
	return errors.Is(err, ErrUnknownPiece)
}

func IsDuplicatePiece(err error) bool {
	return errors.Is(err, ErrDuplicatePiece)
}

// dropReason maps an apply error to the metrics label it is counted under.
func dropReason(err error) string {
	switch {
	case messages.IsMalformedEnvelope(err):
		return metrics.ReasonMalformed
	case IsRoleViolation(err):
		return metrics.ReasonRoleViolation
	case IsUnknownPiece(err):
		return metrics.ReasonUnknownPiece
	case IsDuplicatePiece(err):
		return metrics.ReasonDuplicatePiece
	default:
		return metrics.ReasonInvalid
	}
}
