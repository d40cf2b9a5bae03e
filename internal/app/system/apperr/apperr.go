// Package apperr defines the error kinds shared by the membership services.
//
// Each kind is a sentinel error. Call sites add detail by wrapping:
//
//	return fmt.Errorf("%w: group has %d active members", apperr.ErrCapacityExceeded, n)
//
// and callers test with errors.Is or KindOf. The sentinel text is the stable,
// human-readable message for the kind; detail after the colon is for logs.
package apperr

import "errors"

// Kind identifies a failure category independent of transport.
type Kind string

const (
	KindUnknown             Kind = "unknown"
	KindInvalidArgument     Kind = "invalid_argument"
	KindUnauthenticated     Kind = "unauthenticated"
	KindNotFound            Kind = "not_found"
	KindForbidden           Kind = "forbidden"
	KindNotMember           Kind = "not_member"
	KindAlreadyMember       Kind = "already_member"
	KindDuplicateInvitation Kind = "duplicate_invitation"
	KindCapacityExceeded    Kind = "capacity_exceeded"
	KindTokenPersistence    Kind = "token_persistence"
	KindInconsistentState   Kind = "inconsistent_state"
)

type kindError struct {
	kind   Kind
	msg    string
	parent error
}

func (e *kindError) Error() string { return e.msg }

// Is lets a refined kind match its parent (NotMember is a Forbidden).
func (e *kindError) Is(target error) bool {
	return e.parent != nil && target == e.parent
}

var (
	ErrInvalidArgument     error = &kindError{kind: KindInvalidArgument, msg: "invalid argument"}
	ErrUnauthenticated     error = &kindError{kind: KindUnauthenticated, msg: "authentication required"}
	ErrNotFound            error = &kindError{kind: KindNotFound, msg: "not found"}
	ErrForbidden           error = &kindError{kind: KindForbidden, msg: "you do not have permission to do that"}
	ErrNotMember           error = &kindError{kind: KindNotMember, msg: "you are not a member of this group", parent: ErrForbidden}
	ErrAlreadyMember       error = &kindError{kind: KindAlreadyMember, msg: "user is already a member of this group"}
	ErrDuplicateInvitation error = &kindError{kind: KindDuplicateInvitation, msg: "an invitation or request is already pending for this user"}
	ErrCapacityExceeded    error = &kindError{kind: KindCapacityExceeded, msg: "capacity limit reached"}
	ErrTokenPersistence    error = &kindError{kind: KindTokenPersistence, msg: "invitation could not be saved"}
	ErrInconsistentState   error = &kindError{kind: KindInconsistentState, msg: "the group is in an unexpected state"}
)

var all = []error{
	ErrNotMember, // before ErrForbidden so the refinement wins
	ErrInvalidArgument,
	ErrUnauthenticated,
	ErrNotFound,
	ErrForbidden,
	ErrAlreadyMember,
	ErrDuplicateInvitation,
	ErrCapacityExceeded,
	ErrTokenPersistence,
	ErrInconsistentState,
}

// KindOf returns the most specific kind found in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, sentinel := range all {
		if errors.Is(err, sentinel) {
			return sentinel.(*kindError).kind
		}
	}
	return KindUnknown
}

// Message returns the stable user-facing message for err. Errors outside the
// taxonomy get a generic message so internals never leak to callers.
func Message(err error) string {
	if err == nil {
		return ""
	}
	for _, sentinel := range all {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "an internal error occurred"
}
