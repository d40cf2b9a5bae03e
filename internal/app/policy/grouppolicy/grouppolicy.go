// Package grouppolicy decides what a group member may do to a group or to
// another member, based only on their roles.
//
// Rules:
//   - OWNER can do everything except remove another OWNER.
//   - ADMIN can invite, approve requests, manage settings and remove MEMBERs.
//   - MEMBER can view the member list and send messages.
//   - The zero role (no active membership) is denied everything.
//
// Every function is pure and total. Callers resolve roles from ACTIVE
// memberships only; a non-active membership must be passed as the zero role.
package grouppolicy

import "github.com/dalemusser/spendhub/internal/domain/models"

// CanRemoveMember reports whether actor may remove a member holding target.
func CanRemoveMember(actor, target models.Role) bool {
	if !target.Valid() {
		return false
	}
	switch actor {
	case models.RoleOwner:
		return target != models.RoleOwner
	case models.RoleAdmin:
		return target == models.RoleMember
	case models.RoleMember:
		return false
	default:
		return false
	}
}

// CanUpdateGroupInfo reports whether actor may rename the group or change its avatar.
func CanUpdateGroupInfo(actor models.Role) bool {
	return ownerOnly(actor)
}

// CanPromoteToAdmin reports whether actor may promote a MEMBER to ADMIN.
func CanPromoteToAdmin(actor models.Role) bool {
	return ownerOnly(actor)
}

// CanDemoteAdmin reports whether actor may demote an ADMIN to MEMBER.
func CanDemoteAdmin(actor models.Role) bool {
	return ownerOnly(actor)
}

// CanTransferOwnership reports whether actor may hand the OWNER role to someone else.
func CanTransferOwnership(actor models.Role) bool {
	return ownerOnly(actor)
}

// CanInviteMembers reports whether actor may send email invitations.
func CanInviteMembers(actor models.Role) bool {
	return leader(actor)
}

// CanApproveRequests reports whether actor may approve or reject join requests.
// It carries the same authority as inviting.
func CanApproveRequests(actor models.Role) bool {
	return CanInviteMembers(actor)
}

// CanManageGroupSettings reports whether actor may change group settings
// such as the approval requirement.
func CanManageGroupSettings(actor models.Role) bool {
	return leader(actor)
}

// CanViewGroupMembers reports whether actor may list the group's members.
func CanViewGroupMembers(actor models.Role) bool {
	return anyRole(actor)
}

// CanViewAuditLog reports whether actor may read the group's membership
// history.
func CanViewAuditLog(actor models.Role) bool {
	return leader(actor)
}

// CanSendMessages reports whether actor may post to the group.
func CanSendMessages(actor models.Role) bool {
	return anyRole(actor)
}

// CanRemoveLastAdmin reports whether actor may take away an admin seat when
// adminCount admins currently exist. Only an OWNER may, and only while the
// group keeps a privileged member afterwards: either an owner remains or
// more than one admin exists before the change.
func CanRemoveLastAdmin(actor models.Role, groupHasOwner bool, adminCount int64) bool {
	if actor != models.RoleOwner {
		return false
	}
	return groupHasOwner || adminCount > 1
}

func ownerOnly(actor models.Role) bool {
	switch actor {
	case models.RoleOwner:
		return true
	case models.RoleAdmin, models.RoleMember:
		return false
	default:
		return false
	}
}

func leader(actor models.Role) bool {
	switch actor {
	case models.RoleOwner, models.RoleAdmin:
		return true
	case models.RoleMember:
		return false
	default:
		return false
	}
}

func anyRole(actor models.Role) bool {
	switch actor {
	case models.RoleOwner, models.RoleAdmin, models.RoleMember:
		return true
	default:
		return false
	}
}
