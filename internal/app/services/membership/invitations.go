package membership

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/dalemusser/spendhub/internal/app/policy/grouppolicy"
	membershipstore "github.com/dalemusser/spendhub/internal/app/store/memberships"
	userstore "github.com/dalemusser/spendhub/internal/app/store/users"
	"github.com/dalemusser/spendhub/internal/app/system/apperr"
	"github.com/dalemusser/spendhub/internal/app/system/mailer"
	"github.com/dalemusser/spendhub/internal/app/system/normalize"
	"github.com/dalemusser/spendhub/internal/app/system/notify"
	"github.com/dalemusser/spendhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// InvitationResult is returned to the inviter.
type InvitationResult struct {
	Token            string              `json:"token"`
	GroupID          primitive.ObjectID  `json:"group_id"`
	InvitedUserID    *primitive.ObjectID `json:"invited_user_id,omitempty"`
	InvitedUserEmail string              `json:"invited_user_email"`
	ExpiresAt        time.Time           `json:"expires_at"`
	// EmailSent is false when the invitation was stored but the email could
	// not be delivered.
	EmailSent bool `json:"email_sent"`
}

// InvitationView is what an invitee sees before answering.
type InvitationView struct {
	Token            string                  `json:"token"`
	GroupID          primitive.ObjectID      `json:"group_id"`
	GroupName        string                  `json:"group_name"`
	InviterName      string                  `json:"inviter_name"`
	InvitedUserEmail string                  `json:"invited_user_email"`
	Status           models.InvitationStatus `json:"status"`
	ExpiresAt        time.Time               `json:"expires_at"`
}

func cleanEmail(raw string) (string, error) {
	email := normalize.Email(raw)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", apperr.ErrInvalidArgument)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: %q is not a valid email address", apperr.ErrInvalidArgument, raw)
	}
	return email, nil
}

// lookupInvitee returns the registered account for email, if any.
func (s *Service) lookupInvitee(ctx context.Context, email string) (*models.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// SendInvitation invites email to the group. A registered invitee also gets
// an INVITED membership row. The invitation email is sent synchronously; a
// delivery failure is reported through EmailSent and does not fail the call.
func (s *Service) SendInvitation(ctx context.Context, actor models.Actor, groupID primitive.ObjectID, rawEmail string) (res InvitationResult, err error) {
	defer func() { s.metrics.Operation("send_invitation", err) }()

	if err := requireActor(actor); err != nil {
		return InvitationResult{}, err
	}
	email, err := cleanEmail(rawEmail)
	if err != nil {
		return InvitationResult{}, err
	}
	g, err := s.activeGroup(ctx, groupID)
	if err != nil {
		return InvitationResult{}, err
	}
	am, err := s.actorMembership(ctx, groupID, actor.ID)
	if err != nil {
		return InvitationResult{}, err
	}
	if !grouppolicy.CanInviteMembers(am.Role) {
		return InvitationResult{}, fmt.Errorf("%w: only leaders can invite", apperr.ErrForbidden)
	}

	invitee, err := s.lookupInvitee(ctx, email)
	if err != nil {
		return InvitationResult{}, err
	}
	if invitee != nil && invitee.Status == models.UserStatusDisabled {
		return InvitationResult{}, fmt.Errorf("%w: that account is disabled", apperr.ErrInvalidArgument)
	}

	// Either signal is enough to reject: an open membership row or a live
	// token under either reverse key.
	if invitee != nil {
		open, err := s.members.GetOpen(ctx, groupID, invitee.ID)
		switch {
		case err == nil && open.Status == models.StatusActive:
			return InvitationResult{}, apperr.ErrAlreadyMember
		case err == nil:
			return InvitationResult{}, fmt.Errorf("%w: membership is already %s", apperr.ErrDuplicateInvitation, open.Status)
		case !errors.Is(err, membershipstore.ErrNotFound):
			return InvitationResult{}, err
		}
		if _, found, err := s.tokens.LookupByUserAndGroup(ctx, invitee.ID, groupID); err != nil {
			return InvitationResult{}, err
		} else if found {
			return InvitationResult{}, fmt.Errorf("%w: invitation already pending", apperr.ErrDuplicateInvitation)
		}
	}
	if _, found, err := s.tokens.LookupByEmailAndGroup(ctx, email, groupID); err != nil {
		return InvitationResult{}, err
	} else if found {
		return InvitationResult{}, fmt.Errorf("%w: invitation already pending", apperr.ErrDuplicateInvitation)
	}

	if err := s.capacity.ValidateGroupCanAcceptMoreMembers(ctx, groupID); err != nil {
		return InvitationResult{}, err
	}

	data := models.InvitationToken{
		GroupID:          groupID,
		InviterID:        actor.ID,
		InvitedUserEmail: email,
		GroupName:        g.Name,
		InviterName:      displayName(actor),
	}
	if invitee != nil {
		id := invitee.ID
		data.InvitedUserID = &id
	}
	tok, err := s.tokens.Create(ctx, data)
	if err != nil {
		return InvitationResult{}, err
	}

	if invitee != nil {
		inviter := actor.ID
		_, err := s.members.Insert(ctx, models.GroupMember{
			GroupID:   groupID,
			UserID:    invitee.ID,
			Role:      models.RoleMember,
			Status:    models.StatusInvited,
			InvitedBy: &inviter,
		})
		if err != nil {
			if rmErr := s.tokens.Remove(ctx, tok.Token); rmErr != nil {
				s.log.Warn("failed to remove invitation after membership insert failed",
					zap.String("group_id", groupID.Hex()),
					zap.Error(rmErr))
			}
			if errors.Is(err, membershipstore.ErrDuplicateMembership) {
				return InvitationResult{}, fmt.Errorf("%w: a membership was created concurrently", apperr.ErrDuplicateInvitation)
			}
			return InvitationResult{}, err
		}
	}
	s.metrics.Token("created")

	res = InvitationResult{
		Token:            tok.Token,
		GroupID:          groupID,
		InvitedUserID:    tok.InvitedUserID,
		InvitedUserEmail: email,
		ExpiresAt:        tok.ExpiresAt,
		EmailSent:        s.sendInvitationEmail(ctx, tok),
	}

	s.audit.InvitationSent(ctx, actor.ID, invitedID(tok), groupID, email, res.EmailSent)
	s.publish(notify.Event{
		GroupID:   groupID,
		ActorID:   actor.ID,
		ActorName: displayName(actor),
		Type:      notify.InvitationSent,
		Title:     "Invitation sent",
		Message:   fmt.Sprintf("%s invited %s to %s.", displayName(actor), email, g.Name),
		Link:      s.groupLink(groupID),
	})
	return res, nil
}

func invitedID(t models.InvitationToken) primitive.ObjectID {
	if t.InvitedUserID == nil {
		return primitive.NilObjectID
	}
	return *t.InvitedUserID
}

func (s *Service) sendInvitationEmail(ctx context.Context, tok models.InvitationToken) bool {
	if s.mail == nil {
		return false
	}
	msg := mailer.BuildInvitationEmail(tok.InvitedUserEmail, mailer.InvitationEmailData{
		SiteName:    s.siteName,
		GroupName:   tok.GroupName,
		InviterName: tok.InviterName,
		AcceptURL:   s.baseURL + "/invitations/" + tok.Token,
		ExpiresIn:   fmt.Sprintf("%d days", int(s.tokens.TTL().Hours()/24)),
	})
	if err := s.mail.Send(ctx, msg); err != nil {
		s.log.Warn("failed to send invitation email",
			zap.String("group_id", tok.GroupID.Hex()),
			zap.Error(err))
		return false
	}
	return true
}

// loadInvitation fetches a live token or returns NotFound. The membership
// rows win over the cache.
func (s *Service) loadInvitation(ctx context.Context, token string) (models.InvitationToken, error) {
	if token == "" {
		return models.InvitationToken{}, fmt.Errorf("%w: invitation token is required", apperr.ErrInvalidArgument)
	}
	data, found, err := s.tokens.Get(ctx, token)
	if err != nil {
		return models.InvitationToken{}, err
	}
	if !found {
		return models.InvitationToken{}, fmt.Errorf("%w: invitation is invalid or has expired", apperr.ErrNotFound)
	}

	// A registered invitee's token was issued with an INVITED row. Once that
	// row is closed (rejected, cancelled, account deactivated) and no other
	// open row exists, the token is dead whatever the cache says.
	if data.InvitedUserID != nil {
		_, err := s.members.GetOpen(ctx, data.GroupID, *data.InvitedUserID)
		switch {
		case errors.Is(err, membershipstore.ErrNotFound):
			s.consumeToken(ctx, data.Token)
			return models.InvitationToken{}, fmt.Errorf("%w: invitation is no longer valid", apperr.ErrNotFound)
		case err != nil:
			return models.InvitationToken{}, err
		}
	}
	return data, nil
}

// GetInvitation returns a preview of the invitation. The reported status is
// reconciled with the membership rows, so an invitee who already joined sees
// ACCEPTED even if the token still says INVITED.
func (s *Service) GetInvitation(ctx context.Context, token string) (InvitationView, error) {
	data, err := s.loadInvitation(ctx, token)
	if err != nil {
		return InvitationView{}, err
	}
	view := InvitationView{
		Token:            data.Token,
		GroupID:          data.GroupID,
		GroupName:        data.GroupName,
		InviterName:      data.InviterName,
		InvitedUserEmail: data.InvitedUserEmail,
		Status:           data.Status,
		ExpiresAt:        data.ExpiresAt,
	}

	userID := invitedID(data)
	if userID.IsZero() {
		invitee, err := s.lookupInvitee(ctx, data.InvitedUserEmail)
		if err != nil {
			return InvitationView{}, err
		}
		if invitee != nil {
			userID = invitee.ID
		}
	}
	if !userID.IsZero() {
		active, err := s.members.ExistsWithStatus(ctx, userID, data.GroupID, models.StatusActive)
		if err != nil {
			return InvitationView{}, err
		}
		if active {
			view.Status = models.InvitationAccepted
		}
	}
	return view, nil
}

// invitedParty checks that actor is the person the invitation was sent to.
func invitedParty(actor models.Actor, data models.InvitationToken) error {
	if data.InvitedUserID != nil {
		if *data.InvitedUserID == actor.ID {
			return nil
		}
		return fmt.Errorf("%w: this invitation is for someone else", apperr.ErrForbidden)
	}
	if actor.Email != "" && text.Fold(normalize.Email(actor.Email)) == text.Fold(data.InvitedUserEmail) {
		return nil
	}
	return fmt.Errorf("%w: this invitation is for someone else", apperr.ErrForbidden)
}

func (s *Service) consumeToken(ctx context.Context, token string) {
	if err := s.tokens.Remove(ctx, token); err != nil {
		s.log.Warn("failed to remove invitation token", zap.Error(err))
	}
}

// AcceptInvitation makes the actor an ACTIVE MEMBER of the invited group and
// consumes the token. Capacity is re-checked here; if it fails, the INVITED
// row and the token are left untouched so the invitee can try again later.
func (s *Service) AcceptInvitation(ctx context.Context, actor models.Actor, token string) (res JoinResult, err error) {
	defer func() { s.metrics.Operation("accept_invitation", err) }()

	if err := requireActor(actor); err != nil {
		return JoinResult{}, err
	}
	data, err := s.loadInvitation(ctx, token)
	if err != nil {
		return JoinResult{}, err
	}
	if err := invitedParty(actor, data); err != nil {
		return JoinResult{}, err
	}
	g, err := s.activeGroup(ctx, data.GroupID)
	if err != nil {
		return JoinResult{}, err
	}

	active, err := s.members.ExistsWithStatus(ctx, actor.ID, g.ID, models.StatusActive)
	if err != nil {
		return JoinResult{}, err
	}
	if active {
		s.consumeToken(ctx, data.Token)
		return JoinResult{}, apperr.ErrAlreadyMember
	}
	if err := s.capacity.ValidateUserCanJoinGroup(ctx, actor.ID, g.ID); err != nil {
		return JoinResult{}, err
	}

	joinedAt := s.now()
	var m models.GroupMember
	open, err := s.members.GetOpen(ctx, g.ID, actor.ID)
	switch {
	case err == nil:
		// INVITED, or a PENDING_APPROVAL request the invitation supersedes.
		if err := s.members.Activate(ctx, open.ID, open.Status, models.RoleMember, joinedAt); err != nil {
			return JoinResult{}, lostRace(err, "membership")
		}
		m = open
		m.Status = models.StatusActive
		m.Role = models.RoleMember
		m.JoinedAt = joinedAt
	case errors.Is(err, membershipstore.ErrNotFound):
		inviter := data.InviterID
		m, err = s.members.Insert(ctx, models.GroupMember{
			GroupID:   g.ID,
			UserID:    actor.ID,
			Role:      models.RoleMember,
			Status:    models.StatusActive,
			InvitedBy: &inviter,
			JoinedAt:  joinedAt,
		})
		if err != nil {
			if errors.Is(err, membershipstore.ErrDuplicateMembership) {
				return JoinResult{}, fmt.Errorf("%w: membership was created concurrently", apperr.ErrInconsistentState)
			}
			return JoinResult{}, err
		}
	default:
		return JoinResult{}, err
	}

	s.consumeToken(ctx, data.Token)
	s.metrics.Token("accepted")
	s.audit.InvitationAnswered(ctx, actor.ID, g.ID, true)
	s.audit.MemberJoined(ctx, actor.ID, g.ID, "invitation")
	s.publish(notify.Event{
		GroupID:   g.ID,
		ActorID:   actor.ID,
		ActorName: displayName(actor),
		Type:      notify.MemberJoined,
		Title:     "New member",
		Message:   fmt.Sprintf("%s accepted an invitation to %s.", displayName(actor), g.Name),
		Link:      s.groupLink(g.ID),
	})
	return JoinResult{Membership: m}, nil
}

// RejectInvitation declines the invitation and consumes the token.
func (s *Service) RejectInvitation(ctx context.Context, actor models.Actor, token string) (err error) {
	defer func() { s.metrics.Operation("reject_invitation", err) }()

	if err := requireActor(actor); err != nil {
		return err
	}
	data, err := s.loadInvitation(ctx, token)
	if err != nil {
		return err
	}
	if err := invitedParty(actor, data); err != nil {
		return err
	}

	open, err := s.members.GetOpen(ctx, data.GroupID, actor.ID)
	switch {
	case err == nil && open.Status == models.StatusInvited:
		if err := s.members.UpdateStatus(ctx, open.ID, models.StatusInvited, models.StatusRejected); err != nil && !errors.Is(err, membershipstore.ErrNotFound) {
			return err
		}
	case err != nil && !errors.Is(err, membershipstore.ErrNotFound):
		return err
	}

	s.consumeToken(ctx, data.Token)
	s.metrics.Token("rejected")
	s.audit.InvitationAnswered(ctx, actor.ID, data.GroupID, false)
	return nil
}

// CancelInvitation revokes a pending invitation without the token string.
// The token is found through its reverse index and an INVITED row moves to
// REJECTED.
func (s *Service) CancelInvitation(ctx context.Context, actor models.Actor, groupID primitive.ObjectID, rawEmail string) (err error) {
	defer func() { s.metrics.Operation("cancel_invitation", err) }()

	if err := requireActor(actor); err != nil {
		return err
	}
	email, err := cleanEmail(rawEmail)
	if err != nil {
		return err
	}
	if _, err := s.activeGroup(ctx, groupID); err != nil {
		return err
	}
	am, err := s.actorMembership(ctx, groupID, actor.ID)
	if err != nil {
		return err
	}
	if !grouppolicy.CanInviteMembers(am.Role) {
		return fmt.Errorf("%w: only leaders can cancel invitations", apperr.ErrForbidden)
	}

	var cancelled bool
	if _, found, err := s.tokens.LookupByEmailAndGroup(ctx, email, groupID); err != nil {
		return err
	} else if found {
		if err := s.tokens.RemoveByEmailAndGroup(ctx, email, groupID); err != nil {
			return err
		}
		cancelled = true
	}

	invitee, err := s.lookupInvitee(ctx, email)
	if err != nil {
		return err
	}
	if invitee != nil {
		if _, found, err := s.tokens.LookupByUserAndGroup(ctx, invitee.ID, groupID); err != nil {
			return err
		} else if found {
			if err := s.tokens.RemoveByUserAndGroup(ctx, invitee.ID, groupID); err != nil {
				return err
			}
			cancelled = true
		}
		open, err := s.members.GetOpen(ctx, groupID, invitee.ID)
		switch {
		case err == nil && open.Status == models.StatusInvited:
			if err := s.members.UpdateStatus(ctx, open.ID, models.StatusInvited, models.StatusRejected); err != nil {
				if !errors.Is(err, membershipstore.ErrNotFound) {
					return err
				}
			} else {
				cancelled = true
			}
		case err != nil && !errors.Is(err, membershipstore.ErrNotFound):
			return err
		}
	}

	if !cancelled {
		return fmt.Errorf("%w: no pending invitation for %s", apperr.ErrNotFound, email)
	}
	s.metrics.Token("cancelled")
	s.audit.InvitationCancelled(ctx, actor.ID, groupID, email)
	return nil
}
