package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/BatmanBruc/olymp-quiz-bot/types"
)

var (
	ErrForbidden   = errors.New("not allowed")
	ErrUnknownRole = errors.New("unknown role")
)

var roleOrder = map[types.AdminRole]int{
	types.RoleEditor: 1,
	types.RoleAdmin:  2,
	types.RoleOwner:  3,
}

func ParseRole(s string) (types.AdminRole, error) {
	r := types.AdminRole(s)
	if _, ok := roleOrder[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// CanGrant: an owner hands out admin and editor, an admin hands out editor.
func CanGrant(granter, role types.AdminRole) bool {
	switch granter {
	case types.RoleOwner:
		return role == types.RoleAdmin || role == types.RoleEditor
	case types.RoleAdmin:
		return role == types.RoleEditor
	}
	return false
}

func AtLeast(role, least types.AdminRole) bool {
	return roleOrder[role] >= roleOrder[least] && roleOrder[role] > 0
}

// CanRevoke requires a strictly higher role than the target's.
func CanRevoke(granter, target types.AdminRole) bool {
	return roleOrder[granter] > roleOrder[target] && roleOrder[target] > 0
}

type Service struct {
	store  types.AdminStore
	owners []int64
	log    *slog.Logger
}

// NewService treats ids listed in owners as owners whether or not they have
// a row in the admins table.
func NewService(store types.AdminStore, owners []int64, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, owners: owners, log: log.With("component", "access")}
}

func (s *Service) Role(ctx context.Context, tgID int64) (types.AdminRole, bool, error) {
	if slices.Contains(s.owners, tgID) {
		return types.RoleOwner, true, nil
	}
	return s.store.GetAdminRole(ctx, tgID)
}

func (s *Service) IsAdmin(ctx context.Context, tgID int64) (bool, error) {
	_, ok, err := s.Role(ctx, tgID)
	return ok, err
}

func (s *Service) Grant(ctx context.Context, granterID, targetID int64, role types.AdminRole) error {
	if _, ok := roleOrder[role]; !ok {
		return ErrUnknownRole
	}
	granter, ok, err := s.Role(ctx, granterID)
	if err != nil {
		return err
	}
	if !ok || !CanGrant(granter, role) {
		return ErrForbidden
	}
	if err := s.store.SetAdminRole(ctx, targetID, role); err != nil {
		return err
	}
	s.log.Info("role granted", "granter", granterID, "target", targetID, "role", role)
	return nil
}

func (s *Service) Revoke(ctx context.Context, granterID, targetID int64) error {
	granter, ok, err := s.Role(ctx, granterID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	if slices.Contains(s.owners, targetID) {
		return ErrForbidden
	}
	target, ok, err := s.store.GetAdminRole(ctx, targetID)
	if err != nil {
		return err
	}
	if !ok {
		return types.ErrNotFound
	}
	if !CanRevoke(granter, target) {
		return ErrForbidden
	}
	if err := s.store.DeleteAdmin(ctx, targetID); err != nil {
		return err
	}
	s.log.Info("role revoked", "granter", granterID, "target", targetID, "role", target)
	return nil
}
