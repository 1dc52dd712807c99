package database

import (
	"context"
	"fmt"

	"github.com/example/tutorbot/pkg/models"
)

// ClaimDispatch marks slot as sent for the user. It returns true only for
// the first caller to claim a slot later than the last one claimed, so each
// trigger point is dispatched at most once even across restarts.
func (s *Store) ClaimDispatch(ctx context.Context, userID int64, slot string) (bool, error) {
	if slot == "" {
		return false, models.InvalidArgument("ClaimDispatch", "slot must not be empty")
	}
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE users SET last_dispatch_slot = ?
		WHERE id = ? AND last_dispatch_slot < ?`),
		slot, userID, slot,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim dispatch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim dispatch: %w", err)
	}
	if n == 0 {
		if _, err := s.GetUser(ctx, userID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}
