package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/pointpay/internal/ledger"
	"github.com/example/pointpay/internal/models"
)

const (
	AdjustActionAdd    = "add"
	AdjustActionDeduct = "deduct"
)

// AdjustInput is a manual balance change made from the admin dashboard.
type AdjustInput struct {
	UserID uuid.UUID
	Action string
	Points int64
	Reason string
}

// PointsService applies manual adjustments through the same atomic increment
// and audit log as payment settlement.
type PointsService struct {
	store *ledger.Store
	log   *zap.Logger
}

func NewPointsService(store *ledger.Store, log *zap.Logger) *PointsService {
	return &PointsService{store: store, log: log}
}

// Adjust adds or deducts points and returns the new balance.
func (s *PointsService) Adjust(ctx context.Context, in AdjustInput, actor string) (int64, error) {
	if in.Points <= 0 {
		return 0, validationError("points must be a positive integer")
	}

	var (
		delta   int64
		logType string
	)
	switch in.Action {
	case AdjustActionAdd:
		delta, logType = in.Points, models.PointsLogTypeRecharge
	case AdjustActionDeduct:
		delta, logType = -in.Points, models.PointsLogTypeDeduct
	default:
		return 0, validationError("action must be add or deduct")
	}

	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = "manual adjustment"
	}
	if len(reason) > 200 {
		return 0, validationError("reason is too long")
	}

	var balance int64
	err := s.store.Transaction(ctx, func(tx *ledger.Store) error {
		var err error
		balance, err = tx.IncrementPoints(ctx, in.UserID, delta)
		if err != nil {
			return err
		}
		return tx.AppendLog(ctx, &models.PointsLog{
			UserID:      in.UserID,
			Type:        logType,
			Delta:       delta,
			Description: fmt.Sprintf("admin %s: %s", actor, reason),
		})
	})
	switch {
	case errors.Is(err, ledger.ErrUserNotFound):
		return 0, notFoundError("user not found", err)
	case errors.Is(err, ledger.ErrInsufficientPoints):
		return 0, validationError("insufficient points")
	case err != nil:
		return 0, transientError("failed to adjust points", err)
	}

	s.log.Info("points adjusted",
		zap.String("user_id", in.UserID.String()),
		zap.String("action", in.Action),
		zap.Int64("delta", delta),
		zap.Int64("balance", balance),
		zap.String("actor", actor),
	)
	return balance, nil
}
