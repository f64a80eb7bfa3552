// Package ledger ведёт журнал начислений эко-баллов.
//
// Журнал является источником истины для баланса: запись и увеличение баланса
// пользователя выполняются хранилищем атомарно, а баланс читается как сумма журнала.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/ecoshare/internal/model"
)

// ErrInvalidReward возвращается для начисления без пользователя или с неположительной суммой.
var ErrInvalidReward = errors.New("invalid reward")

// Store описывает хранилище журнала начислений.
type Store interface {
	AppendReward(ctx context.Context, t model.Transaction) error
	GetRewardBalance(ctx context.Context, userID string) (int64, error)
	GetRewardsByUser(ctx context.Context, userID string) ([]model.Transaction, error)
}

// Reward описывает одно начисление.
type Reward struct {
	UserID      string
	Type        model.TransactionType
	Amount      int64
	Description string
	RelatedID   string
}

// Ledger выдаёт начисления и отдаёт баланс пользователя.
type Ledger struct {
	store Store
	now   func() time.Time
}

// New создаёт журнал поверх хранилища.
func New(store Store) *Ledger {
	return &Ledger{
		store: store,
		now:   time.Now,
	}
}

// Issue записывает завершённое начисление и увеличивает баланс пользователя.
func (l *Ledger) Issue(ctx context.Context, r Reward) (model.Transaction, error) {
	if r.UserID == "" {
		return model.Transaction{}, fmt.Errorf("%w: empty user", ErrInvalidReward)
	}
	if r.Amount <= 0 {
		return model.Transaction{}, fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidReward, r.Amount)
	}

	t := model.Transaction{
		ID:          uuid.NewString(),
		UserID:      r.UserID,
		Type:        r.Type,
		Amount:      r.Amount,
		Description: r.Description,
		RelatedID:   r.RelatedID,
		Status:      model.TransactionCompleted,
		CreatedAt:   l.now().UTC(),
	}

	if err := l.store.AppendReward(ctx, t); err != nil {
		return model.Transaction{}, fmt.Errorf("append reward for %s: %w", r.UserID, err)
	}

	return t, nil
}

// Summary возвращает баланс пользователя, вычисленный по журналу, и его записи.
func (l *Ledger) Summary(ctx context.Context, userID string) (*model.RewardSummary, error) {
	points, err := l.store.GetRewardBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	txs, err := l.store.GetRewardsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &model.RewardSummary{
		Points:       points,
		Transactions: txs,
	}, nil
}
