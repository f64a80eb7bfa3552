// Package service реализует сценарии сервиса обмена вещами поверх хранилища.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/mmeshcher/ecoshare/internal/ledger"
	"github.com/mmeshcher/ecoshare/internal/lending"
	"github.com/mmeshcher/ecoshare/internal/model"
	"github.com/mmeshcher/ecoshare/internal/repository"
	"github.com/mmeshcher/ecoshare/internal/validation"
)

const (
	maxSaveRetries   = 5
	retryBaseDelay   = 10 * time.Millisecond
	retryJitterPct   = 30
	defaultRadiusKm  = 10
	rewardDescShare  = "Reward for sharing item: %s"
	rewardDescBorrow = "Reward for borrowing item: %s"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateItem(ctx context.Context, it *model.Item) error
	LoadItem(ctx context.Context, id string) (*model.Item, error)
	SaveItem(ctx context.Context, it *model.Item) error
	DeleteItem(ctx context.Context, id string, version int64) error
	ListItems(ctx context.Context, f repository.ItemFilter) ([]model.Item, error)
	AppendReward(ctx context.Context, t model.Transaction) error
	GetRewardBalance(ctx context.Context, userID string) (int64, error)
	GetRewardsByUser(ctx context.Context, userID string) ([]model.Transaction, error)
}

// RewardAmounts задаёт размер начислений за завершённый заём.
type RewardAmounts struct {
	Sharing   int64
	Borrowing int64
}

// DefaultRewards задаёт начисления по умолчанию: владельцу 10, заёмщику 5.
var DefaultRewards = RewardAmounts{Sharing: 10, Borrowing: 5}

// BrowseQuery задаёт фильтры каталога. Координаты учитываются, только если заданы обе.
type BrowseQuery struct {
	Category string
	Lat      *float64
	Lng      *float64
	RadiusKm float64
}

func (q BrowseQuery) validate() error {
	if (q.Lat == nil) != (q.Lng == nil) {
		return errors.New("lat and lng must be given together")
	}
	if !isFinite(q.RadiusKm) || q.RadiusKm < 0 {
		return errors.New("radius must be a non-negative number")
	}
	if q.Lat == nil {
		return nil
	}
	if !isFinite(*q.Lat) || math.Abs(*q.Lat) > 90 {
		return errors.New("lat must be within [-90, 90]")
	}
	if !isFinite(*q.Lng) || math.Abs(*q.Lng) > 180 {
		return errors.New("lng must be within [-180, 180]")
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Service содержит бизнес-логику сервиса обмена вещами.
type Service struct {
	repo    Repository
	ledger  *ledger.Ledger
	rewards RewardAmounts
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
}

// NewService создаёт сервис с указанным хранилищем и размерами начислений.
func NewService(repo Repository, rewards RewardAmounts, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		ledger:  ledger.New(repo),
		rewards: rewards,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// AddItem публикует новую вещь владельца ownerID.
func (s *Service) AddItem(ctx context.Context, ownerID string, draft model.ItemDraft) (*model.Item, error) {
	if err := validation.ValidateDraft(draft); err != nil {
		return nil, fmt.Errorf("%w: %v", lending.ErrValidation, err)
	}

	condition := draft.Condition
	if condition == "" {
		condition = model.ConditionGood
	}

	it := &model.Item{
		ID:          s.newID(),
		OwnerID:     ownerID,
		Title:       draft.Title,
		Description: draft.Description,
		Category:    draft.Category,
		Images:      draft.Images,
		Location:    draft.Location,
		Condition:   condition,
		Lending:     model.Available(),
	}
	if err := s.repo.CreateItem(ctx, it); err != nil {
		return nil, err
	}

	return it, nil
}

// ListAvailableItems возвращает вещи, доступные для заявок.
func (s *Service) ListAvailableItems(ctx context.Context, q BrowseQuery) ([]model.Item, error) {
	if err := q.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", lending.ErrValidation, err)
	}

	items, err := s.repo.ListItems(ctx, repository.ItemFilter{
		Category:      q.Category,
		OnlyAvailable: true,
	})
	if err != nil {
		return nil, err
	}
	if q.Lat == nil {
		return items, nil
	}

	radius := q.RadiusKm
	if radius == 0 {
		radius = defaultRadiusKm
	}

	nearby := items[:0]
	for _, it := range items {
		if it.Location == nil {
			continue
		}
		if it.Location.DistanceKm(*q.Lat, *q.Lng) <= radius {
			nearby = append(nearby, it)
		}
	}
	return nearby, nil
}

// GetItem возвращает вещь по идентификатору.
func (s *Service) GetItem(ctx context.Context, itemID string) (*model.Item, error) {
	it, err := s.repo.LoadItem(ctx, itemID)
	if err != nil {
		return nil, s.storageError(itemID, err)
	}
	return it, nil
}

// UpdateItem применяет изменения владельца actorID.
func (s *Service) UpdateItem(ctx context.Context, itemID, actorID string, patch model.ItemPatch) (*model.Item, error) {
	if err := validation.ValidatePatch(patch); err != nil {
		return nil, fmt.Errorf("%w: %v", lending.ErrValidation, err)
	}

	return s.mutateItem(ctx, itemID, func(it *model.Item) error {
		return lending.ApplyPatch(it, actorID, patch)
	})
}

// DeleteItem удаляет вещь, если она не выдана и на неё нет активных заявок.
func (s *Service) DeleteItem(ctx context.Context, itemID, actorID string) error {
	err := retry.Do(ctx, newBackoff(), func(ctx context.Context) error {
		it, err := s.repo.LoadItem(ctx, itemID)
		if err != nil {
			return err
		}
		if err := lending.CheckDeletable(it, actorID); err != nil {
			return err
		}
		return retryStale(s.repo.DeleteItem(ctx, it.ID, it.Version))
	})
	return s.storageError(itemID, err)
}

// SubmitRequest создаёт заявку requesterID на вещь.
func (s *Service) SubmitRequest(ctx context.Context, itemID, requesterID, message string) (*model.BorrowRequest, error) {
	if err := validation.ValidateMessage(message); err != nil {
		return nil, fmt.Errorf("%w: %v", lending.ErrValidation, err)
	}

	requestID := s.newID()
	var created model.BorrowRequest
	_, err := s.mutateItem(ctx, itemID, func(it *model.Item) error {
		req, err := lending.SubmitRequest(it, requestID, requesterID, message, s.now())
		if err != nil {
			return err
		}
		created = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &created, nil
}

// RespondToRequest применяет решение владельца по заявке.
func (s *Service) RespondToRequest(ctx context.Context, itemID, requestID, actorID, decision string) (*model.Item, error) {
	d, err := lending.ParseDecision(decision)
	if err != nil {
		return nil, err
	}

	return s.mutateItem(ctx, itemID, func(it *model.Item) error {
		return lending.Respond(it, requestID, actorID, d, s.now())
	})
}

// ReturnItem завершает текущий заём и начисляет эко-баллы владельцу и заёмщику.
func (s *Service) ReturnItem(ctx context.Context, itemID, actorID string, rating *int, review string) (*model.Item, error) {
	if err := validation.ValidateReturn(rating, review); err != nil {
		return nil, fmt.Errorf("%w: %v", lending.ErrValidation, err)
	}

	var entry model.BorrowHistoryEntry
	it, err := s.mutateItem(ctx, itemID, func(it *model.Item) error {
		e, err := lending.Return(it, actorID, rating, review, s.now())
		if err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.issueLoanRewards(context.WithoutCancel(ctx), it, entry.UserID)

	return it, nil
}

// issueLoanRewards начисляет баллы за завершённый заём. Ошибки только логируются.
func (s *Service) issueLoanRewards(ctx context.Context, it *model.Item, borrowerID string) {
	rewards := []ledger.Reward{
		{
			UserID:      it.OwnerID,
			Type:        model.TransactionSharingReward,
			Amount:      s.rewards.Sharing,
			Description: fmt.Sprintf(rewardDescShare, it.Title),
			RelatedID:   it.ID,
		},
		{
			UserID:      borrowerID,
			Type:        model.TransactionBorrowingReward,
			Amount:      s.rewards.Borrowing,
			Description: fmt.Sprintf(rewardDescBorrow, it.Title),
			RelatedID:   it.ID,
		},
	}

	for _, r := range rewards {
		if _, err := s.ledger.Issue(ctx, r); err != nil {
			s.logger.Warn("failed to issue reward",
				zap.String("item_id", it.ID),
				zap.String("user_id", r.UserID),
				zap.String("type", string(r.Type)),
				zap.Int64("amount", r.Amount),
				zap.Error(err),
			)
		}
	}
}

// MyOwnedItems возвращает вещи пользователя, новые первыми.
func (s *Service) MyOwnedItems(ctx context.Context, userID string) ([]model.Item, error) {
	return s.repo.ListItems(ctx, repository.ItemFilter{OwnerID: userID})
}

// MyBorrowedItems возвращает вещи, которые сейчас у пользователя.
func (s *Service) MyBorrowedItems(ctx context.Context, userID string) ([]model.Item, error) {
	return s.repo.ListItems(ctx, repository.ItemFilter{BorrowerID: userID})
}

// MyPendingRequests возвращает заявки на рассмотрении по вещам пользователя.
func (s *Service) MyPendingRequests(ctx context.Context, userID string) ([]model.PendingRequest, error) {
	items, err := s.repo.ListItems(ctx, repository.ItemFilter{OwnerID: userID, WithPendingRequests: true})
	if err != nil {
		return nil, err
	}
	return lending.PendingRequests(items), nil
}

// GetRewards возвращает баланс эко-баллов пользователя и журнал начислений.
func (s *Service) GetRewards(ctx context.Context, userID string) (*model.RewardSummary, error) {
	return s.ledger.Summary(ctx, userID)
}

// mutateItem выполняет цикл загрузка-решение-сохранение и повторяет его при конкурентном изменении.
func (s *Service) mutateItem(ctx context.Context, itemID string, decide func(it *model.Item) error) (*model.Item, error) {
	var saved *model.Item
	err := retry.Do(ctx, newBackoff(), func(ctx context.Context) error {
		it, err := s.repo.LoadItem(ctx, itemID)
		if err != nil {
			return err
		}
		if err := decide(it); err != nil {
			return err
		}
		if err := retryStale(s.repo.SaveItem(ctx, it)); err != nil {
			return err
		}
		saved = it
		return nil
	})
	if err != nil {
		return nil, s.storageError(itemID, err)
	}
	return saved, nil
}

func newBackoff() retry.Backoff {
	b := retry.NewExponential(retryBaseDelay)
	b = retry.WithJitterPercent(retryJitterPct, b)
	return retry.WithMaxRetries(maxSaveRetries, b)
}

func retryStale(err error) error {
	if errors.Is(err, repository.ErrStaleItem) {
		return retry.RetryableError(err)
	}
	return err
}

// storageError переводит ошибки хранилища в виды ошибок пакета lending.
func (s *Service) storageError(itemID string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrItemNotFound):
		return fmt.Errorf("%w: item %s", lending.ErrNotFound, itemID)
	case errors.Is(err, repository.ErrStaleItem):
		return fmt.Errorf("%w: item %s is being modified, try again", lending.ErrConflict, itemID)
	default:
		return err
	}
}
