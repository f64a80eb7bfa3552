package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/ecoshare/internal/model"
)

// MemoryRepository хранит данные в памяти процесса. Используется без DATABASE_URI и в тестах.
// Семантика версий совпадает с PostgresRepository.
type MemoryRepository struct {
	mu      sync.RWMutex
	items   map[string]*model.Item
	rewards []model.Transaction
	points  map[string]int64
	now     func() time.Time
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		items:  make(map[string]*model.Item),
		points: make(map[string]int64),
		now:    time.Now,
	}
}

// Close ничего не делает.
func (r *MemoryRepository) Close() error {
	return nil
}

// CreateItem сохраняет новую вещь с версией 1.
func (r *MemoryRepository) CreateItem(_ context.Context, it *model.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[it.ID]; ok {
		return fmt.Errorf("insert item: duplicate id %s", it.ID)
	}

	now := r.now()
	it.Version = 1
	it.CreatedAt = now
	it.UpdatedAt = now
	r.items[it.ID] = cloneItem(it)

	return nil
}

// LoadItem возвращает копию вещи.
func (r *MemoryRepository) LoadItem(_ context.Context, id string) (*model.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	it, ok := r.items[id]
	if !ok {
		return nil, ErrItemNotFound
	}
	return cloneItem(it), nil
}

// SaveItem записывает вещь, если её версия не изменилась с момента загрузки.
func (r *MemoryRepository) SaveItem(_ context.Context, it *model.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.items[it.ID]
	if !ok {
		return ErrItemNotFound
	}
	if stored.Version != it.Version {
		return ErrStaleItem
	}

	it.Version++
	it.UpdatedAt = r.now()
	r.items[it.ID] = cloneItem(it)

	return nil
}

// DeleteItem удаляет вещь, если её версия не изменилась с момента загрузки.
func (r *MemoryRepository) DeleteItem(_ context.Context, id string, version int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.items[id]
	if !ok {
		return ErrItemNotFound
	}
	if stored.Version != version {
		return ErrStaleItem
	}

	delete(r.items, id)
	return nil
}

// ListItems возвращает вещи по фильтру, новые первыми.
func (r *MemoryRepository) ListItems(_ context.Context, f ItemFilter) ([]model.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.Item
	for _, it := range r.items {
		if f.match(it) {
			res = append(res, *cloneItem(it))
		}
	}

	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID > res[j].ID
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})

	return res, nil
}

// AppendReward добавляет запись в журнал и увеличивает баланс пользователя атомарно.
func (r *MemoryRepository) AppendReward(_ context.Context, t model.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rewards = append(r.rewards, t)
	r.points[t.UserID] += t.Amount

	return nil
}

// GetRewardBalance возвращает сумму начислений пользователя по журналу.
func (r *MemoryRepository) GetRewardBalance(_ context.Context, userID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	for _, t := range r.rewards {
		if t.UserID == userID {
			total += t.Amount
		}
	}
	return total, nil
}

// GetRewardsByUser возвращает журнал начислений пользователя, новые записи первыми.
func (r *MemoryRepository) GetRewardsByUser(_ context.Context, userID string) ([]model.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.Transaction
	for i := len(r.rewards) - 1; i >= 0; i-- {
		if r.rewards[i].UserID == userID {
			res = append(res, r.rewards[i])
		}
	}
	return res, nil
}

// EcoPoints возвращает накопленный баланс пользователя, который ведётся вместе с журналом.
func (r *MemoryRepository) EcoPoints(userID string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.points[userID]
}
