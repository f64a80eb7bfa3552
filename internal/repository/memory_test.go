package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/ecoshare/internal/model"
)

func newTestItem(id, owner string) *model.Item {
	return &model.Item{
		ID:        id,
		OwnerID:   owner,
		Title:     "Tent",
		Category:  "sports",
		Condition: model.ConditionGood,
		Lending:   model.Available(),
	}
}

func TestMemoryRepository_SaveDetectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	require.NoError(t, repo.CreateItem(ctx, newTestItem("i1", "owner")))

	first, err := repo.LoadItem(ctx, "i1")
	require.NoError(t, err)
	second, err := repo.LoadItem(ctx, "i1")
	require.NoError(t, err)

	first.Title = "Big tent"
	require.NoError(t, repo.SaveItem(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	second.Title = "Small tent"
	require.ErrorIs(t, repo.SaveItem(ctx, second), ErrStaleItem)

	stored, err := repo.LoadItem(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, "Big tent", stored.Title)
}

func TestMemoryRepository_LoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	it := newTestItem("i1", "owner")
	it.Requests = []model.BorrowRequest{{ID: "r1", RequesterID: "u1", Status: model.RequestStatusPending}}
	require.NoError(t, repo.CreateItem(ctx, it))

	loaded, err := repo.LoadItem(ctx, "i1")
	require.NoError(t, err)
	loaded.Requests[0].Status = model.RequestStatusRejected

	again, err := repo.LoadItem(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusPending, again.Requests[0].Status)
}

func TestMemoryRepository_DeleteAndNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	require.NoError(t, repo.CreateItem(ctx, newTestItem("i1", "owner")))

	require.ErrorIs(t, repo.DeleteItem(ctx, "i1", 7), ErrStaleItem)
	require.NoError(t, repo.DeleteItem(ctx, "i1", 1))

	_, err := repo.LoadItem(ctx, "i1")
	require.ErrorIs(t, err, ErrItemNotFound)
	require.ErrorIs(t, repo.SaveItem(ctx, newTestItem("i1", "owner")), ErrItemNotFound)
}

func TestMemoryRepository_ListItems(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	free := newTestItem("free", "owner")
	require.NoError(t, repo.CreateItem(ctx, free))

	borrowed := newTestItem("borrowed", "owner")
	borrowed.Lending = model.BorrowedBy("u1")
	require.NoError(t, repo.CreateItem(ctx, borrowed))

	requested := newTestItem("requested", "owner")
	requested.Category = "tools"
	requested.Requests = []model.BorrowRequest{{ID: "r1", RequesterID: "u2", Status: model.RequestStatusPending}}
	require.NoError(t, repo.CreateItem(ctx, requested))

	foreign := newTestItem("foreign", "someone")
	require.NoError(t, repo.CreateItem(ctx, foreign))

	tests := []struct {
		name   string
		filter ItemFilter
		want   []string
	}{
		{name: "owned, newest first", filter: ItemFilter{OwnerID: "owner"}, want: []string{"requested", "borrowed", "free"}},
		{name: "borrowed by user", filter: ItemFilter{BorrowerID: "u1"}, want: []string{"borrowed"}},
		{name: "available in category", filter: ItemFilter{OnlyAvailable: true, Category: "sports"}, want: []string{"foreign", "free"}},
		{name: "with pending requests", filter: ItemFilter{OwnerID: "owner", WithPendingRequests: true}, want: []string{"requested"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := repo.ListItems(ctx, tt.filter)
			require.NoError(t, err)

			ids := make([]string, 0, len(items))
			for _, it := range items {
				ids = append(ids, it.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestMemoryRepository_Rewards(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	require.NoError(t, repo.AppendReward(ctx, model.Transaction{ID: "t1", UserID: "u1", Amount: 10}))
	require.NoError(t, repo.AppendReward(ctx, model.Transaction{ID: "t2", UserID: "u2", Amount: 5}))
	require.NoError(t, repo.AppendReward(ctx, model.Transaction{ID: "t3", UserID: "u1", Amount: 5}))

	balance, err := repo.GetRewardBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(15), balance)
	assert.Equal(t, balance, repo.EcoPoints("u1"))

	txs, err := repo.GetRewardsByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "t3", txs[0].ID)
}
