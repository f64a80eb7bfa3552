package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/ecoshare/internal/model"
)

// newPostgresTestRepository подключается к TEST_DATABASE_URI или пропускает тест.
func newPostgresTestRepository(t *testing.T) *PostgresRepository {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URI")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URI is not set")
	}

	repo, err := NewPostgresRepository(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	return repo
}

func TestPostgresRepository_ItemRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newPostgresTestRepository(t)

	owner := uuid.NewString()
	it := newTestItem(uuid.NewString(), owner)
	it.Location = &model.Location{Longitude: 13.4, Latitude: 52.5, Address: "Berlin"}
	it.Images = []string{"https://example.com/tent.jpg"}
	require.NoError(t, repo.CreateItem(ctx, it))
	t.Cleanup(func() { _ = repo.DeleteItem(context.Background(), it.ID, it.Version) })

	loaded, err := repo.LoadItem(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, owner, loaded.OwnerID)
	assert.Equal(t, "Berlin", loaded.Location.Address)
	assert.True(t, loaded.Available())

	stale := *loaded
	loaded.Requests = append(loaded.Requests, model.BorrowRequest{ID: "r1", RequesterID: "u1", Status: model.RequestStatusApproved})
	loaded.Lending = model.BorrowedBy("u1")
	require.NoError(t, repo.SaveItem(ctx, loaded))
	it.Version = loaded.Version

	require.ErrorIs(t, repo.SaveItem(ctx, &stale), ErrStaleItem)

	borrowed, err := repo.ListItems(ctx, ItemFilter{BorrowerID: "u1", OwnerID: owner})
	require.NoError(t, err)
	require.Len(t, borrowed, 1)
	borrower, ok := borrowed[0].CurrentBorrower()
	require.True(t, ok)
	assert.Equal(t, "u1", borrower)

	_, err = repo.LoadItem(ctx, uuid.NewString())
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestPostgresRepository_AppendReward(t *testing.T) {
	ctx := context.Background()
	repo := newPostgresTestRepository(t)

	user := uuid.NewString()
	for _, amount := range []int64{10, 5} {
		require.NoError(t, repo.AppendReward(ctx, model.Transaction{
			ID:     uuid.NewString(),
			UserID: user,
			Type:   model.TransactionSharingReward,
			Amount: amount,
			Status: model.TransactionCompleted,
		}))
	}

	balance, err := repo.GetRewardBalance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(15), balance)

	var points int64
	require.NoError(t, repo.pool.QueryRow(ctx, `SELECT eco_points FROM user_points WHERE user_id = $1`, user).Scan(&points))
	assert.Equal(t, balance, points)

	txs, err := repo.GetRewardsByUser(ctx, user)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestPostgresRepository_WithRetry(t *testing.T) {
	connErr := fmt.Errorf("update item: %w", errors.New("write tcp 10.0.0.1:5432: connection reset by peer"))

	tests := []struct {
		name      string
		errs      []error
		wantErr   error
		wantCalls int
	}{
		{name: "success", errs: []error{nil}, wantCalls: 1},
		{name: "connection error recovers", errs: []error{connErr, connErr, nil}, wantCalls: 3},
		{name: "connection error exhausts retries", errs: []error{connErr, connErr, connErr, connErr}, wantErr: connErr, wantCalls: 4},
		{
			name:      "serialization failure recovers",
			errs:      []error{&pgconn.PgError{Code: pgerrcode.SerializationFailure}, nil},
			wantCalls: 2,
		},
		{name: "stale item is not retried", errs: []error{ErrStaleItem, nil}, wantErr: ErrStaleItem, wantCalls: 1},
		{name: "missing item is not retried", errs: []error{ErrItemNotFound, nil}, wantErr: ErrItemNotFound, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &PostgresRepository{retryDelays: []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}}

			calls := 0
			err := repo.withRetry(context.Background(), func() error {
				err := tt.errs[calls]
				calls++
				return err
			})

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestPostgresRepository_WithRetryStopsOnCancel(t *testing.T) {
	repo := &PostgresRepository{retryDelays: []time.Duration{time.Hour}}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := repo.withRetry(ctx, func() error {
		calls++
		cancel()
		return errors.New("dial tcp: connection refused")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
