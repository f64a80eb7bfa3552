package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // диалект для построителя запросов
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/ecoshare/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	dialectPostgres = "postgres"
	tableItems      = "items"
	// pendingContainment выбирает вещи, у которых есть хотя бы одна заявка на рассмотрении.
	pendingContainment = `[{"status":"pending"}]`
)

var itemColumns = []any{
	"id", "owner_id", "title", "description", "category", "images", "location", "condition",
	"lending_status", "current_borrower", "requests", "history", "version", "created_at", "updated_at",
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool        *pgxpool.Pool
	retryDelays []time.Duration
}

var defaultRetryDelays = []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool, retryDelays: defaultRetryDelays}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := r.retryDelays

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(delays) {
			break
		}

		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateItem сохраняет новую вещь с версией 1.
func (r *PostgresRepository) CreateItem(ctx context.Context, it *model.Item) error {
	docs, err := encodeItemDocs(it)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}

	status, borrower := lendingColumns(it.Lending)

	err = r.pool.QueryRow(ctx,
		`INSERT INTO items (id, owner_id, title, description, category, images, location, condition,
		                    lending_status, current_borrower, requests, history, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1)
		 RETURNING version, created_at, updated_at`,
		it.ID, it.OwnerID, it.Title, it.Description, it.Category, docs.images, docs.location, string(it.Condition),
		status, borrower, docs.requests, docs.history,
	).Scan(&it.Version, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}

	return nil
}

// LoadItem возвращает вещь по идентификатору.
func (r *PostgresRepository) LoadItem(ctx context.Context, id string) (*model.Item, error) {
	query, args, err := goqu.Dialect(dialectPostgres).
		From(tableItems).
		Select(itemColumns...).
		Where(goqu.Ex{"id": id}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select item: %w", err)
	}

	var it *model.Item
	err = r.withRetry(ctx, func() error {
		it, err = scanItem(r.pool.QueryRow(ctx, query, args...))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrItemNotFound
			}
			return fmt.Errorf("select item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return it, nil
}

// SaveItem записывает вещь, если её версия не изменилась с момента загрузки.
// При успехе увеличивает it.Version.
func (r *PostgresRepository) SaveItem(ctx context.Context, it *model.Item) error {
	docs, err := encodeItemDocs(it)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}

	status, borrower := lendingColumns(it.Lending)

	return r.withRetry(ctx, func() error {
		var (
			version   int64
			updatedAt time.Time
		)
		err := r.pool.QueryRow(ctx,
			`UPDATE items
			 SET title = $3, description = $4, category = $5, images = $6, location = $7, condition = $8,
			     lending_status = $9, current_borrower = $10, requests = $11, history = $12,
			     version = version + 1, updated_at = now()
			 WHERE id = $1 AND version = $2
			 RETURNING version, updated_at`,
			it.ID, it.Version, it.Title, it.Description, it.Category, docs.images, docs.location, string(it.Condition),
			status, borrower, docs.requests, docs.history,
		).Scan(&version, &updatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return r.missingOrStale(ctx, it.ID)
			}
			return fmt.Errorf("update item: %w", err)
		}

		it.Version, it.UpdatedAt = version, updatedAt
		return nil
	})
}

// DeleteItem удаляет вещь, если её версия не изменилась с момента загрузки.
func (r *PostgresRepository) DeleteItem(ctx context.Context, id string, version int64) error {
	return r.withRetry(ctx, func() error {
		cmdTag, err := r.pool.Exec(ctx, `DELETE FROM items WHERE id = $1 AND version = $2`, id, version)
		if err != nil {
			return fmt.Errorf("delete item: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return r.missingOrStale(ctx, id)
		}
		return nil
	})
}

func (r *PostgresRepository) missingOrStale(ctx context.Context, id string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check item exists: %w", err)
	}
	if !exists {
		return ErrItemNotFound
	}
	return ErrStaleItem
}

// ListItems возвращает вещи по фильтру, новые первыми.
func (r *PostgresRepository) ListItems(ctx context.Context, f ItemFilter) ([]model.Item, error) {
	ds := goqu.Dialect(dialectPostgres).
		From(tableItems).
		Select(itemColumns...).
		Order(goqu.I("created_at").Desc())

	if f.OwnerID != "" {
		ds = ds.Where(goqu.Ex{"owner_id": f.OwnerID})
	}
	if f.BorrowerID != "" {
		ds = ds.Where(goqu.Ex{"current_borrower": f.BorrowerID})
	}
	if f.Category != "" {
		ds = ds.Where(goqu.Ex{"category": f.Category})
	}
	if f.OnlyAvailable {
		ds = ds.Where(goqu.Ex{"lending_status": string(model.LendingAvailable)})
	}
	if f.WithPendingRequests {
		ds = ds.Where(goqu.L("requests @> ?::jsonb", pendingContainment))
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select items: %w", err)
	}

	var items []model.Item
	err = r.withRetry(ctx, func() error {
		items = items[:0]

		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("select items: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			it, err := scanItem(rows)
			if err != nil {
				return fmt.Errorf("scan item: %w", err)
			}
			items = append(items, *it)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}

// AppendReward добавляет запись в журнал начислений и увеличивает баланс пользователя
// в одной транзакции.
func (r *PostgresRepository) AppendReward(ctx context.Context, t model.Transaction) error {
	return r.withRetry(ctx, func() error {
		return r.appendReward(ctx, t)
	})
}

func (r *PostgresRepository) appendReward(ctx context.Context, t model.Transaction) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO reward_transactions (id, user_id, type, amount, description, related_id, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.UserID, string(t.Type), t.Amount, t.Description, t.RelatedID, string(t.Status), t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reward transaction: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO user_points (user_id, eco_points) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE
		 SET eco_points = user_points.eco_points + EXCLUDED.eco_points, updated_at = now()`,
		t.UserID, t.Amount,
	)
	if err != nil {
		return fmt.Errorf("increment user points: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetRewardBalance возвращает сумму начислений пользователя по журналу.
func (r *PostgresRepository) GetRewardBalance(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM reward_transactions WHERE user_id = $1`,
		userID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum rewards: %w", err)
	}
	return total, nil
}

// GetRewardsByUser возвращает журнал начислений пользователя, новые записи первыми.
func (r *PostgresRepository) GetRewardsByUser(ctx context.Context, userID string) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, type, amount, description, related_id, status, created_at
		 FROM reward_transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select rewards: %w", err)
	}
	defer rows.Close()

	var res []model.Transaction
	for rows.Next() {
		var (
			t       model.Transaction
			txType  string
			txState string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &txType, &t.Amount, &t.Description, &t.RelatedID, &txState, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		t.Type = model.TransactionType(txType)
		t.Status = model.TransactionStatus(txState)
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func lendingColumns(l model.Lending) (string, *string) {
	if borrower, ok := l.Borrower(); ok {
		return string(model.LendingBorrowed), &borrower
	}
	return string(l.Status()), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*model.Item, error) {
	var (
		it        model.Item
		docs      itemDocs
		condition string
		status    string
		borrower  *string
	)

	err := row.Scan(
		&it.ID, &it.OwnerID, &it.Title, &it.Description, &it.Category,
		&docs.images, &docs.location, &condition, &status, &borrower,
		&docs.requests, &docs.history, &it.Version, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	it.Condition = model.Condition(condition)

	var borrowerID string
	if borrower != nil {
		borrowerID = *borrower
	}
	if it.Lending, err = model.ParseLending(model.LendingStatus(status), borrowerID); err != nil {
		return nil, fmt.Errorf("item %s: %w", it.ID, err)
	}

	if err := decodeItemDocs(&it, docs); err != nil {
		return nil, fmt.Errorf("decode item %s: %w", it.ID, err)
	}

	return &it, nil
}
