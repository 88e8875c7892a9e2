// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим именем.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrEmailExists возвращается, если адрес почты уже используется другим пользователем.
	ErrEmailExists = errors.New("email already in use")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrAddrNotFound возвращается, если адрес не найден или не принадлежит пользователю.
	ErrAddrNotFound = errors.New("address not found")
	// ErrProductNotFound возвращается, если товар не найден или снят с продажи.
	ErrProductNotFound = errors.New("product not found")
	// ErrCartLineNotFound возвращается, если позиция корзины не найдена или не принадлежит пользователю.
	ErrCartLineNotFound = errors.New("cart line not found")
	// ErrEmptyCart возвращается при оформлении заказа без отмеченных позиций корзины.
	ErrEmptyCart = errors.New("no checked cart lines")
	// ErrInsufficientStock возвращается, если запрошенное количество не меньше остатка на складе.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderCodeExists возвращается при коллизии номера заказа.
	ErrOrderCodeExists = errors.New("order code already exists")
	// ErrOrderNotCancellable возвращается при попытке закрыть заказ не в статусе «не оплачен».
	ErrOrderNotCancellable = errors.New("only unpaid orders can be closed")
	// ErrOrderNotAwaitingComment возвращается, если заказ не находится в статусе «ожидает отзыва».
	ErrOrderNotAwaitingComment = errors.New("order is not awaiting comment")
	// ErrProductNotInOrder возвращается, если отзыв ссылается на товар, которого нет в заказе.
	ErrProductNotInOrder = errors.New("product is not part of the order")
	// ErrCollectExists возвращается при повторном добавлении товара в избранное.
	ErrCollectExists = errors.New("product already collected")
	// ErrCollectNotFound возвращается, если запись избранного не найдена или не принадлежит пользователю.
	ErrCollectNotFound = errors.New("collect not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

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

	r := &PostgresRepository{pool: pool}

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

// withRetry повторяет операцию при сбоях сериализации, дедлоках и сетевых ошибках.
// Конкурирующие оформления заказа блокируются на одних и тех же строках товаров,
// поэтому дедлок здесь не исключительная ситуация.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Ошибки контекста не ретраим
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == pgerrcode.UniqueViolation &&
		pgErr.ConstraintName == constraint
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
