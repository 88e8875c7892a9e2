package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/webshop-system/internal/model"
)

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, username, email string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash) VALUES ($1, $2, $3) RETURNING id`,
		username, email, passwordHash,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err, "users_username_key") {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, username)
		}
		if isUniqueViolation(err, "users_email_key") {
			return 0, fmt.Errorf("%w: %s", ErrEmailExists, email)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByUsername возвращает пользователя по имени.
func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, email, mobile, created_at FROM users WHERE username = $1`,
		username,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Email, &u.Mobile, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, email, mobile, created_at FROM users WHERE id = $1`,
		id,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Email, &u.Mobile, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// CreateAddr добавляет адрес доставки в адресную книгу пользователя.
func (r *PostgresRepository) CreateAddr(ctx context.Context, addr *model.Addr) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO addrs (user_id, name, phone, province, city, county, address, is_default)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		addr.UserID, addr.Name, addr.Phone, addr.Province, addr.City, addr.County, addr.Address, addr.IsDefault,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("create addr: %w", err)
	}
	return id, nil
}

// GetAddr возвращает адрес по идентификатору, если он принадлежит пользователю.
func (r *PostgresRepository) GetAddr(ctx context.Context, id, userID int64) (*model.Addr, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, name, phone, province, city, county, address, is_default
		 FROM addrs
		 WHERE id = $1 AND user_id = $2`,
		id, userID,
	)

	var a model.Addr
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Phone, &a.Province, &a.City, &a.County, &a.Address, &a.IsDefault)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAddrNotFound
		}
		return nil, fmt.Errorf("get addr: %w", err)
	}

	return &a, nil
}

// GetAddrsByUser возвращает адресную книгу пользователя.
func (r *PostgresRepository) GetAddrsByUser(ctx context.Context, userID int64) ([]model.Addr, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, name, phone, province, city, county, address, is_default
		 FROM addrs
		 WHERE user_id = $1
		 ORDER BY is_default DESC, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select addrs: %w", err)
	}
	defer rows.Close()

	var res []model.Addr
	for rows.Next() {
		var a model.Addr
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Phone, &a.Province, &a.City, &a.County, &a.Address, &a.IsDefault); err != nil {
			return nil, fmt.Errorf("scan addr: %w", err)
		}
		res = append(res, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpdateAddr изменяет адрес доставки пользователя.
func (r *PostgresRepository) UpdateAddr(ctx context.Context, addr *model.Addr) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE addrs
		 SET name = $3, phone = $4, province = $5, city = $6, county = $7, address = $8
		 WHERE id = $1 AND user_id = $2`,
		addr.ID, addr.UserID, addr.Name, addr.Phone, addr.Province, addr.City, addr.County, addr.Address,
	)
	if err != nil {
		return fmt.Errorf("update addr: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrAddrNotFound
	}
	return nil
}

// DeleteAddr удаляет адрес доставки пользователя.
func (r *PostgresRepository) DeleteAddr(ctx context.Context, id, userID int64) error {
	cmdTag, err := r.pool.Exec(ctx,
		`DELETE FROM addrs WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete addr: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrAddrNotFound
	}
	return nil
}

// SetDefaultAddr делает адрес основным, снимая признак с прежнего основного адреса.
func (r *PostgresRepository) SetDefaultAddr(ctx context.Context, id, userID int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE addrs SET is_default = FALSE WHERE user_id = $1 AND is_default`,
		userID,
	); err != nil {
		return fmt.Errorf("clear default addr: %w", err)
	}

	cmdTag, err := tx.Exec(ctx,
		`UPDATE addrs SET is_default = TRUE WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("set default addr: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrAddrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
