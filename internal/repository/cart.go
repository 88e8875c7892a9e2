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

// AddCartLine добавляет товар в корзину пользователя. Если товар уже есть в
// корзине, количество увеличивается на единицу (не более одной позиции на товар).
func (r *PostgresRepository) AddCartLine(ctx context.Context, userID, productID int64) (*model.CartLine, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO cart_lines (user_id, product_id)
		 VALUES ($1, $2)
		 ON CONFLICT ON CONSTRAINT cart_lines_user_product_key
		 DO UPDATE SET number = cart_lines.number + 1
		 RETURNING id, user_id, product_id, number, is_checked`,
		userID, productID,
	)

	var line model.CartLine
	err := row.Scan(&line.ID, &line.UserID, &line.ProductID, &line.Number, &line.IsChecked)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("add cart line: %w", err)
	}

	return &line, nil
}

// GetCartLines возвращает корзину пользователя вместе с данными товаров.
// Фильтр checked позволяет выбрать только отмеченные или только снятые позиции.
func (r *PostgresRepository) GetCartLines(ctx context.Context, userID int64, checked *bool) ([]model.CartLine, error) {
	query := `SELECT c.id, c.user_id, c.product_id, c.number, c.is_checked,
	        p.id, p.group_id, p.title, p.cover, p.price, p.stock, p.sales, p.recommend, p.is_on, p.created_at
	 FROM cart_lines c
	 JOIN products p ON p.id = c.product_id
	 WHERE c.user_id = $1`
	args := []any{userID}

	if checked != nil {
		args = append(args, *checked)
		query += " AND c.is_checked = $2"
	}
	query += " ORDER BY c.id"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select cart lines: %w", err)
	}
	defer rows.Close()

	var res []model.CartLine
	for rows.Next() {
		var c model.CartLine
		var p model.Product
		if err := rows.Scan(&c.ID, &c.UserID, &c.ProductID, &c.Number, &c.IsChecked,
			&p.ID, &p.GroupID, &p.Title, &p.Cover, &p.Price, &p.Stock, &p.Sales, &p.Recommend, &p.IsOn, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		c.Product = &p
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetCartLine возвращает позицию корзины, если она принадлежит пользователю.
func (r *PostgresRepository) GetCartLine(ctx context.Context, id, userID int64) (*model.CartLine, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT c.id, c.user_id, c.product_id, c.number, c.is_checked, p.stock
		 FROM cart_lines c
		 JOIN products p ON p.id = c.product_id
		 WHERE c.id = $1 AND c.user_id = $2`,
		id, userID,
	)

	var line model.CartLine
	var stock int
	err := row.Scan(&line.ID, &line.UserID, &line.ProductID, &line.Number, &line.IsChecked, &stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartLineNotFound
		}
		return nil, fmt.Errorf("get cart line: %w", err)
	}
	line.Product = &model.Product{ID: line.ProductID, Stock: stock}

	return &line, nil
}

// ToggleCartLineChecked переключает признак выбора позиции корзины и возвращает новое значение.
func (r *PostgresRepository) ToggleCartLineChecked(ctx context.Context, id, userID int64) (bool, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE cart_lines SET is_checked = NOT is_checked
		 WHERE id = $1 AND user_id = $2
		 RETURNING is_checked`,
		id, userID,
	)

	var checked bool
	if err := row.Scan(&checked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrCartLineNotFound
		}
		return false, fmt.Errorf("toggle cart line: %w", err)
	}

	return checked, nil
}

// UpdateCartLineNumber изменяет количество товара в позиции корзины.
func (r *PostgresRepository) UpdateCartLineNumber(ctx context.Context, id, userID int64, number int) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE cart_lines SET number = $3 WHERE id = $1 AND user_id = $2`,
		id, userID, number,
	)
	if err != nil {
		return fmt.Errorf("update cart line: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCartLineNotFound
	}
	return nil
}

// DeleteCartLine удаляет позицию корзины пользователя.
func (r *PostgresRepository) DeleteCartLine(ctx context.Context, id, userID int64) error {
	cmdTag, err := r.pool.Exec(ctx,
		`DELETE FROM cart_lines WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete cart line: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCartLineNotFound
	}
	return nil
}
