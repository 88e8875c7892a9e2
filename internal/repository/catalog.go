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

// ProductFilter задаёт параметры выборки товаров каталога.
type ProductFilter struct {
	GroupID   *int64
	Recommend *bool
	OrderBy   string
}

// Допустимые значения сортировки каталога.
var productOrderings = map[string]string{
	"":           "created_at DESC",
	"sales":      "sales DESC",
	"price":      "price",
	"-price":     "price DESC",
	"creat_time": "created_at DESC",
}

// GetProducts возвращает товары, доступные для продажи, с учётом фильтров.
func (r *PostgresRepository) GetProducts(ctx context.Context, filter ProductFilter) ([]model.Product, error) {
	ordering, ok := productOrderings[filter.OrderBy]
	if !ok {
		ordering = productOrderings[""]
	}

	query := `SELECT id, group_id, title, cover, price, stock, sales, recommend, is_on, created_at
	 FROM products
	 WHERE is_on`
	args := []any{}

	if filter.GroupID != nil {
		args = append(args, *filter.GroupID)
		query += fmt.Sprintf(" AND group_id = $%d", len(args))
	}
	if filter.Recommend != nil {
		args = append(args, *filter.Recommend)
		query += fmt.Sprintf(" AND recommend = $%d", len(args))
	}
	query += " ORDER BY " + ordering

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var res []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.GroupID, &p.Title, &p.Cover, &p.Price, &p.Stock, &p.Sales, &p.Recommend, &p.IsOn, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetProduct возвращает товар каталога по идентификатору.
func (r *PostgresRepository) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, group_id, title, cover, price, stock, sales, recommend, is_on, created_at
		 FROM products
		 WHERE id = $1 AND is_on`,
		id,
	)

	var p model.Product
	err := row.Scan(&p.ID, &p.GroupID, &p.Title, &p.Cover, &p.Price, &p.Stock, &p.Sales, &p.Recommend, &p.IsOn, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return &p, nil
}

// GetGroups возвращает действующие категории товаров.
func (r *PostgresRepository) GetGroups(ctx context.Context) ([]model.ProductGroup, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, status FROM product_groups WHERE status ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select groups: %w", err)
	}
	defer rows.Close()

	var res []model.ProductGroup
	for rows.Next() {
		var g model.ProductGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.Status); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		res = append(res, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateCollect добавляет товар в избранное пользователя.
func (r *PostgresRepository) CreateCollect(ctx context.Context, userID, productID int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO collects (user_id, product_id) VALUES ($1, $2) RETURNING id`,
		userID, productID,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err, "collects_user_product_key") {
			return 0, ErrCollectExists
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return 0, ErrProductNotFound
		}
		return 0, fmt.Errorf("create collect: %w", err)
	}
	return id, nil
}

// GetCollectsByUser возвращает избранные товары пользователя.
func (r *PostgresRepository) GetCollectsByUser(ctx context.Context, userID int64) ([]model.Collect, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.user_id, c.product_id,
		        p.id, p.group_id, p.title, p.cover, p.price, p.stock, p.sales, p.recommend, p.is_on, p.created_at
		 FROM collects c
		 JOIN products p ON p.id = c.product_id
		 WHERE c.user_id = $1
		 ORDER BY c.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select collects: %w", err)
	}
	defer rows.Close()

	var res []model.Collect
	for rows.Next() {
		var c model.Collect
		var p model.Product
		if err := rows.Scan(&c.ID, &c.UserID, &c.ProductID,
			&p.ID, &p.GroupID, &p.Title, &p.Cover, &p.Price, &p.Stock, &p.Sales, &p.Recommend, &p.IsOn, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan collect: %w", err)
		}
		c.Product = &p
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// DeleteCollect удаляет запись избранного пользователя.
func (r *PostgresRepository) DeleteCollect(ctx context.Context, id, userID int64) error {
	cmdTag, err := r.pool.Exec(ctx,
		`DELETE FROM collects WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete collect: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCollectNotFound
	}
	return nil
}
