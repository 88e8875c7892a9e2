package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/webshop-system/internal/model"
)

type checkoutLine struct {
	cartID    int64
	productID int64
	number    int
	title     string
	price     decimal.Decimal
	stock     int
}

// checkoutTotal проверяет остатки позиций и возвращает сумму заказа.
// Покупка ровно всего остатка отклоняется: остаток должен быть строго больше
// покупаемого количества.
func checkoutTotal(lines []checkoutLine) (decimal.Decimal, error) {
	amount := decimal.Zero
	for _, line := range lines {
		if line.stock <= line.number {
			return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrInsufficientStock, line.title)
		}
		amount = amount.Add(line.price.Mul(decimal.NewFromInt(int64(line.number))))
	}
	return amount, nil
}

// CreateOrder оформляет заказ из отмеченных позиций корзины в одной транзакции:
// резервирует остатки, создаёт заказ с позициями и очищает корзину. При любом
// сбое ни одно изменение не сохраняется.
func (r *PostgresRepository) CreateOrder(ctx context.Context, userID int64, addr, orderCode string) (*model.Order, error) {
	var order *model.Order
	err := r.withRetry(ctx, func() error {
		var txErr error
		order, txErr = r.createOrderTx(ctx, userID, addr, orderCode)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *PostgresRepository) createOrderTx(ctx context.Context, userID int64, addr, orderCode string) (*model.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Блокируем строки товаров, чтобы конкурирующие оформления не потеряли
	// обновления остатков. Порядок обхода фиксирован: ORDER BY c.id.
	rows, err := tx.Query(ctx,
		`SELECT c.id, c.product_id, c.number, p.title, p.price, p.stock
		 FROM cart_lines c
		 JOIN products p ON p.id = c.product_id
		 WHERE c.user_id = $1 AND c.is_checked
		 ORDER BY c.id
		 FOR UPDATE OF c, p`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select checked cart lines: %w", err)
	}

	var lines []checkoutLine
	for rows.Next() {
		var line checkoutLine
		if err := rows.Scan(&line.cartID, &line.productID, &line.number, &line.title, &line.price, &line.stock); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, line)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	amount, err := checkoutTotal(lines)
	if err != nil {
		return nil, err
	}

	order := &model.Order{
		UserID:    userID,
		Addr:      addr,
		OrderCode: orderCode,
		Amount:    amount,
		Status:    model.OrderStatusUnpaid,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (user_id, addr, order_code, amount, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		userID, addr, orderCode, amount, model.OrderStatusUnpaid,
	).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "orders_order_code_key") {
			return nil, fmt.Errorf("%w: %s", ErrOrderCodeExists, orderCode)
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}

	for _, line := range lines {
		if _, err := tx.Exec(ctx,
			`UPDATE products SET stock = stock - $2, sales = sales + $2 WHERE id = $1`,
			line.productID, line.number,
		); err != nil {
			return nil, fmt.Errorf("update product stock: %w", err)
		}

		item := model.OrderItem{
			OrderID:   order.ID,
			ProductID: line.productID,
			Price:     line.price,
			Number:    line.number,
			Title:     line.title,
		}
		if err := tx.QueryRow(ctx,
			`INSERT INTO order_items (order_id, product_id, price, number)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id`,
			order.ID, line.productID, line.price, line.number,
		).Scan(&item.ID); err != nil {
			return nil, fmt.Errorf("insert order item: %w", err)
		}
		order.Items = append(order.Items, item)

		if _, err := tx.Exec(ctx,
			`DELETE FROM cart_lines WHERE id = $1`,
			line.cartID,
		); err != nil {
			return nil, fmt.Errorf("delete cart line: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return order, nil
}

// GetOrdersByUser возвращает заказы пользователя, новые первыми.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, userID int64, status *model.OrderStatus) ([]model.Order, error) {
	query := `SELECT id, user_id, addr, order_code, amount, status, pay_type, pay_time, trade_no, created_at
	 FROM orders
	 WHERE user_id = $1`
	args := []any{userID}

	if status != nil {
		args = append(args, *status)
		query += " AND status = $2"
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Addr, &o.OrderCode, &o.Amount, &o.Status, &o.PayType, &o.PayTime, &o.TradeNo, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetOrderByID возвращает заказ без позиций.
func (r *PostgresRepository) GetOrderByID(ctx context.Context, id int64) (*model.Order, error) {
	return r.getOrder(ctx, `WHERE id = $1`, id)
}

// GetOrderByCode возвращает заказ по номеру.
func (r *PostgresRepository) GetOrderByCode(ctx context.Context, orderCode string) (*model.Order, error) {
	return r.getOrder(ctx, `WHERE order_code = $1`, orderCode)
}

func (r *PostgresRepository) getOrder(ctx context.Context, where string, arg any) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, addr, order_code, amount, status, pay_type, pay_time, trade_no, created_at
		 FROM orders `+where,
		arg,
	)

	var o model.Order
	err := row.Scan(&o.ID, &o.UserID, &o.Addr, &o.OrderCode, &o.Amount, &o.Status, &o.PayType, &o.PayTime, &o.TradeNo, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	return &o, nil
}

// GetOrderItems возвращает позиции заказа.
func (r *PostgresRepository) GetOrderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT i.id, i.order_id, i.product_id, i.price, i.number, p.title
		 FROM order_items i
		 JOIN products p ON p.id = i.product_id
		 WHERE i.order_id = $1
		 ORDER BY i.id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	var res []model.OrderItem
	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Price, &item.Number, &item.Title); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		res = append(res, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CloseOrder переводит заказ из статуса «не оплачен» в «закрыт».
// Защита по статусу выполняется самим запросом.
func (r *PostgresRepository) CloseOrder(ctx context.Context, orderID int64) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1 AND status = $3`,
		orderID, model.OrderStatusClosed, model.OrderStatusUnpaid,
	)
	if err != nil {
		return fmt.Errorf("close order: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotCancellable
	}
	return nil
}

// MarkOrderPaid отмечает заказ оплаченным. Возвращает false, если заказ уже не
// находился в статусе «не оплачен» — повторное применение результата оплаты
// ничего не меняет.
func (r *PostgresRepository) MarkOrderPaid(ctx context.Context, orderCode, tradeNo string, payTime time.Time) (bool, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE orders
		 SET status = $2, pay_type = $3, pay_time = $4, trade_no = $5
		 WHERE order_code = $1 AND status = $6`,
		orderCode, model.OrderStatusPaid, model.PayTypeAlipay, payTime, tradeNo, model.OrderStatusUnpaid,
	)
	if err != nil {
		return false, fmt.Errorf("mark order paid: %w", err)
	}
	return cmdTag.RowsAffected() == 1, nil
}

// GetUnpaidOrdersBefore возвращает неоплаченные заказы, созданные до указанного
// момента, для фоновой сверки с платёжным шлюзом.
func (r *PostgresRepository) GetUnpaidOrdersBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, addr, order_code, amount, status, pay_type, pay_time, trade_no, created_at
		 FROM orders
		 WHERE status = $1 AND created_at < $2
		 ORDER BY created_at
		 LIMIT $3`,
		model.OrderStatusUnpaid, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select unpaid orders: %w", err)
	}
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Addr, &o.OrderCode, &o.Amount, &o.Status, &o.PayType, &o.PayTime, &o.TradeNo, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateComments сохраняет отзывы о товарах заказа и переводит заказ в статус
// «завершён» в одной транзакции. Отзыв на товар, которого нет в заказе,
// отменяет весь пакет.
func (r *PostgresRepository) CreateComments(ctx context.Context, orderID, userID int64, comments []model.Comment) error {
	return r.withRetry(ctx, func() error {
		return r.createCommentsTx(ctx, orderID, userID, comments)
	})
}

func (r *PostgresRepository) createCommentsTx(ctx context.Context, orderID, userID int64, comments []model.Comment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range comments {
		var inOrder bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM order_items WHERE order_id = $1 AND product_id = $2)`,
			orderID, c.ProductID,
		).Scan(&inOrder)
		if err != nil {
			return fmt.Errorf("check order item: %w", err)
		}
		if !inOrder {
			return fmt.Errorf("%w: %d", ErrProductNotInOrder, c.ProductID)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO comments (user_id, order_id, product_id, content, rate, star)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			userID, orderID, c.ProductID, c.Content, c.Rate, c.Star,
		); err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
	}

	// Повторная защита по статусу внутри транзакции: заказ мог быть изменён
	// между проверкой в сервисе и записью отзывов.
	cmdTag, err := tx.Exec(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1 AND status = $3`,
		orderID, model.OrderStatusCompleted, model.OrderStatusAwaitingComment,
	)
	if err != nil {
		return fmt.Errorf("complete order: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotAwaitingComment
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetComments возвращает отзывы по товару или заказу.
func (r *PostgresRepository) GetComments(ctx context.Context, productID, orderID *int64) ([]model.Comment, error) {
	query := `SELECT id, user_id, order_id, product_id, content, rate, star, created_at
	 FROM comments
	 WHERE TRUE`
	args := []any{}

	if productID != nil {
		args = append(args, *productID)
		query += fmt.Sprintf(" AND product_id = $%d", len(args))
	}
	if orderID != nil {
		args = append(args, *orderID)
		query += fmt.Sprintf(" AND order_id = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select comments: %w", err)
	}
	defer rows.Close()

	var res []model.Comment
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(&c.ID, &c.UserID, &c.OrderID, &c.ProductID, &c.Content, &c.Rate, &c.Star, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
