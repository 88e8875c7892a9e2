// Package model содержит доменные сущности интернет-магазина.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User представляет зарегистрированного пользователя магазина.
type User struct {
	ID           int64
	Username     string
	PasswordHash []byte
	Email        string
	Mobile       string
	CreatedAt    time.Time
}

// Addr представляет адрес доставки из адресной книги пользователя.
type Addr struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Province  string `json:"province"`
	City      string `json:"city"`
	County    string `json:"county"`
	Address   string `json:"address"`
	IsDefault bool   `json:"is_default"`
}

// ProductGroup описывает категорию товаров.
type ProductGroup struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status bool   `json:"status"`
}

// Product описывает товар каталога. Цена хранится как точное десятичное число.
type Product struct {
	ID        int64           `json:"id"`
	GroupID   int64           `json:"group"`
	Title     string          `json:"title"`
	Cover     string          `json:"cover"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Sales     int             `json:"sales"`
	Recommend bool            `json:"recommend"`
	IsOn      bool            `json:"is_on"`
	CreatedAt time.Time       `json:"creat_time"`
}

// CartLine представляет позицию покупательской корзины.
// На пару (пользователь, товар) существует не более одной позиции.
type CartLine struct {
	ID        int64    `json:"id"`
	UserID    int64    `json:"user"`
	ProductID int64    `json:"goods"`
	Number    int      `json:"number"`
	IsChecked bool     `json:"is_checked"`
	Product   *Product `json:"goods_info,omitempty"`
}

// OrderStatus описывает статус заказа. Используются фиксированные числовые
// коды исходного API; код 3 зарезервирован и не используется.
type OrderStatus int

const (
	// OrderStatusUnpaid — заказ создан и ожидает оплаты.
	OrderStatusUnpaid OrderStatus = 1
	// OrderStatusPaid — заказ оплачен.
	OrderStatusPaid OrderStatus = 2
	// OrderStatusAwaitingComment — заказ доставлен и ожидает отзыва.
	OrderStatusAwaitingComment OrderStatus = 4
	// OrderStatusCompleted — заказ завершён.
	OrderStatusCompleted OrderStatus = 5
	// OrderStatusClosed — заказ отменён покупателем.
	OrderStatusClosed OrderStatus = 6
)

// PayTypeAlipay — единственный поддерживаемый способ оплаты.
const PayTypeAlipay = 1

// Order представляет заказ: адрес фиксируется строкой на момент оформления,
// amount равен сумме позиций на момент создания и далее не пересчитывается.
type Order struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user"`
	Addr      string          `json:"addr"`
	OrderCode string          `json:"order_code"`
	Amount    decimal.Decimal `json:"amount"`
	Status    OrderStatus     `json:"status"`
	PayType   int             `json:"pay_type"`
	PayTime   *time.Time      `json:"pay_time"`
	TradeNo   string          `json:"trade_no"`
	CreatedAt time.Time       `json:"creat_time"`
	Items     []OrderItem     `json:"goods_list,omitempty"`
}

// OrderItem представляет позицию заказа: снимок цены товара на момент
// оформления, после создания не изменяется.
type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order"`
	ProductID int64           `json:"goods"`
	Price     decimal.Decimal `json:"price"`
	Number    int             `json:"number"`
	Title     string          `json:"title,omitempty"`
}

// Collect представляет товар, добавленный пользователем в избранное.
type Collect struct {
	ID        int64    `json:"id"`
	UserID    int64    `json:"user"`
	ProductID int64    `json:"goods"`
	Product   *Product `json:"goods_info,omitempty"`
}

// Comment представляет отзыв о товаре из состава заказа.
type Comment struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user"`
	OrderID   int64     `json:"order"`
	ProductID int64     `json:"goods"`
	Content   string    `json:"content"`
	Rate      int       `json:"rate"`
	Star      int       `json:"star"`
	CreatedAt time.Time `json:"creat_time"`
}
