// Package service реализует бизнес-логику интернет-магазина.
package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/webshop-system/internal/alipay"
	"github.com/mmeshcher/webshop-system/internal/model"
	"github.com/mmeshcher/webshop-system/internal/repository"
)

// ErrInvalidCredentials возвращается при неверном имени пользователя или пароле.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotOwner возвращается при попытке операции над чужим ресурсом.
	ErrNotOwner = errors.New("no permission to operate on this resource")
	// ErrNumberExceedsStock возвращается, если запрошенное количество превышает остаток товара.
	ErrNumberExceedsStock = errors.New("number exceeds product stock")
	// ErrOrderNotAwaitingPayment возвращается, если заказ не находится в статусе «не оплачен».
	ErrOrderNotAwaitingPayment = errors.New("order is not awaiting payment")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, username, email string, passwordHash []byte) (int64, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)

	CreateAddr(ctx context.Context, addr *model.Addr) (int64, error)
	GetAddr(ctx context.Context, id, userID int64) (*model.Addr, error)
	GetAddrsByUser(ctx context.Context, userID int64) ([]model.Addr, error)
	UpdateAddr(ctx context.Context, addr *model.Addr) error
	DeleteAddr(ctx context.Context, id, userID int64) error
	SetDefaultAddr(ctx context.Context, id, userID int64) error

	GetProducts(ctx context.Context, filter repository.ProductFilter) ([]model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	GetGroups(ctx context.Context) ([]model.ProductGroup, error)
	CreateCollect(ctx context.Context, userID, productID int64) (int64, error)
	GetCollectsByUser(ctx context.Context, userID int64) ([]model.Collect, error)
	DeleteCollect(ctx context.Context, id, userID int64) error

	AddCartLine(ctx context.Context, userID, productID int64) (*model.CartLine, error)
	GetCartLines(ctx context.Context, userID int64, checked *bool) ([]model.CartLine, error)
	GetCartLine(ctx context.Context, id, userID int64) (*model.CartLine, error)
	ToggleCartLineChecked(ctx context.Context, id, userID int64) (bool, error)
	UpdateCartLineNumber(ctx context.Context, id, userID int64, number int) error
	DeleteCartLine(ctx context.Context, id, userID int64) error

	CreateOrder(ctx context.Context, userID int64, addr, orderCode string) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64, status *model.OrderStatus) ([]model.Order, error)
	GetOrderByID(ctx context.Context, id int64) (*model.Order, error)
	GetOrderByCode(ctx context.Context, orderCode string) (*model.Order, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error)
	CloseOrder(ctx context.Context, orderID int64) error
	MarkOrderPaid(ctx context.Context, orderCode, tradeNo string, payTime time.Time) (bool, error)
	GetUnpaidOrdersBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Order, error)
	CreateComments(ctx context.Context, orderID, userID int64, comments []model.Comment) error
	GetComments(ctx context.Context, productID, orderID *int64) ([]model.Comment, error)
}

// PaymentGateway описывает контракт платёжного шлюза, используемый сервисом.
type PaymentGateway interface {
	PayURL(orderCode string, amount decimal.Decimal) string
	QueryTrade(ctx context.Context, orderCode string) (*alipay.TradeResult, error)
}

// Service содержит бизнес-логику интернет-магазина.
type Service struct {
	repo    Repository
	gateway PaymentGateway
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом платёжного шлюза.
func NewService(repo Repository, gateway PaymentGateway) *Service {
	return &Service{
		repo:    repo,
		gateway: gateway,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, username, password, email string) (*model.User, error) {
	hashed := hashPassword(username, password)
	id, err := s.repo.CreateUser(ctx, username, email, hashed)
	if err != nil {
		return nil, err
	}
	return &model.User{ID: id, Username: username, Email: email}, nil
}

// AuthenticateUser проверяет имя и пароль пользователя и возвращает его учётную запись.
func (s *Service) AuthenticateUser(ctx context.Context, username, password string) (*model.User, error) {
	u, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	hashed := hashPassword(username, password)
	if subtle.ConstantTimeCompare(hashed, u.PasswordHash) != 1 {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

func hashPassword(username, password string) []byte {
	sum := sha256.Sum256([]byte(username + ":" + password))
	return sum[:]
}

// GetUser возвращает учётную запись пользователя.
func (s *Service) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// CreateAddr добавляет адрес доставки в адресную книгу пользователя.
func (s *Service) CreateAddr(ctx context.Context, addr *model.Addr) (*model.Addr, error) {
	id, err := s.repo.CreateAddr(ctx, addr)
	if err != nil {
		return nil, err
	}
	addr.ID = id
	return addr, nil
}

// GetAddrs возвращает адресную книгу пользователя.
func (s *Service) GetAddrs(ctx context.Context, userID int64) ([]model.Addr, error) {
	return s.repo.GetAddrsByUser(ctx, userID)
}

// UpdateAddr изменяет адрес доставки пользователя.
func (s *Service) UpdateAddr(ctx context.Context, addr *model.Addr) error {
	return s.repo.UpdateAddr(ctx, addr)
}

// DeleteAddr удаляет адрес доставки пользователя.
func (s *Service) DeleteAddr(ctx context.Context, id, userID int64) error {
	return s.repo.DeleteAddr(ctx, id, userID)
}

// SetDefaultAddr делает адрес основным.
func (s *Service) SetDefaultAddr(ctx context.Context, id, userID int64) error {
	return s.repo.SetDefaultAddr(ctx, id, userID)
}

// GetProducts возвращает товары каталога с учётом фильтров.
func (s *Service) GetProducts(ctx context.Context, filter repository.ProductFilter) ([]model.Product, error) {
	return s.repo.GetProducts(ctx, filter)
}

// GetProduct возвращает товар каталога.
func (s *Service) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// GetGroups возвращает категории товаров.
func (s *Service) GetGroups(ctx context.Context) ([]model.ProductGroup, error) {
	return s.repo.GetGroups(ctx)
}

// CollectProduct добавляет товар в избранное пользователя.
func (s *Service) CollectProduct(ctx context.Context, userID, productID int64) (*model.Collect, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	id, err := s.repo.CreateCollect(ctx, userID, productID)
	if err != nil {
		return nil, err
	}
	return &model.Collect{ID: id, UserID: userID, ProductID: productID}, nil
}

// GetCollects возвращает избранные товары пользователя.
func (s *Service) GetCollects(ctx context.Context, userID int64) ([]model.Collect, error) {
	return s.repo.GetCollectsByUser(ctx, userID)
}

// DeleteCollect удаляет запись избранного пользователя.
func (s *Service) DeleteCollect(ctx context.Context, id, userID int64) error {
	return s.repo.DeleteCollect(ctx, id, userID)
}

// AddToCart добавляет товар в корзину пользователя или увеличивает количество
// уже добавленного товара.
func (s *Service) AddToCart(ctx context.Context, userID, productID int64) (*model.CartLine, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.AddCartLine(ctx, userID, productID)
}

// GetCart возвращает корзину пользователя.
func (s *Service) GetCart(ctx context.Context, userID int64, checked *bool) ([]model.CartLine, error) {
	return s.repo.GetCartLines(ctx, userID, checked)
}

// ToggleCartLine переключает признак выбора позиции корзины.
func (s *Service) ToggleCartLine(ctx context.Context, id, userID int64) (bool, error) {
	return s.repo.ToggleCartLineChecked(ctx, id, userID)
}

// UpdateCartLineNumber изменяет количество товара в корзине. Количество не может
// превышать остаток на складе; при нулевом или отрицательном количестве позиция
// удаляется, о чём сообщает возвращаемый признак.
func (s *Service) UpdateCartLineNumber(ctx context.Context, id, userID int64, number int) (removed bool, err error) {
	line, err := s.repo.GetCartLine(ctx, id, userID)
	if err != nil {
		return false, err
	}

	if number > line.Product.Stock {
		return false, ErrNumberExceedsStock
	}

	if number <= 0 {
		if err := s.repo.DeleteCartLine(ctx, id, userID); err != nil {
			return false, err
		}
		return true, nil
	}

	return false, s.repo.UpdateCartLineNumber(ctx, id, userID, number)
}

// DeleteCartLine удаляет позицию корзины пользователя.
func (s *Service) DeleteCartLine(ctx context.Context, id, userID int64) error {
	return s.repo.DeleteCartLine(ctx, id, userID)
}
