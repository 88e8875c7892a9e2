package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/webshop-system/internal/alipay"
	"github.com/mmeshcher/webshop-system/internal/model"
	"github.com/mmeshcher/webshop-system/internal/repository"
)

// SubmitOrder оформляет заказ из отмеченных позиций корзины пользователя.
// Адрес доставки фиксируется строкой, номер заказа выводится из текущего
// времени и идентификатора пользователя; все изменения применяются атомарно.
func (s *Service) SubmitOrder(ctx context.Context, userID, addrID int64) (*model.Order, error) {
	addr, err := s.repo.GetAddr(ctx, addrID, userID)
	if err != nil {
		return nil, err
	}

	return s.repo.CreateOrder(ctx, userID, addrSnapshot(addr), newOrderCode(userID, time.Now()))
}

// addrSnapshot формирует неизменяемый снимок адреса доставки для заказа.
func addrSnapshot(a *model.Addr) string {
	return fmt.Sprintf("%s%s%s%s  %s  %s", a.Province, a.City, a.County, a.Address, a.Name, a.Phone)
}

// newOrderCode формирует номер заказа из unix-времени с секундной точностью и
// идентификатора пользователя. Два заказа одного пользователя в одну секунду
// дают одинаковый номер; коллизию перехватывает уникальный индекс в БД.
func newOrderCode(userID int64, now time.Time) string {
	return strconv.FormatInt(now.Unix(), 10) + strconv.FormatInt(userID, 10)
}

// GetOrders возвращает заказы пользователя.
func (s *Service) GetOrders(ctx context.Context, userID int64, status *model.OrderStatus) ([]model.Order, error) {
	return s.repo.GetOrdersByUser(ctx, userID, status)
}

// GetOrder возвращает заказ пользователя вместе с позициями.
func (s *Service) GetOrder(ctx context.Context, orderID, userID int64) (*model.Order, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrNotOwner
	}

	items, err := s.repo.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

// CloseOrder закрывает неоплаченный заказ пользователя.
func (s *Service) CloseOrder(ctx context.Context, orderID, userID int64) error {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.UserID != userID {
		return ErrNotOwner
	}

	return s.repo.CloseOrder(ctx, orderID)
}

// SubmitComments сохраняет отзывы о товарах заказа и завершает заказ.
// Заказ должен принадлежать пользователю и ожидать отзыва; пакет применяется
// целиком либо не применяется вовсе.
func (s *Service) SubmitComments(ctx context.Context, userID, orderID int64, comments []model.Comment) error {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.UserID != userID {
		return ErrNotOwner
	}
	if order.Status != model.OrderStatusAwaitingComment {
		return repository.ErrOrderNotAwaitingComment
	}

	return s.repo.CreateComments(ctx, orderID, userID, comments)
}

// GetComments возвращает отзывы по товару или заказу.
func (s *Service) GetComments(ctx context.Context, productID, orderID *int64) ([]model.Comment, error) {
	return s.repo.GetComments(ctx, productID, orderID)
}

// CreatePayment возвращает адрес платёжной страницы для заказа пользователя.
// Состояние заказа не изменяется.
func (s *Service) CreatePayment(ctx context.Context, userID, orderID int64) (string, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.UserID != userID {
		return "", repository.ErrOrderNotFound
	}

	return s.gateway.PayURL(order.OrderCode, order.Amount), nil
}

// PollPayment запрашивает у шлюза результат оплаты заказа и применяет его.
// Успешный результат переводит заказ в статус «оплачен»; повторный опрос уже
// оплаченного заказа ничего не меняет.
func (s *Service) PollPayment(ctx context.Context, orderCode string) (*alipay.TradeResult, error) {
	order, err := s.repo.GetOrderByCode(ctx, orderCode)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderStatusUnpaid {
		return nil, ErrOrderNotAwaitingPayment
	}

	var result *alipay.TradeResult
	backoff := retry.WithMaxRetries(4, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var qErr error
		result, qErr = s.gateway.QueryTrade(ctx, orderCode)
		if qErr != nil {
			if errors.Is(qErr, alipay.ErrTradeNotFound) {
				return qErr
			}
			return retry.RetryableError(qErr)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query trade: %w", err)
	}

	if result.TradeStatus == alipay.TradeStatusSuccess {
		if _, err := s.repo.MarkOrderPaid(ctx, orderCode, result.TradeNo, time.Now()); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// ApplySettlement применяет результат оплаты, сообщённый шлюзом через callback.
// Идемпотентность обеспечивается защитой по статусу: повторное применение
// успешного результата ничего не меняет.
func (s *Service) ApplySettlement(ctx context.Context, orderCode, tradeStatus, tradeNo string) (bool, error) {
	if tradeStatus != alipay.TradeStatusSuccess {
		return false, nil
	}
	return s.repo.MarkOrderPaid(ctx, orderCode, tradeNo, time.Now())
}

const (
	settlementPollInterval = 30 * time.Second
	settlementPollGrace    = time.Minute
	settlementPollBatch    = 100
)

// StartSettlementUpdates запускает фоновую сверку неоплаченных заказов с
// платёжным шлюзом.
func (s *Service) StartSettlementUpdates(ctx context.Context) {
	if s.gateway == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(settlementPollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.reconcileSettlements(ctx)
			}
		}
	}()
}

func (s *Service) reconcileSettlements(ctx context.Context) {
	orders, err := s.repo.GetUnpaidOrdersBefore(ctx, time.Now().Add(-settlementPollGrace), settlementPollBatch)
	if err != nil {
		return
	}

	for _, o := range orders {
		result, err := s.gateway.QueryTrade(ctx, o.OrderCode)
		if err != nil || result == nil {
			continue
		}
		if result.TradeStatus == alipay.TradeStatusSuccess {
			_, _ = s.repo.MarkOrderPaid(ctx, o.OrderCode, result.TradeNo, time.Now())
		}
	}
}
