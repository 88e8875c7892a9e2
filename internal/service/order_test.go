package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmeshcher/webshop-system/internal/alipay"
	"github.com/mmeshcher/webshop-system/internal/model"
	"github.com/mmeshcher/webshop-system/internal/repository"
)

func TestAddrSnapshotFormat(t *testing.T) {
	addr := &model.Addr{
		Name:     "Ivan",
		Phone:    "13912345678",
		Province: "Province",
		City:     "City",
		County:   "County",
		Address:  "Street 1",
	}

	got := addrSnapshot(addr)
	want := "ProvinceCityCountyStreet 1  Ivan  13912345678"
	if got != want {
		t.Fatalf("addrSnapshot = %q, want %q", got, want)
	}
}

func TestNewOrderCode(t *testing.T) {
	now := time.Unix(1700000000, 0)

	got := newOrderCode(42, now)
	want := "170000000042"
	if got != want {
		t.Fatalf("newOrderCode = %q, want %q", got, want)
	}

	// Один и тот же пользователь в одну секунду получает одинаковый номер.
	if newOrderCode(42, now) != got {
		t.Fatalf("order code must be deterministic for the same second")
	}
}

func TestSubmitOrder_AddrCheckedFirst(t *testing.T) {
	repo := &stubRepo{addrErr: repository.ErrAddrNotFound}
	svc := NewService(repo, nil)

	_, err := svc.SubmitOrder(context.Background(), 1, 99)
	if !errors.Is(err, repository.ErrAddrNotFound) {
		t.Fatalf("expected ErrAddrNotFound, got %v", err)
	}
	if repo.createOrderCalls != 0 {
		t.Fatalf("order must not be created with an invalid address")
	}
}

func TestSubmitOrder_PropagatesEmptyCart(t *testing.T) {
	repo := &stubRepo{
		addr:           &model.Addr{ID: 1, UserID: 1},
		createOrderErr: repository.ErrEmptyCart,
	}
	svc := NewService(repo, nil)

	_, err := svc.SubmitOrder(context.Background(), 1, 1)
	if !errors.Is(err, repository.ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestGetOrder_NotOwner(t *testing.T) {
	repo := &stubRepo{order: &model.Order{ID: 5, UserID: 2}}
	svc := NewService(repo, nil)

	_, err := svc.GetOrder(context.Background(), 5, 1)
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestCloseOrder_NotOwner(t *testing.T) {
	repo := &stubRepo{order: &model.Order{ID: 5, UserID: 2, Status: model.OrderStatusUnpaid}}
	svc := NewService(repo, nil)

	err := svc.CloseOrder(context.Background(), 5, 1)
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestCloseOrder_PropagatesNotCancellable(t *testing.T) {
	repo := &stubRepo{
		order:         &model.Order{ID: 5, UserID: 1, Status: model.OrderStatusPaid},
		closeOrderErr: repository.ErrOrderNotCancellable,
	}
	svc := NewService(repo, nil)

	err := svc.CloseOrder(context.Background(), 5, 1)
	if !errors.Is(err, repository.ErrOrderNotCancellable) {
		t.Fatalf("expected ErrOrderNotCancellable, got %v", err)
	}
}

func TestSubmitComments_StatusGuard(t *testing.T) {
	repo := &stubRepo{order: &model.Order{ID: 5, UserID: 1, Status: model.OrderStatusPaid}}
	svc := NewService(repo, nil)

	err := svc.SubmitComments(context.Background(), 1, 5, []model.Comment{{ProductID: 2}})
	if !errors.Is(err, repository.ErrOrderNotAwaitingComment) {
		t.Fatalf("expected ErrOrderNotAwaitingComment, got %v", err)
	}
	if repo.createCommentsCalls != 0 {
		t.Fatalf("comments must not be created for a wrong order status")
	}
}

func TestCreatePayment_NotOwnerHidesOrder(t *testing.T) {
	repo := &stubRepo{order: &model.Order{ID: 5, UserID: 2, OrderCode: "170000000042"}}
	svc := NewService(repo, &stubGateway{payURL: "http://pay"})

	_, err := svc.CreatePayment(context.Background(), 1, 5)
	if !errors.Is(err, repository.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for foreign order, got %v", err)
	}
}

func TestPollPayment_NotAwaitingPayment(t *testing.T) {
	repo := &stubRepo{order: &model.Order{ID: 5, UserID: 1, Status: model.OrderStatusPaid}}
	svc := NewService(repo, &stubGateway{})

	_, err := svc.PollPayment(context.Background(), "170000000042")
	if !errors.Is(err, ErrOrderNotAwaitingPayment) {
		t.Fatalf("expected ErrOrderNotAwaitingPayment, got %v", err)
	}
}

func TestPollPayment_SuccessMarksPaid(t *testing.T) {
	repo := &stubRepo{
		order:           &model.Order{ID: 5, UserID: 1, Status: model.OrderStatusUnpaid, OrderCode: "170000000042"},
		markPaidApplied: true,
	}
	gateway := &stubGateway{
		trade: &alipay.TradeResult{
			OutTradeNo:  "170000000042",
			TradeNo:     "trade-1",
			TradeStatus: alipay.TradeStatusSuccess,
		},
	}
	svc := NewService(repo, gateway)

	result, err := svc.PollPayment(context.Background(), "170000000042")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TradeStatus != alipay.TradeStatusSuccess {
		t.Fatalf("unexpected trade status %q", result.TradeStatus)
	}
	if repo.markPaidCalls != 1 {
		t.Fatalf("expected one MarkOrderPaid call, got %d", repo.markPaidCalls)
	}
}

func TestPollPayment_WaitingDoesNotMarkPaid(t *testing.T) {
	repo := &stubRepo{
		order: &model.Order{ID: 5, UserID: 1, Status: model.OrderStatusUnpaid, OrderCode: "170000000042"},
	}
	gateway := &stubGateway{
		trade: &alipay.TradeResult{
			OutTradeNo:  "170000000042",
			TradeStatus: alipay.TradeStatusWaitBuyerPay,
		},
	}
	svc := NewService(repo, gateway)

	if _, err := svc.PollPayment(context.Background(), "170000000042"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.markPaidCalls != 0 {
		t.Fatalf("unpaid trade must not mark the order as paid")
	}
}

func TestPollPayment_TradeNotFoundNotRetried(t *testing.T) {
	repo := &stubRepo{
		order: &model.Order{ID: 5, UserID: 1, Status: model.OrderStatusUnpaid, OrderCode: "170000000042"},
	}
	svc := NewService(repo, &stubGateway{tradeErr: alipay.ErrTradeNotFound})

	_, err := svc.PollPayment(context.Background(), "170000000042")
	if !errors.Is(err, alipay.ErrTradeNotFound) {
		t.Fatalf("expected ErrTradeNotFound, got %v", err)
	}
}

func TestApplySettlement_IgnoresNonSuccess(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, &stubGateway{})

	applied, err := svc.ApplySettlement(context.Background(), "170000000042", alipay.TradeStatusWaitBuyerPay, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied {
		t.Fatalf("non-success status must not be applied")
	}
	if repo.markPaidCalls != 0 {
		t.Fatalf("MarkOrderPaid must not be called for non-success status")
	}
}

func TestApplySettlement_SuccessApplied(t *testing.T) {
	repo := &stubRepo{markPaidApplied: true}
	svc := NewService(repo, &stubGateway{})

	applied, err := svc.ApplySettlement(context.Background(), "170000000042", alipay.TradeStatusSuccess, "trade-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !applied {
		t.Fatalf("success status must be applied to an unpaid order")
	}
}
