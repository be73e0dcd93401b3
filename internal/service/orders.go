package service

import (
	"context"
	"fmt"

	"github.com/mmeshcher/marketplace-ledger/internal/model"
)

// transitions перечисляет допустимые переходы по текущему состоянию заказа.
// Из Received и Cancelled переходов нет.
var transitions = map[model.OrderState][]model.OrderState{
	model.OrderStatePending: {model.OrderStateShipped, model.OrderStateCancelled},
	model.OrderStateShipped: {model.OrderStateReceived, model.OrderStateCancelled},
}

func canTransition(from, to model.OrderState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// placeOrder резервирует остаток объявления, списывает товар из инвентаря продавца
// и добавляет заказ. Любая ошибка прерывает транзакцию целиком, поэтому при
// неудачном списании резерв объявления не сохраняется.
func (l ledger) placeOrder(ctx context.Context, buyer model.Identity, productID, quantity uint64) (model.Order, error) {
	if _, ok, err := l.tx.User(ctx, buyer); err != nil {
		return model.Order{}, err
	} else if !ok {
		return model.Order{}, model.ErrBuyerNotFound
	}

	if quantity == 0 {
		return model.Order{}, fmt.Errorf("%w: quantity must be positive", model.ErrInsufficientStock)
	}

	index, listing, ok, err := l.tx.FindListingByProduct(ctx, productID)
	if err != nil {
		return model.Order{}, err
	}
	if !ok {
		return model.Order{}, fmt.Errorf("%w: no listing for product %d", model.ErrProductNotFound, productID)
	}
	if quantity > listing.Available {
		return model.Order{}, fmt.Errorf("%w: listing %d has %d, requested %d",
			model.ErrInsufficientStock, index, listing.Available, quantity)
	}

	if _, err := l.reserve(ctx, index, quantity); err != nil {
		return model.Order{}, err
	}
	if err := l.deductStock(ctx, listing.Seller, productID, quantity); err != nil {
		return model.Order{}, err
	}

	id, err := l.tx.OrderCount(ctx)
	if err != nil {
		return model.Order{}, err
	}

	o := model.Order{
		ID:        id,
		Buyer:     buyer,
		Seller:    listing.Seller,
		ProductID: productID,
		Quantity:  quantity,
		State:     model.OrderStatePending,
	}

	pushed, err := l.tx.PushOrder(ctx, o)
	if err != nil {
		return model.Order{}, err
	}
	if pushed != id {
		return model.Order{}, fmt.Errorf("order appended at %d, expected %d", pushed, id)
	}
	return o, nil
}

func (l ledger) order(ctx context.Context, index uint64) (model.Order, error) {
	o, ok, err := l.tx.Order(ctx, index)
	if err != nil {
		return model.Order{}, err
	}
	if !ok {
		return model.Order{}, model.ErrOrderNotFound
	}
	return o, nil
}

// authorizeTransition проверяет, может ли пользователь с ролью actor.Role
// перевести заказ o в состояние to.
func authorizeTransition(actor model.User, o model.Order, to model.OrderState) error {
	switch actor.Role {
	case model.RoleBuyer:
		if to != model.OrderStateShipped {
			return model.ErrPermissionDenied
		}
		if o.Buyer != actor.Identity {
			return model.ErrPermissionDenied
		}
	case model.RoleSeller:
		switch to {
		case model.OrderStateReceived:
		case model.OrderStateCancelled:
			// Отмена требует согласия обеих сторон, которого здесь нет.
			return model.ErrMissingMutualConsent
		default:
			return model.ErrPermissionDenied
		}
		if o.Seller != actor.Identity {
			return model.ErrPermissionDenied
		}
	default:
		return model.ErrPermissionDenied
	}
	return nil
}

func (l ledger) transitionState(ctx context.Context, index uint64, actorID model.Identity, to model.OrderState) (model.Order, error) {
	actor, err := l.user(ctx, actorID)
	if err != nil {
		return model.Order{}, err
	}

	o, err := l.order(ctx, index)
	if err != nil {
		return model.Order{}, err
	}

	if err := authorizeTransition(actor, o, to); err != nil {
		return model.Order{}, err
	}
	if !canTransition(o.State, to) {
		return model.Order{}, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, o.State, to)
	}

	o.State = to
	if err := l.tx.SetOrder(ctx, index, o); err != nil {
		return model.Order{}, err
	}
	return o, nil
}
