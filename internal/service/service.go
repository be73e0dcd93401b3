// Package service реализует бизнес-логику маркетплейса: реестр пользователей,
// инвентарь, каталог объявлений и журнал заказов.
//
// Каждая публичная операция выполняется ровно в одной транзакции хранилища:
// либо все её изменения фиксируются, либо ни одно.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/marketplace-ledger/internal/events"
	"github.com/mmeshcher/marketplace-ledger/internal/model"
	"github.com/mmeshcher/marketplace-ledger/internal/repository"
)

// Store описывает контракт хранилища, используемый сервисом.
type Store interface {
	Close() error
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error
}

// EventPublisher публикует доменные события после фиксации транзакции.
type EventPublisher interface {
	Publish(ctx context.Context, evs ...events.Event) error
}

// Service содержит бизнес-логику маркетплейса.
type Service struct {
	store     Store
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewService создаёт новый сервис. При publisher == nil события не публикуются.
func NewService(store Store, publisher EventPublisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context, l ledger) error) error {
	return s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return fn(ctx, ledger{tx: tx})
	})
}

func (s *Service) publish(ctx context.Context, evs ...events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, evs...); err != nil {
		s.logger.Warn("publish events failed", zap.Error(err), zap.Int("count", len(evs)))
	}
}

// CreateUser регистрирует вызывающего пользователя.
func (s *Service) CreateUser(ctx context.Context, caller model.Identity, name string, nationalID uint64, role model.Role) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}

	err := s.inTx(ctx, func(ctx context.Context, l ledger) error {
		return l.register(ctx, name, nationalID, caller, role)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("user registered", zap.String("identity", string(caller)), zap.String("role", string(role)))
	s.publish(ctx, events.New(events.TypeUserRegistered, caller, s.now(), events.UserPayload{Name: name, Role: role}))
	return nil
}

// ChangeRole меняет роль вызывающего пользователя.
func (s *Service) ChangeRole(ctx context.Context, caller model.Identity, role model.Role) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}

	var u model.User
	err := s.inTx(ctx, func(ctx context.Context, l ledger) error {
		var err error
		u, err = l.changeRole(ctx, caller, role)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Debug("role changed", zap.String("identity", string(caller)), zap.String("role", string(role)))
	s.publish(ctx, events.New(events.TypeUserRoleChanged, caller, s.now(), events.UserPayload{Name: u.Name, Role: u.Role}))
	return nil
}

// GetUser возвращает запись вызывающего пользователя.
func (s *Service) GetUser(ctx context.Context, caller model.Identity) (model.User, error) {
	var u model.User
	err := s.inTx(ctx, func(ctx context.Context, l ledger) error {
		var err error
		u, err = l.user(ctx, caller)
		return err
	})
	return u, err
}

// AddProduct добавляет товар в инвентарь вызывающего продавца и возвращает его идентификатор.
func (s *Service) AddProduct(ctx context.Context, caller model.Identity, quantity uint64, name string, category model.Category) (uint64, error) {
	if !category.Valid() {
		return 0, fmt.Errorf("unknown category %q", category)
	}

	var p model.Product
	err := s.inTx(ctx, func(ctx context.Context, l ledger) error {
		var err error
		p, err = l.addProduct(ctx, caller, name, category, quantity)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug("product added", zap.String("identity", string(caller)), zap.Uint64("productID", p.ID))
	s.publish(ctx, events.New(events.TypeProductAdded, caller, s.now(), events.ProductPayload(p)))
	return p.ID, nil
}

// GetInventory возвращает инвентарь вызывающего пользователя.
func (s *Service) GetInventory(ctx context.Context, caller model.Identity) (model.Inventory, error) {
	var inv model.Inventory
	err := s.inTx(ctx, func(ctx context.Context, l ledger) error {
		var err error
		inv, err = l.inventory(ctx, caller)
		return err
	})
	return inv, err
}

// CreateListing публикует товар вызывающего продавца и возвращает индекс объявления.
func (s *Service) CreateListing(ctx context.Context, caller model.Identity, productName, description string, price, initialStock uint64) (uint64, error) {
	at := s.now()

	var (
		index   uint64
		listing model.Listing
	)
	err := s.inTx(ctx, func(ctx context.Context, l ledger) error {
		var err error
		index, listing, err = l.createListing(ctx, caller, productName, description, at, price, initialStock)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug("listing created", zap.String("identity", string(caller)), zap.Uint64("index", index))
	s.publish(ctx, events.New(events.TypeListingCreated, caller, at, events.NewListingPayload(index, listing)))
	return index, nil
}

// UpdateListingDescription меняет описание объявления вызывающего продавца.
func (s *Service) UpdateListingDescription(ctx context.Context, caller model.Identity, index uint64, description string) error {
	return s.updateListing(ctx, caller, index, func(ctx context.Context, l ledger) (model.Listing, error) {
		return l.updateDescription(ctx, caller, index, description)
	})
}

// UpdateListingPrice меняет цену объявления вызывающего продавца.
func (s *Service) UpdateListingPrice(ctx context.Context, caller model.Identity, index uint64, price uint64) error {
	return s.updateListing(ctx, caller, index, func(ctx context.Context, l ledger) (model.Listing, error) {
		return l.updatePrice(ctx, caller, index, price)
	})
}

func (s *Service) updateListing(ctx context.Context, caller model.Identity, index uint64, fn func(ctx context.Context, l ledger) (model.Listing, error)) error {
	var listing model.Listing
	err := s.inTx(ctx, func(ctx context.Context, l ledger) error {
		var err error
		listing, err = fn(ctx, l)
		return err
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.New(events.TypeListingUpdated, caller, s.now(), events.NewListingPayload(index, listing)))
	return nil
}

// GetListing возвращает объявление по индексу.
func (s *Service) GetListing(ctx context.Context, index uint64) (model.Listing, error) {
	var listing model.Listing
	err := s.inTx(ctx, func(ctx context.Context, l ledger) error {
		var err error
		listing, err = l.listing(ctx, index)
		return err
	})
	return listing, err
}

// ListListings возвращает все объявления в порядке публикации.
func (s *Service) ListListings(ctx context.Context) ([]model.Listing, error) {
	var listings []model.Listing
	err := s.inTx(ctx, func(ctx context.Context, l ledger) error {
		var err error
		listings, err = l.tx.Listings(ctx)
		return err
	})
	return listings, err
}

// PlaceOrder оформляет заказ вызывающего покупателя.
func (s *Service) PlaceOrder(ctx context.Context, caller model.Identity, productID, quantity uint64) (model.Order, error) {
	var o model.Order
	err := s.inTx(ctx, func(ctx context.Context, l ledger) error {
		var err error
		o, err = l.placeOrder(ctx, caller, productID, quantity)
		return err
	})
	if err != nil {
		return model.Order{}, err
	}

	s.logger.Debug("order placed",
		zap.Uint64("orderID", o.ID),
		zap.String("buyer", string(o.Buyer)),
		zap.String("seller", string(o.Seller)),
		zap.Uint64("quantity", o.Quantity),
	)
	s.publish(ctx, events.New(events.TypeOrderPlaced, caller, s.now(), events.NewOrderPayload(o)))
	return o, nil
}

// TransitionOrderState переводит заказ в новое состояние от имени вызывающего пользователя.
func (s *Service) TransitionOrderState(ctx context.Context, caller model.Identity, index uint64, state model.OrderState) (model.Order, error) {
	if !state.Valid() {
		return model.Order{}, fmt.Errorf("unknown order state %q", state)
	}

	var o model.Order
	err := s.inTx(ctx, func(ctx context.Context, l ledger) error {
		var err error
		o, err = l.transitionState(ctx, index, caller, state)
		return err
	})
	if err != nil {
		return model.Order{}, err
	}

	s.logger.Debug("order state changed", zap.Uint64("orderID", o.ID), zap.String("state", string(o.State)))
	s.publish(ctx, events.New(events.TypeOrderStateChanged, caller, s.now(), events.NewOrderPayload(o)))
	return o, nil
}

// GetOrder возвращает заказ, если вызывающий пользователь участвует в нём.
func (s *Service) GetOrder(ctx context.Context, caller model.Identity, index uint64) (model.Order, error) {
	var o model.Order
	err := s.inTx(ctx, func(ctx context.Context, l ledger) error {
		var err error
		o, err = l.order(ctx, index)
		if err != nil {
			return err
		}
		if o.Buyer != caller && o.Seller != caller {
			return model.ErrPermissionDenied
		}
		return nil
	})
	return o, err
}

// ListOrders возвращает заказы, в которых вызывающий пользователь выступает покупателем или продавцом.
func (s *Service) ListOrders(ctx context.Context, caller model.Identity) ([]model.Order, error) {
	var orders []model.Order
	err := s.inTx(ctx, func(ctx context.Context, l ledger) error {
		var err error
		orders, err = l.tx.OrdersByParty(ctx, caller)
		return err
	})
	return orders, err
}
