package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/mmeshcher/marketplace-ledger/internal/model"
)

// MemoryRepository хранит данные маркетплейса в памяти процесса.
// Транзакции выполняются строго последовательно под одним мьютексом.
type MemoryRepository struct {
	mu          sync.Mutex
	users       map[model.Identity]model.User
	inventories map[model.Identity]model.Inventory
	listings    []model.Listing
	orders      []model.Order
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:       make(map[model.Identity]model.User),
		inventories: make(map[model.Identity]model.Inventory),
	}
}

// Close ничего не делает, нужен для совместимости с другими хранилищами.
func (r *MemoryRepository) Close() error {
	return nil
}

// WithinTx выполняет fn в транзакции. Изменения применяются только если fn вернула nil.
func (r *MemoryRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memoryTx{
		repo:        r,
		users:       make(map[model.Identity]model.User),
		inventories: make(map[model.Identity]model.Inventory),
		listings:    make(map[uint64]model.Listing),
		orders:      make(map[uint64]model.Order),
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	tx.commit()
	return nil
}

// memoryTx накапливает изменения поверх зафиксированного состояния.
type memoryTx struct {
	repo *MemoryRepository

	users       map[model.Identity]model.User
	inventories map[model.Identity]model.Inventory
	listings    map[uint64]model.Listing
	newListings []model.Listing
	orders      map[uint64]model.Order
	newOrders   []model.Order
}

func (t *memoryTx) commit() {
	for id, u := range t.users {
		t.repo.users[id] = u
	}
	for id, inv := range t.inventories {
		t.repo.inventories[id] = inv
	}
	for i, l := range t.listings {
		t.repo.listings[i] = l
	}
	t.repo.listings = append(t.repo.listings, t.newListings...)
	for i, o := range t.orders {
		t.repo.orders[i] = o
	}
	t.repo.orders = append(t.repo.orders, t.newOrders...)
}

func (t *memoryTx) User(_ context.Context, id model.Identity) (model.User, bool, error) {
	if u, ok := t.users[id]; ok {
		return u.Clone(), true, nil
	}
	u, ok := t.repo.users[id]
	return u.Clone(), ok, nil
}

func (t *memoryTx) UserByNationalID(_ context.Context, nationalID uint64) (model.User, bool, error) {
	for _, u := range t.users {
		if u.NationalID == nationalID {
			return u.Clone(), true, nil
		}
	}
	for id, u := range t.repo.users {
		if _, staged := t.users[id]; staged {
			continue
		}
		if u.NationalID == nationalID {
			return u.Clone(), true, nil
		}
	}
	return model.User{}, false, nil
}

func (t *memoryTx) PutUser(_ context.Context, u model.User) error {
	t.users[u.Identity] = u.Clone()
	return nil
}

func (t *memoryTx) Inventory(_ context.Context, id model.Identity) (model.Inventory, bool, error) {
	if inv, ok := t.inventories[id]; ok {
		return inv.Clone(), true, nil
	}
	inv, ok := t.repo.inventories[id]
	return inv.Clone(), ok, nil
}

func (t *memoryTx) PutInventory(_ context.Context, id model.Identity, inv model.Inventory) error {
	t.inventories[id] = inv.Clone()
	return nil
}

func (t *memoryTx) Listing(_ context.Context, index uint64) (model.Listing, bool, error) {
	base := uint64(len(t.repo.listings))
	if index < base {
		if l, ok := t.listings[index]; ok {
			return l, true, nil
		}
		return t.repo.listings[index], true, nil
	}
	if index-base < uint64(len(t.newListings)) {
		return t.newListings[index-base], true, nil
	}
	return model.Listing{}, false, nil
}

func (t *memoryTx) SetListing(_ context.Context, index uint64, l model.Listing) error {
	base := uint64(len(t.repo.listings))
	switch {
	case index < base:
		t.listings[index] = l
	case index-base < uint64(len(t.newListings)):
		t.newListings[index-base] = l
	default:
		return fmt.Errorf("set listing %d: index out of range", index)
	}
	return nil
}

func (t *memoryTx) PushListing(_ context.Context, l model.Listing) (uint64, error) {
	index := uint64(len(t.repo.listings) + len(t.newListings))
	t.newListings = append(t.newListings, l)
	return index, nil
}

func (t *memoryTx) ListingCount(_ context.Context) (uint64, error) {
	return uint64(len(t.repo.listings) + len(t.newListings)), nil
}

func (t *memoryTx) FindListingByProduct(ctx context.Context, productID uint64) (uint64, model.Listing, bool, error) {
	count, _ := t.ListingCount(ctx)
	for i := uint64(0); i < count; i++ {
		l, _, _ := t.Listing(ctx, i)
		if l.Product.ID == productID {
			return i, l, true, nil
		}
	}
	return 0, model.Listing{}, false, nil
}

func (t *memoryTx) Listings(ctx context.Context) ([]model.Listing, error) {
	count, _ := t.ListingCount(ctx)
	res := make([]model.Listing, 0, count)
	for i := uint64(0); i < count; i++ {
		l, _, _ := t.Listing(ctx, i)
		res = append(res, l)
	}
	return res, nil
}

func (t *memoryTx) Order(_ context.Context, index uint64) (model.Order, bool, error) {
	base := uint64(len(t.repo.orders))
	if index < base {
		if o, ok := t.orders[index]; ok {
			return o, true, nil
		}
		return t.repo.orders[index], true, nil
	}
	if index-base < uint64(len(t.newOrders)) {
		return t.newOrders[index-base], true, nil
	}
	return model.Order{}, false, nil
}

func (t *memoryTx) SetOrder(_ context.Context, index uint64, o model.Order) error {
	base := uint64(len(t.repo.orders))
	switch {
	case index < base:
		t.orders[index] = o
	case index-base < uint64(len(t.newOrders)):
		t.newOrders[index-base] = o
	default:
		return fmt.Errorf("set order %d: index out of range", index)
	}
	return nil
}

func (t *memoryTx) PushOrder(_ context.Context, o model.Order) (uint64, error) {
	index := uint64(len(t.repo.orders) + len(t.newOrders))
	t.newOrders = append(t.newOrders, o)
	return index, nil
}

func (t *memoryTx) OrderCount(_ context.Context) (uint64, error) {
	return uint64(len(t.repo.orders) + len(t.newOrders)), nil
}

func (t *memoryTx) OrdersByParty(ctx context.Context, id model.Identity) ([]model.Order, error) {
	count, _ := t.OrderCount(ctx)
	var res []model.Order
	for i := uint64(0); i < count; i++ {
		o, _, _ := t.Order(ctx, i)
		if o.Buyer == id || o.Seller == id {
			res = append(res, o)
		}
	}
	return res, nil
}
