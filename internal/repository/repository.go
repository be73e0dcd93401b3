// Package repository содержит реализации хранилища маркетплейса.
package repository

import (
	"context"

	"github.com/mmeshcher/marketplace-ledger/internal/model"
)

// Tx описывает операции хранилища внутри одной транзакции.
// Ключевые коллекции поддерживают get/set, последовательности ещё и push/len.
// Все возвращаемые значения являются копиями.
type Tx interface {
	User(ctx context.Context, id model.Identity) (model.User, bool, error)
	UserByNationalID(ctx context.Context, nationalID uint64) (model.User, bool, error)
	PutUser(ctx context.Context, u model.User) error

	Inventory(ctx context.Context, id model.Identity) (model.Inventory, bool, error)
	PutInventory(ctx context.Context, id model.Identity, inv model.Inventory) error

	Listing(ctx context.Context, index uint64) (model.Listing, bool, error)
	SetListing(ctx context.Context, index uint64, l model.Listing) error
	PushListing(ctx context.Context, l model.Listing) (uint64, error)
	ListingCount(ctx context.Context) (uint64, error)
	// FindListingByProduct возвращает объявление с наименьшим индексом для товара productID.
	FindListingByProduct(ctx context.Context, productID uint64) (uint64, model.Listing, bool, error)
	Listings(ctx context.Context) ([]model.Listing, error)

	Order(ctx context.Context, index uint64) (model.Order, bool, error)
	SetOrder(ctx context.Context, index uint64, o model.Order) error
	PushOrder(ctx context.Context, o model.Order) (uint64, error)
	OrderCount(ctx context.Context) (uint64, error)
	// OrdersByParty возвращает заказы, где id выступает покупателем или продавцом.
	OrdersByParty(ctx context.Context, id model.Identity) ([]model.Order, error)
}
