package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mmeshcher/marketplace-ledger/internal/model"
)

// createListing не проверяет цену и описание: они валидируются только при изменении.
func (l ledger) createListing(ctx context.Context, seller model.Identity, productName, description string, at time.Time, price, initialStock uint64) (uint64, model.Listing, error) {
	inv, err := l.sellerInventory(ctx, seller)
	if err != nil {
		return 0, model.Listing{}, err
	}

	i, ok := inv.ProductByName(productName)
	if !ok {
		return 0, model.Listing{}, fmt.Errorf("%w: %q", model.ErrProductNotFound, productName)
	}

	snapshot := inv.Products[i]
	if initialStock > snapshot.Quantity {
		return 0, model.Listing{}, fmt.Errorf("%w: product %q has %d, listing %d",
			model.ErrInsufficientStock, productName, snapshot.Quantity, initialStock)
	}

	listing := model.Listing{
		Seller:      seller,
		Product:     snapshot,
		Description: description,
		CreatedAt:   at,
		Price:       price,
		Available:   initialStock,
	}

	index, err := l.tx.PushListing(ctx, listing)
	if err != nil {
		return 0, model.Listing{}, err
	}
	return index, listing, nil
}

func (l ledger) listing(ctx context.Context, index uint64) (model.Listing, error) {
	listing, ok, err := l.tx.Listing(ctx, index)
	if err != nil {
		return model.Listing{}, err
	}
	if !ok {
		return model.Listing{}, model.ErrListingNotFound
	}
	return listing, nil
}

func (l ledger) ownListing(ctx context.Context, caller model.Identity, index uint64) (model.Listing, error) {
	listing, err := l.listing(ctx, index)
	if err != nil {
		return model.Listing{}, err
	}
	if listing.Seller != caller {
		return model.Listing{}, model.ErrPermissionDenied
	}
	return listing, nil
}

func (l ledger) updateDescription(ctx context.Context, caller model.Identity, index uint64, description string) (model.Listing, error) {
	listing, err := l.ownListing(ctx, caller, index)
	if err != nil {
		return model.Listing{}, err
	}
	if description == "" {
		return model.Listing{}, model.ErrDescriptionEmpty
	}

	listing.Description = description
	if err := l.tx.SetListing(ctx, index, listing); err != nil {
		return model.Listing{}, err
	}
	return listing, nil
}

func (l ledger) updatePrice(ctx context.Context, caller model.Identity, index uint64, price uint64) (model.Listing, error) {
	listing, err := l.ownListing(ctx, caller, index)
	if err != nil {
		return model.Listing{}, err
	}
	if price == 0 {
		return model.Listing{}, model.ErrPriceZero
	}

	listing.Price = price
	if err := l.tx.SetListing(ctx, index, listing); err != nil {
		return model.Listing{}, err
	}
	return listing, nil
}

// reserve списывает quantity с доступного остатка объявления.
func (l ledger) reserve(ctx context.Context, index uint64, quantity uint64) (model.Listing, error) {
	listing, err := l.listing(ctx, index)
	if err != nil {
		return model.Listing{}, err
	}
	if quantity > listing.Available {
		return model.Listing{}, fmt.Errorf("%w: listing %d has %d, requested %d",
			model.ErrInsufficientStock, index, listing.Available, quantity)
	}

	listing.Available -= quantity
	if err := l.tx.SetListing(ctx, index, listing); err != nil {
		return model.Listing{}, err
	}
	return listing, nil
}
