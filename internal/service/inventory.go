package service

import (
	"context"
	"fmt"

	"github.com/mmeshcher/marketplace-ledger/internal/model"
)

// allocateInventory создаёт пустой инвентарь, если его ещё нет. Существующий не трогает.
func (l ledger) allocateInventory(ctx context.Context, id model.Identity) error {
	_, ok, err := l.tx.Inventory(ctx, id)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return l.tx.PutInventory(ctx, id, model.Inventory{})
}

// sellerInventory возвращает инвентарь пользователя, которому разрешено продавать.
func (l ledger) sellerInventory(ctx context.Context, id model.Identity) (model.Inventory, error) {
	u, err := l.user(ctx, id)
	if err != nil {
		return model.Inventory{}, err
	}
	if !u.Role.CanSell() {
		return model.Inventory{}, model.ErrPermissionDenied
	}
	return l.inventory(ctx, id)
}

func (l ledger) inventory(ctx context.Context, id model.Identity) (model.Inventory, error) {
	inv, ok, err := l.tx.Inventory(ctx, id)
	if err != nil {
		return model.Inventory{}, err
	}
	if !ok {
		return model.Inventory{}, model.ErrNoInventory
	}
	return inv, nil
}

func (l ledger) addProduct(ctx context.Context, id model.Identity, name string, category model.Category, quantity uint64) (model.Product, error) {
	inv, err := l.sellerInventory(ctx, id)
	if err != nil {
		return model.Product{}, err
	}

	p := model.Product{
		ID:       inv.NextProductID(),
		Name:     name,
		Category: category,
		Quantity: quantity,
	}
	inv.Products = append(inv.Products, p)

	if err := l.tx.PutInventory(ctx, id, inv); err != nil {
		return model.Product{}, err
	}
	return p, nil
}

func (l ledger) deductStock(ctx context.Context, id model.Identity, productID, quantity uint64) error {
	inv, err := l.inventory(ctx, id)
	if err != nil {
		return err
	}

	i, ok := inv.ProductByID(productID)
	if !ok {
		return fmt.Errorf("%w: product %d in inventory of %s", model.ErrProductNotFound, productID, id)
	}
	if quantity > inv.Products[i].Quantity {
		return fmt.Errorf("%w: product %d has %d, requested %d",
			model.ErrInsufficientStock, productID, inv.Products[i].Quantity, quantity)
	}

	inv.Products[i].Quantity -= quantity
	return l.tx.PutInventory(ctx, id, inv)
}
