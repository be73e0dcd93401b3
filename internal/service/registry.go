package service

import (
	"context"
	"fmt"

	"github.com/mmeshcher/marketplace-ledger/internal/model"
)

func (l ledger) register(ctx context.Context, name string, nationalID uint64, id model.Identity, role model.Role) error {
	if name == "" {
		return model.ErrNameEmpty
	}
	if nationalID == 0 {
		return model.ErrNationalIDZero
	}

	existing, ok, err := l.tx.User(ctx, id)
	if err != nil {
		return err
	}
	if ok {
		if existing.NationalID != nationalID {
			return model.ErrNationalIDConflict
		}
		return model.ErrUserAlreadyExists
	}

	if _, taken, err := l.tx.UserByNationalID(ctx, nationalID); err != nil {
		return err
	} else if taken {
		return fmt.Errorf("%w: national id %d belongs to another user", model.ErrNationalIDConflict, nationalID)
	}

	err = l.tx.PutUser(ctx, model.User{
		Name:       name,
		NationalID: nationalID,
		Identity:   id,
		Role:       role,
	})
	if err != nil {
		return err
	}

	if role.CanSell() {
		return l.allocateInventory(ctx, id)
	}
	return nil
}

// changeRole допускает понижение до покупателя: инвентарь при этом сохраняется.
func (l ledger) changeRole(ctx context.Context, id model.Identity, role model.Role) (model.User, error) {
	u, err := l.user(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	if u.Role == role {
		return model.User{}, model.ErrRoleConflict
	}

	u.Role = role
	if role.CanSell() {
		if err := l.allocateInventory(ctx, id); err != nil {
			return model.User{}, err
		}
	}

	if err := l.tx.PutUser(ctx, u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

func (l ledger) user(ctx context.Context, id model.Identity) (model.User, error) {
	u, ok, err := l.tx.User(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}
