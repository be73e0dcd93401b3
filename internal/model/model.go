// Package model содержит доменные сущности маркетплейса.
package model

import (
	"slices"
	"time"
)

// Identity задаёт непрозрачный идентификатор вызывающей стороны, выданный снаружи.
type Identity string

// Role описывает роль пользователя в маркетплейсе.
type Role string

const (
	RoleBuyer          Role = "buyer"
	RoleSeller         Role = "seller"
	RoleBuyerAndSeller Role = "buyer_and_seller"
)

// Valid сообщает, является ли значение одной из известных ролей.
func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleSeller, RoleBuyerAndSeller:
		return true
	}
	return false
}

// CanSell сообщает, даёт ли роль право владеть инвентарём и публиковать объявления.
func (r Role) CanSell() bool {
	switch r {
	case RoleSeller, RoleBuyerAndSeller:
		return true
	default:
		return false
	}
}

// User представляет зарегистрированного пользователя маркетплейса.
type User struct {
	Name       string
	NationalID uint64
	Identity   Identity
	Role       Role
	// Ratings хранится как есть, агрегация не выполняется.
	Ratings []uint8
}

// Clone возвращает независимую копию пользователя.
func (u User) Clone() User {
	u.Ratings = slices.Clone(u.Ratings)
	return u
}

// Category описывает категорию товара.
type Category string

const (
	CategoryCleaning    Category = "cleaning"
	CategoryHome        Category = "home"
	CategorySport       Category = "sport"
	CategoryElectronics Category = "electronics"
)

// Valid сообщает, является ли значение одной из известных категорий.
func (c Category) Valid() bool {
	switch c {
	case CategoryCleaning, CategoryHome, CategorySport, CategoryElectronics:
		return true
	}
	return false
}

// Product описывает товар в инвентаре продавца.
type Product struct {
	ID       uint64
	Name     string
	Category Category
	Quantity uint64
}

// Inventory содержит товары одного продавца в порядке добавления.
type Inventory struct {
	Products []Product
}

// Clone возвращает независимую копию инвентаря.
func (inv Inventory) Clone() Inventory {
	return Inventory{Products: slices.Clone(inv.Products)}
}

// NextProductID возвращает идентификатор для следующего добавляемого товара.
// Товары не удаляются, поэтому длина списка совпадает с последним выданным id + 1.
func (inv Inventory) NextProductID() uint64 {
	return uint64(len(inv.Products))
}

// ProductByID возвращает позицию товара с указанным идентификатором.
func (inv Inventory) ProductByID(id uint64) (int, bool) {
	for i, p := range inv.Products {
		if p.ID == id {
			return i, true
		}
	}
	return -1, false
}

// ProductByName возвращает позицию первого товара с указанным названием.
func (inv Inventory) ProductByName(name string) (int, bool) {
	for i, p := range inv.Products {
		if p.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Listing описывает публикацию товара в каталоге.
type Listing struct {
	Seller Identity
	// Product хранит снимок товара на момент публикации, не связанный с инвентарём.
	Product     Product
	Description string
	CreatedAt   time.Time
	// Price хранится в минимальных денежных единицах.
	Price     uint64
	Available uint64
}

// OrderState описывает состояние заказа.
type OrderState string

const (
	OrderStatePending   OrderState = "pending"
	OrderStateShipped   OrderState = "shipped"
	OrderStateReceived  OrderState = "received"
	OrderStateCancelled OrderState = "cancelled"
)

// Valid сообщает, является ли значение одним из известных состояний.
func (s OrderState) Valid() bool {
	switch s {
	case OrderStatePending, OrderStateShipped, OrderStateReceived, OrderStateCancelled:
		return true
	}
	return false
}

// Order описывает заказ покупателя по объявлению.
type Order struct {
	ID        uint64
	Buyer     Identity
	Seller    Identity
	ProductID uint64
	Quantity  uint64
	State     OrderState
}
