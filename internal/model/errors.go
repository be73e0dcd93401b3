package model

import "errors"

// Error описывает доменную ошибку маркетплейса с машиночитаемым кодом.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Доменные ошибки. Сравниваются через errors.Is.
var (
	ErrNameEmpty            = newError("NameEmpty", "name is empty")
	ErrNationalIDZero       = newError("NationalIdZero", "national id is zero")
	ErrUserAlreadyExists    = newError("UserAlreadyExists", "user already exists")
	ErrNationalIDConflict   = newError("NationalIdConflict", "national id conflict")
	ErrUserNotFound         = newError("UserNotFound", "user not found")
	ErrRoleConflict         = newError("RoleConflict", "role conflict")
	ErrMissingMutualConsent = newError("MissingMutualConsent", "cancellation requires consent of both parties")
	ErrPermissionDenied     = newError("PermissionDenied", "permission denied")
	ErrOrderNotFound        = newError("OrderNotFound", "order not found")
	ErrProductNotFound      = newError("ProductNotFound", "product not found")
	ErrBuyerNotFound        = newError("BuyerNotFound", "buyer not found")
	ErrInsufficientStock    = newError("InsufficientStock", "insufficient stock")
	ErrNoInventory          = newError("NoInventory", "no inventory")
	ErrPriceZero            = newError("PriceZero", "price is zero")
	ErrDescriptionEmpty     = newError("DescriptionEmpty", "description is empty")
	ErrSellerNotFound       = newError("SellerNotFound", "seller not found")
	ErrListingNotFound      = newError("ListingNotFound", "listing not found")
	ErrInvalidTransition    = newError("InvalidTransition", "order state transition not allowed")
)

// ErrorCode возвращает код доменной ошибки из цепочки err.
func ErrorCode(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
