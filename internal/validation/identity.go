// Package validation содержит функции валидации входных данных.
package validation

const maxIdentityLength = 128

// IsValidIdentity проверяет, что идентификатор непустой, не длиннее 128 символов
// и состоит только из латинских букв, цифр, '-' и '_'.
func IsValidIdentity(identity string) bool {
	if identity == "" || len(identity) > maxIdentityLength {
		return false
	}

	for i := 0; i < len(identity); i++ {
		ch := identity[i]
		switch {
		case ch >= 'a' && ch <= 'z':
		case ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9':
		case ch == '-' || ch == '_':
		default:
			return false
		}
	}

	return true
}
