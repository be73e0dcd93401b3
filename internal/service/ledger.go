package service

import "github.com/mmeshcher/marketplace-ledger/internal/repository"

// ledger объединяет реестр пользователей, инвентарь, каталог и журнал заказов
// поверх одной транзакции хранилища. Экземпляр живёт ровно одну транзакцию.
type ledger struct {
	tx repository.Tx
}
