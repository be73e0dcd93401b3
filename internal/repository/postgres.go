package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/marketplace-ledger/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ledgerLockKey задаёт ключ advisory-блокировки, сериализующей все транзакции маркетплейса.
const ledgerLockKey int64 = 0x6d61726b6574

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	delays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool:   pool,
		delays: []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(r.delays); i++ {
		err = fn()
		if err == nil || !isRetryable(err) || i == len(r.delays) {
			return err
		}

		timer := time.NewTimer(r.delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// WithinTx выполняет fn в транзакции под глобальной advisory-блокировкой.
// Любая ошибка fn откатывает транзакцию; временные ошибки БД приводят к повтору всей транзакции.
func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ledgerLockKey); err != nil {
			return fmt.Errorf("acquire ledger lock: %w", err)
		}

		if err := fn(ctx, &pgTx{tx: tx}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

type pgTx struct {
	tx pgx.Tx
}

const userColumns = `identity, name, national_id, role, ratings`

func scanUser(row pgx.Row) (model.User, error) {
	var (
		u          model.User
		identity   string
		nationalID int64
		role       string
		ratings    []int16
	)
	if err := row.Scan(&identity, &u.Name, &nationalID, &role, &ratings); err != nil {
		return model.User{}, err
	}

	u.Identity = model.Identity(identity)
	u.NationalID = uint64(nationalID)
	u.Role = model.Role(role)
	if len(ratings) > 0 {
		u.Ratings = make([]uint8, len(ratings))
		for i, v := range ratings {
			u.Ratings[i] = uint8(v)
		}
	}
	return u, nil
}

func (t *pgTx) User(ctx context.Context, id model.Identity) (model.User, bool, error) {
	u, err := scanUser(t.tx.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE identity = $1`,
		string(id),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, false, nil
		}
		return model.User{}, false, fmt.Errorf("select user: %w", err)
	}
	return u, true, nil
}

func (t *pgTx) UserByNationalID(ctx context.Context, nationalID uint64) (model.User, bool, error) {
	u, err := scanUser(t.tx.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE national_id = $1`,
		int64(nationalID),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, false, nil
		}
		return model.User{}, false, fmt.Errorf("select user by national id: %w", err)
	}
	return u, true, nil
}

func (t *pgTx) PutUser(ctx context.Context, u model.User) error {
	ratings := make([]int16, len(u.Ratings))
	for i, v := range u.Ratings {
		ratings[i] = int16(v)
	}

	_, err := t.tx.Exec(ctx,
		`INSERT INTO users (identity, name, national_id, role, ratings)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (identity) DO UPDATE SET name = EXCLUDED.name, role = EXCLUDED.role, ratings = EXCLUDED.ratings`,
		string(u.Identity), u.Name, int64(u.NationalID), string(u.Role), ratings,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %d", model.ErrNationalIDConflict, u.NationalID)
		}
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (t *pgTx) Inventory(ctx context.Context, id model.Identity) (model.Inventory, bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM inventories WHERE identity = $1)`,
		string(id),
	).Scan(&exists)
	if err != nil {
		return model.Inventory{}, false, fmt.Errorf("select inventory: %w", err)
	}
	if !exists {
		return model.Inventory{}, false, nil
	}

	rows, err := t.tx.Query(ctx,
		`SELECT id, name, category, quantity FROM products WHERE identity = $1 ORDER BY id`,
		string(id),
	)
	if err != nil {
		return model.Inventory{}, false, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var inv model.Inventory
	for rows.Next() {
		var (
			productID int64
			name      string
			category  string
			quantity  int64
		)
		if err := rows.Scan(&productID, &name, &category, &quantity); err != nil {
			return model.Inventory{}, false, fmt.Errorf("scan product: %w", err)
		}
		inv.Products = append(inv.Products, model.Product{
			ID:       uint64(productID),
			Name:     name,
			Category: model.Category(category),
			Quantity: uint64(quantity),
		})
	}

	if err := rows.Err(); err != nil {
		return model.Inventory{}, false, fmt.Errorf("rows error: %w", err)
	}

	return inv, true, nil
}

// PutInventory создаёт инвентарь при необходимости и сохраняет все его товары.
// Товары не удаляются, поэтому достаточно upsert по (identity, id).
func (t *pgTx) PutInventory(ctx context.Context, id model.Identity, inv model.Inventory) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO inventories (identity) VALUES ($1) ON CONFLICT (identity) DO NOTHING`,
		string(id),
	)
	if err != nil {
		return fmt.Errorf("insert inventory: %w", err)
	}

	if len(inv.Products) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range inv.Products {
		batch.Queue(
			`INSERT INTO products (identity, id, name, category, quantity)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (identity, id) DO UPDATE SET quantity = EXCLUDED.quantity`,
			string(id), int64(p.ID), p.Name, string(p.Category), int64(p.Quantity),
		)
	}

	br := t.tx.SendBatch(ctx, batch)
	defer br.Close()

	for range inv.Products {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert product: %w", err)
		}
	}

	return nil
}

const listingColumns = `idx, seller, product_id, product_name, product_category, product_quantity,
	description, created_at, price, available`

func scanListing(row pgx.Row) (uint64, model.Listing, error) {
	var (
		l          model.Listing
		idx        int64
		seller     string
		productID  int64
		category   string
		productQty int64
		price      int64
		available  int64
	)
	err := row.Scan(&idx, &seller, &productID, &l.Product.Name, &category, &productQty,
		&l.Description, &l.CreatedAt, &price, &available)
	if err != nil {
		return 0, model.Listing{}, err
	}

	l.Seller = model.Identity(seller)
	l.Product.ID = uint64(productID)
	l.Product.Category = model.Category(category)
	l.Product.Quantity = uint64(productQty)
	l.Price = uint64(price)
	l.Available = uint64(available)
	return uint64(idx), l, nil
}

func (t *pgTx) Listing(ctx context.Context, index uint64) (model.Listing, bool, error) {
	_, l, err := scanListing(t.tx.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE idx = $1`,
		int64(index),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Listing{}, false, nil
		}
		return model.Listing{}, false, fmt.Errorf("select listing: %w", err)
	}
	return l, true, nil
}

// SetListing обновляет изменяемые поля объявления; снимок товара не меняется.
func (t *pgTx) SetListing(ctx context.Context, index uint64, l model.Listing) error {
	cmdTag, err := t.tx.Exec(ctx,
		`UPDATE listings SET description = $2, price = $3, available = $4 WHERE idx = $1`,
		int64(index), l.Description, int64(l.Price), int64(l.Available),
	)
	if err != nil {
		return fmt.Errorf("update listing: %w", err)
	}
	if cmdTag.RowsAffected() != 1 {
		return fmt.Errorf("update listing %d: no such row", index)
	}
	return nil
}

func (t *pgTx) PushListing(ctx context.Context, l model.Listing) (uint64, error) {
	index, err := t.ListingCount(ctx)
	if err != nil {
		return 0, err
	}

	_, err = t.tx.Exec(ctx,
		`INSERT INTO listings (idx, seller, product_id, product_name, product_category, product_quantity,
		 description, created_at, price, available)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		int64(index), string(l.Seller), int64(l.Product.ID), l.Product.Name, string(l.Product.Category),
		int64(l.Product.Quantity), l.Description, l.CreatedAt, int64(l.Price), int64(l.Available),
	)
	if err != nil {
		return 0, fmt.Errorf("insert listing: %w", err)
	}
	return index, nil
}

func (t *pgTx) ListingCount(ctx context.Context) (uint64, error) {
	var count int64
	if err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM listings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return uint64(count), nil
}

func (t *pgTx) FindListingByProduct(ctx context.Context, productID uint64) (uint64, model.Listing, bool, error) {
	idx, l, err := scanListing(t.tx.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE product_id = $1 ORDER BY idx LIMIT 1`,
		int64(productID),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, model.Listing{}, false, nil
		}
		return 0, model.Listing{}, false, fmt.Errorf("find listing: %w", err)
	}
	return idx, l, true, nil
}

func (t *pgTx) Listings(ctx context.Context) ([]model.Listing, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+listingColumns+` FROM listings ORDER BY idx`)
	if err != nil {
		return nil, fmt.Errorf("select listings: %w", err)
	}
	defer rows.Close()

	var res []model.Listing
	for rows.Next() {
		_, l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		res = append(res, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

const orderColumns = `id, buyer, seller, product_id, quantity, state`

func scanOrder(row pgx.Row) (model.Order, error) {
	var (
		o         model.Order
		id        int64
		buyer     string
		seller    string
		productID int64
		quantity  int64
		state     string
	)
	if err := row.Scan(&id, &buyer, &seller, &productID, &quantity, &state); err != nil {
		return model.Order{}, err
	}

	o.ID = uint64(id)
	o.Buyer = model.Identity(buyer)
	o.Seller = model.Identity(seller)
	o.ProductID = uint64(productID)
	o.Quantity = uint64(quantity)
	o.State = model.OrderState(state)
	return o, nil
}

func (t *pgTx) Order(ctx context.Context, index uint64) (model.Order, bool, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`,
		int64(index),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Order{}, false, nil
		}
		return model.Order{}, false, fmt.Errorf("select order: %w", err)
	}
	return o, true, nil
}

func (t *pgTx) SetOrder(ctx context.Context, index uint64, o model.Order) error {
	cmdTag, err := t.tx.Exec(ctx,
		`UPDATE orders SET state = $2 WHERE id = $1`,
		int64(index), string(o.State),
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if cmdTag.RowsAffected() != 1 {
		return fmt.Errorf("update order %d: no such row", index)
	}
	return nil
}

func (t *pgTx) PushOrder(ctx context.Context, o model.Order) (uint64, error) {
	index, err := t.OrderCount(ctx)
	if err != nil {
		return 0, err
	}

	_, err = t.tx.Exec(ctx,
		`INSERT INTO orders (id, buyer, seller, product_id, quantity, state) VALUES ($1, $2, $3, $4, $5, $6)`,
		int64(index), string(o.Buyer), string(o.Seller), int64(o.ProductID), int64(o.Quantity), string(o.State),
	)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}
	return index, nil
}

func (t *pgTx) OrderCount(ctx context.Context) (uint64, error) {
	var count int64
	if err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return uint64(count), nil
}

func (t *pgTx) OrdersByParty(ctx context.Context, id model.Identity) ([]model.Order, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE buyer = $1 OR seller = $1 ORDER BY id`,
		string(id),
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}
