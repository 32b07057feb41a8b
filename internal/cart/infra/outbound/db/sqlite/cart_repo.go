package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	cartDomain "github.com/davicafu/hexashop/internal/cart/domain"
)

// Ancho fijo para que la comparación de textos equivalga a la de instantes.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type CartRepoSQLite struct {
	db *sql.DB
}

var _ cartDomain.CartRepository = (*CartRepoSQLite)(nil)

func NewCartRepoSQLite(db *sql.DB) *CartRepoSQLite {
	return &CartRepoSQLite{db: db}
}

// querier permite compartir consultas entre *sql.DB y *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time in DB: %w", err)
	}
	return t, nil
}

// ------------------ Escritura ------------------

// Save inserta o actualiza la cabecera y reemplaza todas las líneas en una transacción.
func (r *CartRepoSQLite) Save(ctx context.Context, c *cartDomain.Cart) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO carts (id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		c.ID.String(), c.UserID, formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	); err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = ?`, c.ID.String()); err != nil {
		return err
	}
	for i, it := range c.Items {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO cart_items (cart_id, product_id, quantity, position, added_at) VALUES (?, ?, ?, ?, ?)`,
			c.ID.String(), it.ProductID, it.Quantity, i, formatTime(it.AddedAt),
		); err != nil {
			return fmt.Errorf("failed to insert cart item: %w", err)
		}
	}

	return tx.Commit()
}

func (r *CartRepoSQLite) DeleteByUser(ctx context.Context, userID string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM cart_items WHERE cart_id IN (SELECT id FROM carts WHERE user_id = ?)`, userID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM carts WHERE user_id = ?`, userID); err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveProduct quita el producto de todos los carritos y borra los que quedan vacíos.
func (r *CartRepoSQLite) RemoveProduct(ctx context.Context, productID string) (users []string, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	users, err = usersWithProduct(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, tx.Commit()
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM cart_items WHERE product_id = ?`, productID); err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM carts WHERE NOT EXISTS (SELECT 1 FROM cart_items i WHERE i.cart_id = carts.id)`); err != nil {
		return nil, err
	}
	return users, tx.Commit()
}

func (r *CartRepoSQLite) DeleteUpdatedBefore(ctx context.Context, cutoff time.Time) (n int64, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	ts := formatTime(cutoff)
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM cart_items WHERE cart_id IN (SELECT id FROM carts WHERE updated_at < ?)`, ts); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM carts WHERE updated_at < ?`, ts)
	if err != nil {
		return 0, err
	}
	n, _ = res.RowsAffected()
	return n, tx.Commit()
}

// ------------------ Lectura ------------------

func (r *CartRepoSQLite) GetByUser(ctx context.Context, userID string) (*cartDomain.Cart, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = ?`, userID)

	c, err := scanCart(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cartDomain.ErrCartNotFound
		}
		return nil, err
	}
	if c.Items, err = r.loadItems(ctx, c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CartRepoSQLite) FindUsersWithProduct(ctx context.Context, productID string) ([]string, error) {
	return usersWithProduct(ctx, r.db, productID)
}

func (r *CartRepoSQLite) ListUpdatedBefore(ctx context.Context, cutoff time.Time) ([]*cartDomain.Cart, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, created_at, updated_at FROM carts WHERE updated_at < ? ORDER BY updated_at`,
		formatTime(cutoff))
	if err != nil {
		return nil, err
	}

	var carts []*cartDomain.Cart
	for rows.Next() {
		c, err := scanCart(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		carts = append(carts, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Las líneas se cargan después de cerrar el cursor: con una sola conexión no caben dos abiertos
	for _, c := range carts {
		if c.Items, err = r.loadItems(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	return carts, nil
}

// ------------------ Helpers ------------------

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCart(row rowScanner) (*cartDomain.Cart, error) {
	var c cartDomain.Cart
	var idStr, createdAt, updatedAt string
	if err := row.Scan(&idStr, &c.UserID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	parsedID, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID in DB: %w", err)
	}
	c.ID = parsedID
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CartRepoSQLite) loadItems(ctx context.Context, cartID uuid.UUID) ([]cartDomain.CartItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT product_id, quantity, added_at FROM cart_items WHERE cart_id = ? ORDER BY position`, cartID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []cartDomain.CartItem
	for rows.Next() {
		var it cartDomain.CartItem
		var addedAt string
		if err := rows.Scan(&it.ProductID, &it.Quantity, &addedAt); err != nil {
			return nil, err
		}
		if it.AddedAt, err = parseTime(addedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func usersWithProduct(ctx context.Context, q querier, productID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT DISTINCT c.user_id FROM carts c
		 JOIN cart_items i ON i.cart_id = c.id
		 WHERE i.product_id = ?
		 ORDER BY c.user_id`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ------------------ Inicialización del Esquema ------------------

// InitSQLiteCartSchema crea las tablas carts y cart_items si no existen.
func InitSQLiteCartSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS carts (
            id TEXT PRIMARY KEY,
            user_id TEXT NOT NULL UNIQUE,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS cart_items (
            cart_id TEXT NOT NULL,
            product_id TEXT NOT NULL,
            quantity INTEGER NOT NULL CHECK (quantity > 0),
            position INTEGER NOT NULL,
            added_at TEXT NOT NULL,
            PRIMARY KEY (cart_id, product_id)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_carts_updated_at ON carts (updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_cart_items_product ON cart_items (product_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to init cart schema: %w", err)
		}
	}
	return nil
}
