// Package sqlite implements the repositories on the embedded SQLite store. Records are kept as
// JSON documents in the orderdoc shape, with the columns used for lookups and filtering
// duplicated alongside.
package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	domain "github.com/eventdesk/api/internal/domain"
	"github.com/eventdesk/api/internal/platform/sqldb"
	"github.com/eventdesk/api/internal/repositories"
	"github.com/eventdesk/api/internal/repositories/orderdoc"
)

type orderRow struct {
	Version int64  `db:"version"`
	Doc     string `db:"doc"`
}

func (r orderRow) decode() (domain.Order, error) {
	var doc orderdoc.Order
	if err := json.Unmarshal([]byte(r.Doc), &doc); err != nil {
		return domain.Order{}, fmt.Errorf("sqlite: decode order: %w", err)
	}
	order := doc.ToOrder()
	order.Version = r.Version
	return order, nil
}

// OrderRepository stores orders in the orders table.
type OrderRepository struct {
	db *sqldb.DB
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs the SQLite order repository.
func NewOrderRepository(db *sqldb.DB) (*OrderRepository, error) {
	if db == nil {
		return nil, errors.New("order repository: sqlite db is required")
	}
	return &OrderRepository{db: db}, nil
}

func (r *OrderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	var row orderRow
	err := r.db.Conn(ctx).GetContext(ctx, &row, `SELECT version, doc FROM orders WHERE id = ?`, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, sqldb.WrapError("orders.get", err)
	}
	return row.decode()
}

func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	var row orderRow
	err := r.db.Conn(ctx).GetContext(ctx, &row, `SELECT version, doc FROM orders WHERE order_number = ?`, strings.TrimSpace(orderNumber))
	if err != nil {
		return domain.Order{}, sqldb.WrapError("orders.find_by_number", err)
	}
	return row.decode()
}

func (r *OrderRepository) Create(ctx context.Context, order domain.Order) error {
	payload, err := json.Marshal(orderdoc.FromOrder(order))
	if err != nil {
		return fmt.Errorf("sqlite: encode order: %w", err)
	}
	_, err = r.db.Conn(ctx).ExecContext(ctx, `
		INSERT INTO orders (id, order_number, type, status, client_name, client_email, version, created_at, updated_at, doc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.OrderNumber, string(order.Type), string(order.Status),
		order.Client.Name, order.Client.Email, order.Version,
		sqldb.FormatTime(order.CreatedAt), sqldb.FormatTime(order.UpdatedAt), string(payload),
	)
	return sqldb.WrapError("orders.create", err)
}

// UpdateIfVersionMatches is a single conditional UPDATE. When no row matches, a follow-up read
// tells a missing order apart from a stale version.
func (r *OrderRepository) UpdateIfVersionMatches(ctx context.Context, order domain.Order, expectedVersion int64) (domain.Order, error) {
	next := order
	next.Version = expectedVersion + 1
	payload, err := json.Marshal(orderdoc.FromOrder(next))
	if err != nil {
		return domain.Order{}, fmt.Errorf("sqlite: encode order: %w", err)
	}

	conn := r.db.Conn(ctx)
	res, err := conn.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, client_name = ?, client_email = ?, version = ?, updated_at = ?, doc = ?
		WHERE id = ? AND version = ?`,
		string(next.Status), next.Client.Name, next.Client.Email, next.Version,
		sqldb.FormatTime(next.UpdatedAt), string(payload), next.ID, expectedVersion,
	)
	if err != nil {
		return domain.Order{}, sqldb.WrapError("orders.update", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Order{}, sqldb.WrapError("orders.update", err)
	}
	if affected == 1 {
		return next, nil
	}

	var current int64
	if err := conn.GetContext(ctx, &current, `SELECT version FROM orders WHERE id = ?`, next.ID); err != nil {
		return domain.Order{}, sqldb.WrapError("orders.update", err)
	}
	return domain.Order{}, sqldb.NewConflictError("orders.update",
		fmt.Sprintf("order %s is at version %d, expected %d", next.ID, current, expectedVersion))
}

func (r *OrderRepository) Query(ctx context.Context, filter repositories.OrderQueryFilter) ([]domain.Order, error) {
	var (
		clauses []string
		args    []interface{}
	)
	if types := stringValues(filter.Types); len(types) > 0 {
		clauses = append(clauses, "type IN (?)")
		args = append(args, types)
	}
	if statuses := stringValues(filter.Statuses); len(statuses) > 0 {
		clauses = append(clauses, "status IN (?)")
		args = append(args, statuses)
	}
	if filter.CreatedFrom != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, sqldb.FormatTime(*filter.CreatedFrom))
	}
	if filter.CreatedTo != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, sqldb.FormatTime(*filter.CreatedTo))
	}

	query := `SELECT version, doc FROM orders`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: expand order query: %w", err)
	}
	conn := r.db.Conn(ctx)
	var rows []orderRow
	if err := conn.SelectContext(ctx, &rows, conn.Rebind(query), args...); err != nil {
		return nil, sqldb.WrapError("orders.query", err)
	}
	orders := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		order, err := row.decode()
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func stringValues[T ~string](values []T) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(string(v)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
