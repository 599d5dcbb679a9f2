package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/eventdesk/api/internal/domain"
	"github.com/eventdesk/api/internal/platform/sqldb"
	"github.com/eventdesk/api/internal/repositories"
	"github.com/eventdesk/api/internal/repositories/orderdoc"
)

// OrderMessageRepository stores order messages in the order_messages table.
type OrderMessageRepository struct {
	db *sqldb.DB
}

var _ repositories.OrderMessageRepository = (*OrderMessageRepository)(nil)

// NewOrderMessageRepository constructs the SQLite message repository.
func NewOrderMessageRepository(db *sqldb.DB) (*OrderMessageRepository, error) {
	if db == nil {
		return nil, errors.New("order message repository: sqlite db is required")
	}
	return &OrderMessageRepository{db: db}, nil
}

func encodeMessage(m domain.OrderMessage) (string, error) {
	payload, err := json.Marshal(orderdoc.FromMessage(m))
	if err != nil {
		return "", fmt.Errorf("sqlite: encode message: %w", err)
	}
	return string(payload), nil
}

func decodeMessage(raw string) (domain.OrderMessage, error) {
	var doc orderdoc.Message
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return domain.OrderMessage{}, fmt.Errorf("sqlite: decode message: %w", err)
	}
	return doc.ToMessage(), nil
}

func (r *OrderMessageRepository) Append(ctx context.Context, message domain.OrderMessage) error {
	payload, err := encodeMessage(message)
	if err != nil {
		return err
	}
	_, err = r.db.Conn(ctx).ExecContext(ctx,
		`INSERT INTO order_messages (id, order_id, created_at, doc) VALUES (?, ?, ?, ?)`,
		message.ID, message.OrderID, sqldb.FormatTime(message.CreatedAt), payload,
	)
	return sqldb.WrapError("order_messages.append", err)
}

func (r *OrderMessageRepository) List(ctx context.Context, orderID string) ([]domain.OrderMessage, error) {
	var docs []string
	err := r.db.Conn(ctx).SelectContext(ctx, &docs,
		`SELECT doc FROM order_messages WHERE order_id = ? ORDER BY created_at ASC, id ASC`,
		strings.TrimSpace(orderID),
	)
	if err != nil {
		return nil, sqldb.WrapError("order_messages.list", err)
	}
	out := make([]domain.OrderMessage, 0, len(docs))
	for _, raw := range docs {
		msg, err := decodeMessage(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func (r *OrderMessageRepository) Get(ctx context.Context, orderID, messageID string) (domain.OrderMessage, error) {
	var raw string
	err := r.db.Conn(ctx).GetContext(ctx, &raw,
		`SELECT doc FROM order_messages WHERE order_id = ? AND id = ?`,
		strings.TrimSpace(orderID), strings.TrimSpace(messageID),
	)
	if err != nil {
		return domain.OrderMessage{}, sqldb.WrapError("order_messages.get", err)
	}
	return decodeMessage(raw)
}

func (r *OrderMessageRepository) save(ctx context.Context, msg domain.OrderMessage) error {
	payload, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	_, err = r.db.Conn(ctx).ExecContext(ctx, `UPDATE order_messages SET doc = ? WHERE id = ?`, payload, msg.ID)
	return sqldb.WrapError("order_messages.save", err)
}

// MarkSeen reads and rewrites the listed messages in one transaction. Unknown IDs are ignored.
func (r *OrderMessageRepository) MarkSeen(ctx context.Context, orderID string, messageIDs []string, userID string, seenAt time.Time) (int, error) {
	var changed int
	err := r.db.RunInTx(ctx, func(ctx context.Context) error {
		changed = 0
		seen := make(map[string]struct{}, len(messageIDs))
		for _, id := range messageIDs {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			msg, err := r.Get(ctx, orderID, id)
			if err != nil {
				var repoErr repositories.RepositoryError
				if errors.As(err, &repoErr) && repoErr.IsNotFound() {
					continue
				}
				return err
			}
			if !msg.MarkSeen(userID, seenAt) {
				continue
			}
			if err := r.save(ctx, msg); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

func (r *OrderMessageRepository) SoftDelete(ctx context.Context, orderID, messageID, deletedBy string, deletedAt time.Time) (domain.OrderMessage, error) {
	var result domain.OrderMessage
	err := r.db.RunInTx(ctx, func(ctx context.Context) error {
		msg, err := r.Get(ctx, orderID, messageID)
		if err != nil {
			return err
		}
		if msg.IsDeleted {
			result = msg
			return nil
		}
		at := deletedAt
		msg.IsDeleted = true
		msg.DeletedAt = &at
		msg.DeletedBy = deletedBy
		result = msg
		return r.save(ctx, msg)
	})
	if err != nil {
		return domain.OrderMessage{}, err
	}
	return result, nil
}
