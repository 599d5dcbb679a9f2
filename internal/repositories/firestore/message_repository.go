package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/eventdesk/api/internal/domain"
	pfirestore "github.com/eventdesk/api/internal/platform/firestore"
	"github.com/eventdesk/api/internal/repositories"
	"github.com/eventdesk/api/internal/repositories/orderdoc"
)

const messagesSubcollection = "messages"

// OrderMessageRepository stores messages under orders/{orderID}/messages.
type OrderMessageRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderdoc.Order]
}

var _ repositories.OrderMessageRepository = (*OrderMessageRepository)(nil)

// NewOrderMessageRepository constructs the Firestore message repository.
func NewOrderMessageRepository(provider *pfirestore.Provider) (*OrderMessageRepository, error) {
	if provider == nil {
		return nil, errors.New("order message repository: firestore provider is required")
	}
	return &OrderMessageRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderdoc.Order](provider, ordersCollection, nil, nil),
	}, nil
}

func (r *OrderMessageRepository) messages(ctx context.Context, orderID string) (*firestore.CollectionRef, error) {
	orderRef, err := r.orders.DocumentRef(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return nil, err
	}
	return orderRef.Collection(messagesSubcollection), nil
}

func (r *OrderMessageRepository) Append(ctx context.Context, message domain.OrderMessage) error {
	coll, err := r.messages(ctx, message.OrderID)
	if err != nil {
		return err
	}
	ref := coll.Doc(message.ID)
	doc := orderdoc.FromMessage(message)
	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		err = tx.Create(ref, doc)
	} else {
		_, err = ref.Create(ctx, doc)
	}
	return pfirestore.WrapError("order_messages.append", err)
}

func (r *OrderMessageRepository) List(ctx context.Context, orderID string) ([]domain.OrderMessage, error) {
	coll, err := r.messages(ctx, orderID)
	if err != nil {
		return nil, err
	}
	iter := coll.OrderBy("createdAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []domain.OrderMessage
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("order_messages.list", err)
		}
		var doc orderdoc.Message
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("firestore: decode message %s: %w", snap.Ref.ID, err)
		}
		out = append(out, doc.ToMessage())
	}
	return out, nil
}

func (r *OrderMessageRepository) Get(ctx context.Context, orderID, messageID string) (domain.OrderMessage, error) {
	coll, err := r.messages(ctx, orderID)
	if err != nil {
		return domain.OrderMessage{}, err
	}
	snap, err := coll.Doc(strings.TrimSpace(messageID)).Get(ctx)
	if err != nil {
		return domain.OrderMessage{}, pfirestore.WrapError("order_messages.get", err)
	}
	var doc orderdoc.Message
	if err := snap.DataTo(&doc); err != nil {
		return domain.OrderMessage{}, fmt.Errorf("firestore: decode message %s: %w", snap.Ref.ID, err)
	}
	return doc.ToMessage(), nil
}

// MarkSeen reads every listed message in one transaction before writing any receipt. Unknown
// message IDs are ignored.
func (r *OrderMessageRepository) MarkSeen(ctx context.Context, orderID string, messageIDs []string, userID string, seenAt time.Time) (int, error) {
	coll, err := r.messages(ctx, orderID)
	if err != nil {
		return 0, err
	}
	refs := make([]*firestore.DocumentRef, 0, len(messageIDs))
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
		refs = append(refs, coll.Doc(id))
	}
	if len(refs) == 0 {
		return 0, nil
	}

	var changed int
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		changed = 0
		snaps, err := tx.GetAll(refs)
		if err != nil {
			return err
		}
		updates := make(map[*firestore.DocumentRef]orderdoc.Message)
		for _, snap := range snaps {
			if !snap.Exists() {
				continue
			}
			var doc orderdoc.Message
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("firestore: decode message %s: %w", snap.Ref.ID, err)
			}
			msg := doc.ToMessage()
			if msg.MarkSeen(userID, seenAt) {
				updates[snap.Ref] = orderdoc.FromMessage(msg)
			}
		}
		for ref, doc := range updates {
			if err := tx.Set(ref, doc); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, pfirestore.WrapError("order_messages.mark_seen", err)
	}
	return changed, nil
}

func (r *OrderMessageRepository) SoftDelete(ctx context.Context, orderID, messageID, deletedBy string, deletedAt time.Time) (domain.OrderMessage, error) {
	coll, err := r.messages(ctx, orderID)
	if err != nil {
		return domain.OrderMessage{}, err
	}
	ref := coll.Doc(strings.TrimSpace(messageID))

	var result domain.OrderMessage
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc orderdoc.Message
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore: decode message %s: %w", snap.Ref.ID, err)
		}
		msg := doc.ToMessage()
		if msg.IsDeleted {
			result = msg
			return nil
		}
		at := deletedAt
		msg.IsDeleted = true
		msg.DeletedAt = &at
		msg.DeletedBy = deletedBy
		result = msg
		return tx.Set(ref, orderdoc.FromMessage(msg))
	})
	if err != nil {
		return domain.OrderMessage{}, pfirestore.WrapError("order_messages.soft_delete", err)
	}
	return result, nil
}
