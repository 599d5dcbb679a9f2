package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/eventdesk/api/internal/domain"
	"github.com/eventdesk/api/internal/repositories"
)

func TestAuditLogRepositoryPaginates(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, registry.AuditLogs().Append(ctx, domain.AuditLogEntry{
			ID:        fmt.Sprintf("aud_%d", i),
			Actor:     "admin-1",
			Action:    "order.payment.recorded",
			TargetRef: "/orders/ord_1",
			Severity:  "info",
			Metadata:  map[string]any{"amount": float64(100 * i)},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, registry.AuditLogs().Append(ctx, domain.AuditLogEntry{
		ID: "aud_other", Actor: "admin-2", Action: "order.cancelled", TargetRef: "/orders/ord_2", Severity: "warn", CreatedAt: base,
	}))

	filter := repositories.AuditLogFilter{TargetRef: "/orders/ord_1", Pagination: domain.Pagination{PageSize: 3}}
	page, err := registry.AuditLogs().List(ctx, filter)
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, "aud_4", page.Items[0].ID)
	assert.Equal(t, float64(400), page.Items[0].Metadata["amount"])
	require.NotEmpty(t, page.NextPageToken)

	filter.Pagination.PageToken = page.NextPageToken
	next, err := registry.AuditLogs().List(ctx, filter)
	require.NoError(t, err)
	require.Len(t, next.Items, 2)
	assert.Equal(t, "aud_0", next.Items[1].ID)
	assert.Empty(t, next.NextPageToken)
}
