package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
)

func newTestService(t *testing.T) (Service, *db.Client) {
	t.Helper()
	client := dbtest.Open(t)
	svc, err := NewService(NewRepository(client.DB()), client, outbox.NewService(outbox.NewRepository(client.DB()), nil))
	require.NoError(t, err)
	return svc, client
}

func seedNotifications(t *testing.T, client *db.Client, userID uuid.UUID, n int) []models.Notification {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := make([]models.Notification, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, models.Notification{
			UserID:    userID,
			Type:      enums.NotificationTypeSystem,
			Title:     "hello",
			Message:   "message",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	require.NoError(t, client.DB().Create(&rows).Error)
	return rows
}

func TestListPagesNewestFirst(t *testing.T) {
	svc, client := newTestService(t)
	user := uuid.New()
	rows := seedNotifications(t, client, user, 5)
	seedNotifications(t, client, uuid.New(), 2)

	first, err := svc.List(context.Background(), ListParams{UserID: user, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.Equal(t, rows[4].ID, first.Items[0].ID)
	assert.Equal(t, rows[3].ID, first.Items[1].ID)
	require.NotEmpty(t, first.Cursor)

	second, err := svc.List(context.Background(), ListParams{UserID: user, Limit: 2, Cursor: first.Cursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 2)
	assert.Equal(t, rows[2].ID, second.Items[0].ID)
	assert.Equal(t, rows[1].ID, second.Items[1].ID)

	last, err := svc.List(context.Background(), ListParams{UserID: user, Limit: 2, Cursor: second.Cursor})
	require.NoError(t, err)
	require.Len(t, last.Items, 1)
	assert.Equal(t, rows[0].ID, last.Items[0].ID)
	assert.Empty(t, last.Cursor)
}

func TestListRejectsBadCursor(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.List(context.Background(), ListParams{UserID: uuid.New(), Cursor: "%%%"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestMarkReadIsScopedToOwner(t *testing.T) {
	svc, client := newTestService(t)
	owner := uuid.New()
	rows := seedNotifications(t, client, owner, 1)

	err := svc.MarkRead(context.Background(), uuid.New(), rows[0].ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	require.NoError(t, svc.MarkRead(context.Background(), owner, rows[0].ID))
	// already read is not an error
	require.NoError(t, svc.MarkRead(context.Background(), owner, rows[0].ID))

	unread, err := svc.List(context.Background(), ListParams{UserID: owner, UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, unread.Items)
}

func TestMarkAllRead(t *testing.T) {
	svc, client := newTestService(t)
	owner := uuid.New()
	seedNotifications(t, client, owner, 3)
	other := uuid.New()
	seedNotifications(t, client, other, 1)

	count, err := svc.MarkAllRead(context.Background(), owner)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	count, err = svc.MarkAllRead(context.Background(), owner)
	require.NoError(t, err)
	assert.Zero(t, count)

	unread, err := svc.List(context.Background(), ListParams{UserID: other, UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, unread.Items, 1)
}

func TestBroadcastQueuesEvent(t *testing.T) {
	svc, client := newTestService(t)
	admin := auth.Actor{UserID: uuid.New(), Role: enums.RoleAdmin}

	_, err := svc.Broadcast(context.Background(), auth.Actor{UserID: uuid.New(), Role: enums.RoleSeller}, BroadcastInput{Title: "x", Message: "y"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = svc.Broadcast(context.Background(), admin, BroadcastInput{Title: "x", Message: "y", Audience: "vip"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	result, err := svc.Broadcast(context.Background(), admin, BroadcastInput{Title: "Maintenance", Message: "Back at noon"})
	require.NoError(t, err)
	assert.Equal(t, enums.AudienceAll, result.Audience)

	var events []models.OutboxEvent
	require.NoError(t, client.DB().Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventNotificationRequested, events[0].EventType)
	assert.Equal(t, result.EventID, events[0].AggregateID)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal([]byte(events[0].Payload), &envelope))
	var payload payloads.NotificationRequestedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	assert.Equal(t, "Maintenance", payload.Title)
	assert.Equal(t, enums.NotificationTypeAnnouncement, payload.Type)
}
