package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/xdest/devboard/internal/apperror"
	"github.com/xdest/devboard/internal/model"
	"github.com/xdest/devboard/internal/repository"
)

var _ repository.NotificationRepository = (*DB)(nil)

// CreateNotification inserts a notification, generating its xid.
func (db *DB) CreateNotification(ctx context.Context, n *model.Notification) error {
	n.ID = xid.New().String()
	n.CreatedAt = time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO notifications (id, account_id, kind, body, is_read, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		n.ID,
		n.AccountID,
		n.Kind,
		n.Body,
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting notification for account %d: %w", n.AccountID, err)
	}
	return nil
}

// ListNotifications returns an account's notifications newest-first.
func (db *DB) ListNotifications(ctx context.Context, accountID int64) ([]model.Notification, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, account_id, kind, body, is_read, created_at
		 FROM notifications WHERE account_id = ? ORDER BY created_at DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing notifications for account %d: %w", accountID, err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.AccountID, &n.Kind, &n.Body, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkNotificationRead marks one of the account's notifications read.
// The account filter stops one user marking another's notifications.
func (db *DB) MarkNotificationRead(ctx context.Context, id string, accountID int64) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND account_id = ?`,
		id, accountID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: marking notification %s read: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("notification", id)
	}
	return nil
}
