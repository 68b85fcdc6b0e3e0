package repository

import (
	"context"

	"github.com/halcyon-erp/be-approvals/internal/apperr"
	"github.com/halcyon-erp/be-approvals/internal/database"
)

// NotificationRepository writes in-app inbox rows. Notification writes are
// best-effort and run outside the action transaction; a failed insert is
// logged by the caller, never propagated.
type NotificationRepository struct {
	db *database.DB
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db *database.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Insert creates one inbox row.
func (r *NotificationRepository) Insert(ctx context.Context, n *Notification) error {
	query := `
		INSERT INTO notifications
		    (company_id, user_id, title, message, link, is_read)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		n.CompanyID,
		n.UserID,
		n.Title,
		n.Message,
		n.Link,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to create notification")
	}
	return nil
}

// ListForUser returns a user's notifications newest-first.
func (r *NotificationRepository) ListForUser(ctx context.Context, companyID string, userID int64, unreadOnly bool) ([]*Notification, error) {
	query := `
		SELECT id, company_id, user_id, title, message, link, is_read, created_at
		FROM notifications
		WHERE company_id = $1 AND user_id = $2
	`
	if unreadOnly {
		query += " AND is_read = FALSE"
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(ctx, query, companyID, userID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list notifications")
	}
	defer rows.Close()

	var items []*Notification
	for rows.Next() {
		n := &Notification{}
		if err := rows.Scan(
			&n.ID,
			&n.CompanyID,
			&n.UserID,
			&n.Title,
			&n.Message,
			&n.Link,
			&n.IsRead,
			&n.CreatedAt,
		); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan notification")
		}
		items = append(items, n)
	}
	return items, nil
}

// MarkRead flags one notification as read for the owning user.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string, userID int64) error {
	query := `
		UPDATE notifications
		SET is_read = TRUE
		WHERE id = $1 AND user_id = $2
	`

	tag, err := r.db.Exec(ctx, query, id, userID)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to mark notification read")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("notification", id)
	}
	return nil
}
