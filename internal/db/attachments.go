package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Attachment is an image uploaded for a task.
type Attachment struct {
	ID           string
	TaskID       string
	OrgID        string
	FileName     string
	ContentType  string
	FileURL      string
	ThumbnailURL string
	UploadStatus string
	ErrorMessage string
	CreatedAt    LocalTime
	UpdatedAt    LocalTime
}

// Upload statuses
const (
	UploadPending   = "pending"
	UploadUploading = "uploading"
	UploadUploaded  = "uploaded"
	UploadFailed    = "failed"
)

// CreateAttachment records an attachment before its upload starts.
func (db *DB) CreateAttachment(ctx context.Context, a *Attachment) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.UploadStatus == "" {
		a.UploadStatus = UploadPending
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO attachments (id, task_id, org_id, file_name, content_type, upload_status)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.TaskID, a.OrgID, a.FileName, a.ContentType, a.UploadStatus)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	db.emitAttachmentStatus(a)
	return nil
}

// SetAttachmentUploading marks an attachment as in flight.
func (db *DB) SetAttachmentUploading(ctx context.Context, id string) error {
	return db.updateAttachment(ctx, id, `upload_status = ?`, UploadUploading)
}

// SetAttachmentUploaded stores the public URLs of an uploaded attachment.
func (db *DB) SetAttachmentUploaded(ctx context.Context, id, fileURL, thumbnailURL string) error {
	return db.updateAttachment(ctx, id, `upload_status = ?, file_url = ?, thumbnail_url = ?, error_message = ''`,
		UploadUploaded, fileURL, thumbnailURL)
}

// SetAttachmentFailed records why an upload failed.
func (db *DB) SetAttachmentFailed(ctx context.Context, id, message string) error {
	return db.updateAttachment(ctx, id, `upload_status = ?, error_message = ?`, UploadFailed, message)
}

func (db *DB) updateAttachment(ctx context.Context, id, set string, args ...interface{}) error {
	args = append(args, id)
	_, err := db.ExecContext(ctx, `UPDATE attachments SET `+set+`, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update attachment: %w", err)
	}
	if a, _ := db.GetAttachment(ctx, id); a != nil {
		db.emitAttachmentStatus(a)
	}
	return nil
}

const attachmentColumns = `
	id, task_id, org_id, file_name, COALESCE(content_type, ''), COALESCE(file_url, ''),
	COALESCE(thumbnail_url, ''), COALESCE(upload_status, 'pending'), COALESCE(error_message, ''),
	created_at, updated_at`

func scanAttachment(row rowScanner) (*Attachment, error) {
	a := &Attachment{}
	err := row.Scan(&a.ID, &a.TaskID, &a.OrgID, &a.FileName, &a.ContentType, &a.FileURL,
		&a.ThumbnailURL, &a.UploadStatus, &a.ErrorMessage, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// GetAttachment retrieves an attachment by ID.
func (db *DB) GetAttachment(ctx context.Context, id string) (*Attachment, error) {
	a, err := scanAttachment(db.QueryRowContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query attachment: %w", err)
	}
	return a, nil
}

// ListAttachments returns the attachments of a task in upload order.
func (db *DB) ListAttachments(ctx context.Context, taskID string) ([]*Attachment, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE task_id = ? ORDER BY created_at, rowid`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query attachments: %w", err)
	}
	defer rows.Close()

	var attachments []*Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}

// CreateAnnotation stores annotation data (JSON) drawn on an attachment.
func (db *DB) CreateAnnotation(ctx context.Context, attachmentID, data string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO attachment_annotations (id, attachment_id, data) VALUES (?, ?, ?)
	`, uuid.New().String(), attachmentID, data)
	if err != nil {
		return fmt.Errorf("insert annotation: %w", err)
	}
	return nil
}

// CountAnnotations returns how many annotations an attachment has.
func (db *DB) CountAnnotations(ctx context.Context, attachmentID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attachment_annotations WHERE attachment_id = ?`, attachmentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count annotations: %w", err)
	}
	return n, nil
}
