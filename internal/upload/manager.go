// Package upload runs image uploads for submitted tasks in the background.
package upload

import (
	"context"
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/db"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/draft"
)

// Attachments is the attachment table the manager writes status to.
type Attachments interface {
	CreateAttachment(ctx context.Context, a *db.Attachment) error
	SetAttachmentUploading(ctx context.Context, id string) error
	SetAttachmentUploaded(ctx context.Context, id, fileURL, thumbnailURL string) error
	SetAttachmentFailed(ctx context.Context, id, message string) error
	CreateAnnotation(ctx context.Context, attachmentID, data string) error
}

// Status is one status change of an image upload.
type Status struct {
	TaskID       string `json:"task_id"`
	ImageID      string `json:"image_id"`
	AttachmentID string `json:"attachment_id,omitempty"`
	FileName     string `json:"file_name"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	URL          string `json:"url,omitempty"`
}

// Manager uploads task images on background goroutines.
type Manager struct {
	attachments Attachments
	storage     Storage
	logger      *log.Logger

	mu       sync.Mutex
	onStatus []func(Status)

	wg sync.WaitGroup
}

// NewManager creates an upload manager.
func NewManager(attachments Attachments, storage Storage, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{attachments: attachments, storage: storage, logger: logger}
}

// OnStatus registers a callback for upload status changes.
func (m *Manager) OnStatus(fn func(Status)) {
	m.mu.Lock()
	m.onStatus = append(m.onStatus, fn)
	m.mu.Unlock()
}

func (m *Manager) notify(st Status) {
	m.mu.Lock()
	fns := append([]func(Status){}, m.onStatus...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

// Start uploads images for a task without blocking. The uploads outlive
// ctx's cancellation so a finished request does not abort them.
func (m *Manager) Start(ctx context.Context, taskID, orgID string, images []draft.Image) {
	ctx = context.WithoutCancel(ctx)
	for _, img := range images {
		m.wg.Add(1)
		go func(img draft.Image) {
			defer m.wg.Done()
			m.upload(ctx, taskID, orgID, img)
		}(img)
	}
}

// Wait blocks until every started upload has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) upload(ctx context.Context, taskID, orgID string, img draft.Image) {
	st := Status{TaskID: taskID, ImageID: img.ID, FileName: img.FileName}

	a := &db.Attachment{TaskID: taskID, OrgID: orgID, FileName: img.FileName, ContentType: img.ContentType}
	if err := m.attachments.CreateAttachment(ctx, a); err != nil {
		m.logger.Error("Failed to record attachment", "task", taskID, "file", img.FileName, "error", err)
		st.Status, st.Error = db.UploadFailed, err.Error()
		m.notify(st)
		return
	}
	st.AttachmentID = a.ID

	if err := m.attachments.SetAttachmentUploading(ctx, a.ID); err != nil {
		m.logger.Warn("Failed to mark attachment uploading", "attachment", a.ID, "error", err)
	}
	st.Status = db.UploadUploading
	m.notify(st)

	fileURL, thumbURL, err := m.store(ctx, taskID, a.ID, img.Path)
	if err != nil {
		m.logger.Error("Upload failed", "task", taskID, "file", img.FileName, "error", err)
		if ferr := m.attachments.SetAttachmentFailed(ctx, a.ID, err.Error()); ferr != nil {
			m.logger.Warn("Failed to mark attachment failed", "attachment", a.ID, "error", ferr)
		}
		st.Status, st.Error = db.UploadFailed, err.Error()
		m.notify(st)
		return
	}

	if err := m.attachments.SetAttachmentUploaded(ctx, a.ID, fileURL, thumbURL); err != nil {
		m.logger.Error("Failed to mark attachment uploaded", "attachment", a.ID, "error", err)
	}
	if img.Annotation != "" {
		if err := m.attachments.CreateAnnotation(ctx, a.ID, img.Annotation); err != nil {
			m.logger.Warn("Failed to save annotation", "attachment", a.ID, "error", err)
		}
	}
	if err := os.Remove(img.Path); err != nil && !os.IsNotExist(err) {
		m.logger.Debug("Could not remove staged image", "path", img.Path, "error", err)
	}

	m.logger.Info("Uploaded image", "task", taskID, "file", img.FileName)
	st.Status, st.URL = db.UploadUploaded, fileURL
	m.notify(st)
}

func (m *Manager) store(ctx context.Context, taskID, attachmentID, stagedPath string) (fileURL, thumbURL string, err error) {
	f, err := os.Open(stagedPath)
	if err != nil {
		return "", "", fmt.Errorf("open staged image: %w", err)
	}
	defer f.Close()

	v, err := MakeVariants(f)
	if err != nil {
		return "", "", err
	}

	prefix := path.Join("tasks", taskID, attachmentID)
	if fileURL, err = m.storage.Put(ctx, prefix+".jpg", "image/jpeg", v.Optimized); err != nil {
		return "", "", fmt.Errorf("store image: %w", err)
	}
	if thumbURL, err = m.storage.Put(ctx, prefix+"-thumb.jpg", "image/jpeg", v.Thumbnail); err != nil {
		return "", "", fmt.Errorf("store thumbnail: %w", err)
	}
	return fileURL, thumbURL, nil
}
