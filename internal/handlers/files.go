package handlers

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pixvault/backend/internal/metrics"
	"github.com/pixvault/backend/internal/middleware"
	"github.com/pixvault/backend/internal/models"
	"github.com/pixvault/backend/internal/services"
	"github.com/pixvault/backend/internal/storage"
	"github.com/pixvault/backend/pkg/logger"
	"github.com/pixvault/backend/pkg/utils"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	maxFileSizeBytes = 5 * 1024 * 1024
	maxUploadFiles   = 10
	maxBulkDelete    = 50
)

var allowedImageTypes = map[string]bool{
	"image/jpeg":    true,
	"image/png":     true,
	"image/gif":     true,
	"image/webp":    true,
	"image/svg+xml": true,
}

type FilesHandler struct {
	DB      *gorm.DB
	Storage storage.ObjectStore
	Quota   *services.QuotaService
	Metrics *metrics.Collector
}

func NewFilesHandler(db *gorm.DB, store storage.ObjectStore, quota *services.QuotaService, collector *metrics.Collector) *FilesHandler {
	return &FilesHandler{DB: db, Storage: store, Quota: quota, Metrics: collector}
}

func (h *FilesHandler) Upload(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "No files uploaded")
	}
	files := form.File["files"]
	if len(files) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "No files uploaded")
	}
	if len(files) > maxUploadFiles {
		return utils.Error(c, fiber.StatusBadRequest, fmt.Sprintf("Cannot upload more than %d files at once", maxUploadFiles))
	}

	var totalSize int64
	contentTypes := make([]string, len(files))
	for i, header := range files {
		if header.Size > maxFileSizeBytes {
			return utils.Error(c, fiber.StatusBadRequest, "File too large. Max 5MB per file.")
		}
		contentType := header.Header.Get("Content-Type")
		if !allowedImageTypes[contentType] {
			return utils.Error(c, fiber.StatusBadRequest, "Only image files are allowed (jpg, jpeg, png, gif, webp, svg)")
		}
		contentTypes[i] = contentType
		totalSize += header.Size
	}

	if err := h.Quota.Reserve(c.Context(), currentUser.ID, totalSize); err != nil {
		if _, ok := err.(*services.QuotaExceededError); ok {
			h.Metrics.RecordQuotaRejection()
		}
		return respondServiceError(c, err)
	}

	// All remote uploads for the batch run concurrently; any failure fails
	// the whole batch. Objects already stored are removed best-effort.
	folder := fmt.Sprintf("files/%s", currentUser.ID)
	results := make([]*storage.UploadResult, len(files))
	group, groupCtx := errgroup.WithContext(c.Context())
	for i, header := range files {
		i, header := i, header
		group.Go(func() error {
			stream, err := header.Open()
			if err != nil {
				return err
			}
			defer stream.Close()

			result, err := h.Storage.Put(groupCtx, folder, filepath.Base(strings.TrimSpace(header.Filename)), stream, header.Size, contentTypes[i])
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		h.cleanupObjects(c, results)
		return respondServiceError(c, &services.UpstreamError{Op: "file upload", Err: err})
	}

	rows := make([]models.File, len(files))
	for i, header := range files {
		rows[i] = models.File{
			OwnerID:      currentUser.ID,
			OriginalName: filepath.Base(strings.TrimSpace(header.Filename)),
			MimeType:     contentTypes[i],
			Size:         header.Size,
			StorageURL:   results[i].URL,
			StorageKey:   results[i].Key,
			Format:       formatFromMime(contentTypes[i]),
		}
	}
	if err := h.DB.WithContext(c.Context()).Create(&rows).Error; err != nil {
		h.cleanupObjects(c, results)
		return utils.Error(c, fiber.StatusInternalServerError, "Internal server error")
	}

	storageUsed, err := h.Quota.Reconcile(c.Context(), currentUser.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Internal server error")
	}

	h.Metrics.RecordUpload(len(rows), totalSize)
	logger.InfoWithUser(currentUser.ID.String(), "files_uploaded", map[string]interface{}{
		"count":        len(rows),
		"total_size":   totalSize,
		"storage_used": storageUsed,
	})

	return utils.Success(c, fiber.StatusCreated, fmt.Sprintf("%d file(s) uploaded successfully", len(rows)), fiber.Map{
		"files":        rows,
		"storageUsed":  storageUsed,
		"storageLimit": models.StorageLimitBytes,
	})
}

func (h *FilesHandler) cleanupObjects(c *fiber.Ctx, results []*storage.UploadResult) {
	for _, result := range results {
		if result == nil {
			continue
		}
		_ = h.Storage.Delete(c.Context(), result.Key)
	}
}

func (h *FilesHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	p := utils.ParsePagination(c)
	query := h.DB.WithContext(c.Context()).Model(&models.File{}).Where("owner_id = ?", currentUser.ID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Internal server error")
	}

	var files []models.File
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Find(&files).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Internal server error")
	}

	return utils.Paginated(c, "Files fetched", files, p.Page, p.Limit, total)
}

func (h *FilesHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Invalid ID")
	}

	var file models.File
	err = h.DB.WithContext(c.Context()).First(&file, "id = ? AND owner_id = ?", fileID, currentUser.ID).Error
	if err != nil {
		return utils.Error(c, fiber.StatusNotFound, "File not found")
	}

	// Remote deletion is best-effort; the record store stays consistent
	// regardless.
	if err := h.Storage.Delete(c.Context(), file.StorageKey); err != nil {
		logger.WarnWithUser(currentUser.ID.String(), "remote_delete_failed", map[string]interface{}{
			"object_key": file.StorageKey,
		})
	}

	if err := h.DB.WithContext(c.Context()).Delete(&file).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Internal server error")
	}

	storageUsed, err := h.Quota.Reconcile(c.Context(), currentUser.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Internal server error")
	}

	return utils.Success(c, fiber.StatusOK, "File deleted successfully", fiber.Map{
		"storageUsed":  storageUsed,
		"storageLimit": models.StorageLimitBytes,
	})
}

type bulkDeleteRequest struct {
	FileIDs []string `json:"fileIds"`
}

func (h *FilesHandler) BulkDelete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	var req bulkDeleteRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if len(req.FileIDs) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "No file IDs provided")
	}
	if len(req.FileIDs) > maxBulkDelete {
		return utils.Error(c, fiber.StatusBadRequest, fmt.Sprintf("Cannot delete more than %d files at once", maxBulkDelete))
	}

	ids := make([]uuid.UUID, 0, len(req.FileIDs))
	for _, raw := range req.FileIDs {
		id, err := parseUUID(raw)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "Invalid ID")
		}
		ids = append(ids, id)
	}

	var files []models.File
	err := h.DB.WithContext(c.Context()).Where("id IN ? AND owner_id = ?", ids, currentUser.ID).Find(&files).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Internal server error")
	}
	if len(files) == 0 {
		return utils.Error(c, fiber.StatusNotFound, "No matching files found")
	}

	var wg sync.WaitGroup
	for _, file := range files {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_ = h.Storage.Delete(c.Context(), key)
		}(file.StorageKey)
	}
	wg.Wait()

	matched := make([]uuid.UUID, len(files))
	for i, file := range files {
		matched[i] = file.ID
	}
	if err := h.DB.WithContext(c.Context()).Where("id IN ?", matched).Delete(&models.File{}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Internal server error")
	}

	storageUsed, err := h.Quota.Reconcile(c.Context(), currentUser.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Internal server error")
	}

	return utils.Success(c, fiber.StatusOK, fmt.Sprintf("%d file(s) deleted successfully", len(files)), fiber.Map{
		"storageUsed":  storageUsed,
		"storageLimit": models.StorageLimitBytes,
	})
}

// RecalcStorage is the idempotent repair endpoint: it re-derives the cached
// usage counter from the authoritative file sizes.
func (h *FilesHandler) RecalcStorage(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	storageUsed, err := h.Quota.Reconcile(c.Context(), currentUser.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Internal server error")
	}

	var user models.User
	if err := h.DB.WithContext(c.Context()).First(&user, "id = ?", currentUser.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Internal server error")
	}

	return utils.Success(c, fiber.StatusOK, "Storage recalculated", fiber.Map{
		"user":         user,
		"storageUsed":  storageUsed,
		"storageLimit": models.StorageLimitBytes,
	})
}
