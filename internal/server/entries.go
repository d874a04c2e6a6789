package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/MarcoPoloResearchLab/tradejournal/internal/journal"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type entryPayload struct {
	EntryID     string              `json:"id"`
	Date        string              `json:"date"`
	Account     string              `json:"account"`
	Content     string              `json:"content"`
	Version     int64               `json:"version"`
	CreatedAt   int64               `json:"created_at_s"`
	UpdatedAt   int64               `json:"updated_at_s"`
	Attachments []attachmentPayload `json:"attachments"`
}

type attachmentPayload struct {
	AttachmentID string `json:"id"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url"`
	Caption      string `json:"caption"`
	Order        int    `json:"order"`
	ContentType  string `json:"content_type"`
	SizeBytes    int64  `json:"size_bytes"`
}

type createEntryRequest struct {
	Date    string `json:"date"`
	Account string `json:"account"`
	Content string `json:"content"`
}

type updateEntryRequest struct {
	Content *string `json:"content"`
}

type updateAttachmentRequest struct {
	Caption *string `json:"caption"`
	Order   *int    `json:"order"`
}

type previewRequest struct {
	Content string `json:"content"`
}

func (h *httpHandler) handleGetEntry(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	key, err := journal.NewEntryKey(c.Query("date"), c.Query("account"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_entry_key"})
		return
	}
	entry, err := h.journal.GetEntry(c.Request.Context(), userID, key)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, newEntryPayload(*entry))
}

func (h *httpHandler) handleCreateEntry(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	var request createEntryRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}
	key, err := journal.NewEntryKey(request.Date, request.Account)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_entry_key"})
		return
	}
	entry, err := h.journal.CreateEntry(c.Request.Context(), userID, key, request.Content)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.publishEntryChange(userID, entry)
	c.JSON(http.StatusCreated, newEntryPayload(entry))
}

func (h *httpHandler) handleUpdateEntry(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	var request updateEntryRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.Content == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}
	entry, err := h.journal.UpdateEntry(c.Request.Context(), userID, c.Param("entryID"), *request.Content)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.publishEntryChange(userID, entry)
	c.JSON(http.StatusOK, newEntryPayload(entry))
}

func (h *httpHandler) handleDeleteEntry(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	entry, err := h.journal.DeleteEntry(c.Request.Context(), userID, c.Param("entryID"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.publishEntryChange(userID, entry)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleUploadAttachment(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_file"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable_file"})
		return
	}
	defer file.Close()

	// One byte past the limit is enough for the policy to reject the upload.
	data, err := io.ReadAll(io.LimitReader(file, h.journal.Policy().Limit()+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable_file"})
		return
	}

	entryID := c.Param("entryID")
	attachment, err := h.journal.UploadAttachment(c.Request.Context(), userID, entryID, journal.Upload{
		Filename: fileHeader.Filename,
		Data:     data,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.publishAttachmentChange(userID, entryID)
	c.JSON(http.StatusCreated, newAttachmentPayload(attachment))
}

func (h *httpHandler) handleUpdateAttachment(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	var request updateAttachmentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}
	entryID := c.Param("entryID")
	attachment, err := h.journal.UpdateAttachment(c.Request.Context(), userID, entryID, c.Param("attachmentID"), journal.AttachmentPatch{
		Caption: request.Caption,
		Order:   request.Order,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.publishAttachmentChange(userID, entryID)
	c.JSON(http.StatusOK, newAttachmentPayload(attachment))
}

func (h *httpHandler) handleDeleteAttachment(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	entryID := c.Param("entryID")
	if _, err := h.journal.DeleteAttachment(c.Request.Context(), userID, entryID, c.Param("attachmentID")); err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.publishAttachmentChange(userID, entryID)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handlePreview(c *gin.Context) {
	var request previewRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}
	rendered, err := h.preview.Render(request.Content)
	if err != nil {
		h.logger.Error("preview render failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "render_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"html": rendered})
}

// writeServiceError maps journal errors onto HTTP statuses. Codes from
// ServiceError are echoed so clients can branch without parsing messages.
func (h *httpHandler) writeServiceError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	reason := "internal_error"
	var validationErr *journal.ValidationError
	switch {
	case errors.As(err, &validationErr):
		status, reason = http.StatusUnprocessableEntity, "invalid_upload"
	case errors.Is(err, journal.ErrEntryNotFound), errors.Is(err, journal.ErrAttachmentNotFound):
		status, reason = http.StatusNotFound, "not_found"
	case errors.Is(err, journal.ErrInvalidPatch):
		status, reason = http.StatusBadRequest, "invalid_patch"
	}

	body := gin.H{"error": reason}
	var serviceErr *journal.ServiceError
	if errors.As(err, &serviceErr) {
		body["code"] = serviceErr.Code()
	}
	if validationErr != nil {
		body["detail"] = validationErr.Error()
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("journal request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, body)
}

func (h *httpHandler) publishEntryChange(userID journal.UserID, entry journal.Entry) {
	h.realtime.Publish(RealtimeMessage{
		UserID:    userID.String(),
		EventType: RealtimeEventEntryChanged,
		Entries: []EntryRef{{
			EntryID: entry.EntryID,
			Key:     fmt.Sprintf("%s/%s", entry.EntryDate, entry.AccountID),
			Version: entry.Version,
		}},
	})
}

func (h *httpHandler) publishAttachmentChange(userID journal.UserID, entryID string) {
	h.realtime.Publish(RealtimeMessage{
		UserID:    userID.String(),
		EventType: RealtimeEventEntryChanged,
		Entries:   []EntryRef{{EntryID: entryID}},
	})
}

func newEntryPayload(entry journal.Entry) entryPayload {
	attachments := make([]attachmentPayload, 0, len(entry.Attachments))
	for _, attachment := range entry.Attachments {
		attachments = append(attachments, newAttachmentPayload(attachment))
	}
	return entryPayload{
		EntryID:     entry.EntryID,
		Date:        entry.EntryDate,
		Account:     entry.AccountID,
		Content:     entry.Content,
		Version:     entry.Version,
		CreatedAt:   entry.CreatedAtSeconds,
		UpdatedAt:   entry.UpdatedAtSeconds,
		Attachments: attachments,
	}
}

func newAttachmentPayload(attachment journal.Attachment) attachmentPayload {
	return attachmentPayload{
		AttachmentID: attachment.AttachmentID,
		URL:          attachment.URL,
		ThumbnailURL: attachment.ThumbnailURL,
		Caption:      attachment.Caption,
		Order:        attachment.Order,
		ContentType:  attachment.ContentType,
		SizeBytes:    attachment.SizeBytes,
	}
}
