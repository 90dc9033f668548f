package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trustlens/internal/domain"
	"trustlens/internal/repository"
	"trustlens/internal/service"
)

// UploadHandler mantiene dependencias para los endpoints de cargas.
type UploadHandler struct {
	logger    *zap.Logger
	uploadSvc *service.UploadService
	maxBytes  int64
}

func NewUploadHandler(logger *zap.Logger, uploadSvc *service.UploadService, maxBytes int64) *UploadHandler {
	return &UploadHandler{
		logger:    logger,
		uploadSvc: uploadSvc,
		maxBytes:  maxBytes,
	}
}

// Submit maneja POST /uploads. Multipart con campo "file" y un
// "format_hint" opcional; la respuesta es 202 con el trabajo en pending.
func (h *UploadHandler) Submit(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	job, err := h.uploadSvc.Submit(
		c.Request.Context(),
		claims.UserID,
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		c.PostForm("format_hint"),
		data,
	)
	if err != nil {
		var verr *domain.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
		case errors.Is(err, service.ErrUploadRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many uploads"})
		default:
			h.logger.Error("submit upload failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not submit upload"})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"upload": uploadView(job)})
}

// List maneja GET /uploads.
func (h *UploadHandler) List(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	jobs, err := h.uploadSvc.List(c.Request.Context(), claims.UserID)
	if err != nil {
		h.logger.Error("list uploads failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list uploads"})
		return
	}

	views := make([]gin.H, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, uploadView(job))
	}
	c.JSON(http.StatusOK, gin.H{"uploads": views})
}

// Progress maneja GET /uploads/:id/progress.
func (h *UploadHandler) Progress(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	view, err := h.uploadSvc.Progress(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "upload not found"})
			return
		}
		h.logger.Error("upload progress failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read progress"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// Result maneja GET /uploads/:id/result. Solo metadatos.
func (h *UploadHandler) Result(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	view, err := h.uploadSvc.Result(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "upload not found"})
			return
		}
		h.logger.Error("upload result failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read result"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// Delete maneja DELETE /uploads/:id.
func (h *UploadHandler) Delete(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	if err := h.uploadSvc.Delete(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "upload not found"})
			return
		}
		h.logger.Error("delete upload failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete upload"})
		return
	}
	c.Status(http.StatusNoContent)
}

func uploadView(job domain.UploadJob) gin.H {
	return gin.H{
		"id":           job.ID,
		"filename":     job.Filename,
		"status":       job.Status,
		"progress":     job.Progress,
		"current_step": job.CurrentStep,
		"created_at":   job.CreatedAt,
		"expires_at":   job.ExpiresAt,
	}
}
