package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"kitchenchat/internal/domain/service"
	"kitchenchat/pkg/errors"
	"kitchenchat/pkg/logger"
	"kitchenchat/pkg/response"
)

// MaxUploadSize caps a single attachment.
const MaxUploadSize = 10 << 20

type UploadHandler struct {
	uploader service.FileUploadService
	allowed  func(contentType string) bool
}

func NewUploadHandler(uploader service.FileUploadService, allowed func(contentType string) bool) *UploadHandler {
	return &UploadHandler{
		uploader: uploader,
		allowed:  allowed,
	}
}

// uploadForm names the conversation the attachment is for. Store ids are
// alphanumeric, which keeps the object name free of path segments.
type uploadForm struct {
	ConversationID string `validate:"omitempty,alphanum,max=128"`
}

type uploadResponse struct {
	URL         string `json:"url"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// UploadFile stores the multipart "file" field. The returned url is sent
// back verbatim as a message's file_url.
func (h *UploadHandler) UploadFile(c echo.Context) error {
	if h.uploader == nil {
		return response.Error(c, errors.New("UPLOADS_DISABLED", "File uploads are not configured", http.StatusServiceUnavailable, nil))
	}
	userID, _, err := caller(c)
	if err != nil {
		return response.Error(c, err)
	}

	c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, MaxUploadSize+1<<20)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return response.Error(c, errors.Validation("file is required"))
	}
	if fileHeader.Size > MaxUploadSize {
		return response.Error(c, errors.Validation("file must be at most 10MB"))
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if h.allowed != nil && !h.allowed(contentType) {
		return response.Error(c, errors.Validation("unsupported file type "+contentType))
	}

	src, err := fileHeader.Open()
	if err != nil {
		return response.Error(c, errors.BadRequest("Failed to read file", err))
	}
	defer src.Close()

	form := uploadForm{ConversationID: c.FormValue("conversation_id")}
	if err := c.Validate(&form); err != nil {
		return response.Error(c, err)
	}
	folder := form.ConversationID
	if folder == "" {
		folder = "unsorted"
	}

	url, err := h.uploader.UploadFile(c.Request().Context(), src, contentType, folder)
	if err != nil {
		logger.Error("UploadFile Error: user %d: %v", userID, err)
		return response.Error(c, errors.Internal("Failed to upload file", err))
	}

	return response.Created(c, uploadResponse{
		URL:         url,
		FileName:    fileHeader.Filename,
		ContentType: contentType,
		Size:        fileHeader.Size,
	})
}
