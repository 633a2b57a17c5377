package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"studysync-backend/internal/auth"
	"studysync-backend/internal/config"
	"studysync-backend/internal/model"
	"studysync-backend/internal/storage"
	"studysync-backend/internal/transport"
)

// StorageHandler 방 단위 파일 업로드 REST 핸들러. 업로드는 두 단계다:
// presign으로 PUT URL을 받고, S3 업로드가 끝난 뒤 confirm으로 레코드를
// 등록한다. confirm이 오지 않은 업로드는 레지스트리에 나타나지 않으므로
// 실패한 업로드가 방에 브로드캐스트될 일이 없다.
type StorageHandler struct {
	db  *gorm.DB
	s3  *storage.S3Service
	hub *RoomHub
	cfg *config.Config
}

// NewStorageHandler StorageHandler 생성
func NewStorageHandler(db *gorm.DB, s3 *storage.S3Service, hub *RoomHub, cfg *config.Config) *StorageHandler {
	return &StorageHandler{db: db, s3: s3, hub: hub, cfg: cfg}
}

// GetPresignedURLRequest Presigned URL 요청
type GetPresignedURLRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	FileSize    int64  `json:"file_size"`
}

// GetPresignedURL 파일 업로드용 Presigned URL 생성
func (h *StorageHandler) GetPresignedURL(c *fiber.Ctx) error {
	if h.s3 == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "S3 service is not configured",
		})
	}

	roomCode := c.Params("roomCode")
	if roomCode == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid room code",
		})
	}

	var req GetPresignedURLRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if req.FileName == "" || req.ContentType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "file_name and content_type are required",
		})
	}

	if max := h.cfg.S3.MaxUploadSize; max > 0 && req.FileSize > max {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": "file exceeds the upload size limit",
		})
	}

	presigned, err := h.s3.GenerateUploadURL(roomCode, sanitizeFileName(req.FileName), req.ContentType)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to generate presigned URL",
		})
	}

	return c.JSON(fiber.Map{
		"upload_url": presigned.URL,
		"key":        presigned.Key,
		"expires_at": presigned.ExpiresAt,
	})
}

// ConfirmUpload 업로드 완료 확인. 파일 레코드를 등록하고 방 전체에
// files-update를 브로드캐스트한다.
func (h *StorageHandler) ConfirmUpload(c *fiber.Ctx) error {
	if h.s3 == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "S3 service is not configured",
		})
	}

	claims := c.Locals("claims").(*auth.Claims)
	roomCode := c.Params("roomCode")
	if roomCode == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid room code",
		})
	}

	var req struct {
		Name     string `json:"name"`
		Key      string `json:"key"`
		FileSize int64  `json:"file_size"`
		MimeType string `json:"mime_type"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if req.Name == "" || req.Key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "name and key are required",
		})
	}

	room, err := h.hub.GetOrCreateRoom(roomCode)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "room unavailable",
		})
	}

	key := req.Key
	file := transport.SharedFile{
		ID:         uuid.New().String(),
		Name:       sanitizeFileName(req.Name),
		Size:       req.FileSize,
		Type:       req.MimeType,
		URL:        h.s3.GetPublicURL(key),
		UploaderID: strconv.FormatInt(claims.UserID, 10),
		UploadedBy: claims.Nickname,
		Timestamp:  time.Now().UTC(),
	}

	room.AddFile(file)
	if h.db != nil {
		// AddFile persists asynchronously without the S3 key; record it
		// here so a later delete can evict the object.
		go func() {
			h.db.Model(&model.SharedFile{}).Where("id = ?", file.ID).Update("s3_key", key)
		}()
	}
	room.Broadcast(ChannelFiles, transport.EventFilesUpdate, room.Files(), "")

	return c.Status(fiber.StatusCreated).JSON(file)
}

// GetDownloadURL 파일 다운로드 URL 생성
func (h *StorageHandler) GetDownloadURL(c *fiber.Ctx) error {
	if h.s3 == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "S3 service is not configured",
		})
	}

	fileID := c.Params("fileId")
	if fileID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid file id",
		})
	}

	var file model.SharedFile
	if err := h.db.Where("id = ? AND deleted_at IS NULL", fileID).First(&file).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "file not found",
		})
	}

	if file.S3Key == nil || *file.S3Key == "" {
		// 외부 URL로 공유된 파일
		return c.JSON(fiber.Map{"url": file.URL})
	}

	url, err := h.s3.GetDownloadURL(*file.S3Key)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to generate download URL",
		})
	}

	return c.JSON(fiber.Map{"url": url})
}

// DeleteFile 파일 삭제 (REST 경로). WebSocket delete-file과 같은 소유자
// 검증을 거치고, 성공하면 S3 객체도 지운다.
func (h *StorageHandler) DeleteFile(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	roomCode := c.Params("roomCode")
	fileID := c.Params("fileId")
	if roomCode == "" || fileID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid room code or file id",
		})
	}

	room, err := h.hub.GetOrCreateRoom(roomCode)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "room unavailable",
		})
	}

	userID := strconv.FormatInt(claims.UserID, 10)
	removed, denied := room.DeleteFile(fileID, userID)
	if denied {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "only the uploader may delete a shared file",
		})
	}
	if !removed {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "file not found",
		})
	}

	room.Broadcast(ChannelFiles, transport.EventFilesUpdate, room.Files(), "")

	// DB 삭제 성공 후 S3 객체 삭제 (실패해도 무시)
	if h.s3 != nil && h.db != nil {
		go func() {
			var file model.SharedFile
			if err := h.db.Where("id = ?", fileID).First(&file).Error; err != nil {
				return
			}
			if file.S3Key != nil && *file.S3Key != "" {
				h.s3.DeleteObject(*file.S3Key)
			}
		}()
	}

	return c.JSON(fiber.Map{
		"message": "file deleted",
	})
}

// GetRoomFiles 방의 파일 목록 (REST 경로, WebSocket 밖에서의 조회용)
func (h *StorageHandler) GetRoomFiles(c *fiber.Ctx) error {
	roomCode := c.Params("roomCode")
	if roomCode == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid room code",
		})
	}

	room, err := h.hub.GetOrCreateRoom(roomCode)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "room unavailable",
		})
	}

	files := room.Files()
	return c.JSON(fiber.Map{
		"files": files,
		"total": len(files),
	})
}

// sanitizeFileName 파일명 정리
func sanitizeFileName(s string) string {
	s = strings.TrimSpace(s)
	invalidChars := []string{"<", ">", "\"", "/", "\\", "|", "?", "*"}
	for _, char := range invalidChars {
		s = strings.ReplaceAll(s, char, "")
	}
	if len(s) > 255 {
		s = s[:255]
	}
	return s
}
