package transport

import (
	"time"

	"studysync-backend/internal/board"
)

// JoinPayload join-whiteboard / join-notes / join-files 요청
type JoinPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId,omitempty"`
}

// WhiteboardState 전체 액션 히스토리 스냅샷 (릴레이 → 클라이언트)
type WhiteboardState struct {
	Actions []board.Action `json:"actions"`
}

// StateUpdate undo/redo 이후의 전체 리스트 재동기화 (클라이언트 → 릴레이)
type StateUpdate struct {
	RoomID  string         `json:"roomId"`
	Actions []board.Action `json:"actions"`
}

// NoteUpdate 노트 라이브 갱신 및 저장 요청
type NoteUpdate struct {
	RoomID  string `json:"roomId"`
	Content string `json:"content"`
	UserID  string `json:"userId"`
}

// SharedFile 공유 파일 메타데이터 레코드. 생성 후 불변.
type SharedFile struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Type       string    `json:"type"`
	URL        string    `json:"url"`
	UploadedBy string    `json:"uploadedBy"` // display name
	UploaderID string    `json:"uploaderId"`
	Timestamp  time.Time `json:"timestamp"`
}

// ShareFile share-file 요청
type ShareFile struct {
	RoomID string     `json:"roomId"`
	File   SharedFile `json:"file"`
}

// DeleteFile delete-file 요청. 릴레이가 uploaderId를 재검증한다.
type DeleteFile struct {
	RoomID string `json:"roomId"`
	FileID string `json:"fileId"`
}

// ErrorPayload 릴레이가 요청 실패를 알릴 때 사용
type ErrorPayload struct {
	Message string `json:"message"`
}
