package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"studysync-backend/internal/transport"
)

// ErrNotUploader 업로더가 아닌 사용자의 삭제 시도
var ErrNotUploader = errors.New("session: only the uploader may delete a shared file")

// Registry is the room's shared-file metadata list. It holds no binary
// data, only records pointing at the externally hosted objects. Every
// client's view comes from the relay's files-update broadcast — a local
// Share is not optimistically inserted, so uploader and peers converge
// from the same authoritative event.
type Registry struct {
	roomID   string
	userID   string
	nickname string
	tr       transport.Transport

	mu    sync.RWMutex
	files []transport.SharedFile
}

func newRegistry(roomID, userID, nickname string, tr transport.Transport) *Registry {
	return &Registry{
		roomID:   roomID,
		userID:   userID,
		nickname: nickname,
		tr:       tr,
	}
}

// Share announces a completed upload to the room. The record is stamped
// with this user's identity; the registry itself is updated only when
// the relay broadcasts it back.
func (r *Registry) Share(file transport.SharedFile) error {
	if file.ID == "" {
		file.ID = uuid.New().String()
	}
	if file.Timestamp.IsZero() {
		file.Timestamp = time.Now().UTC()
	}
	file.UploaderID = r.userID
	file.UploadedBy = r.nickname

	return r.tr.Emit(transport.EventShareFile, r.roomID, transport.ShareFile{
		RoomID: r.roomID,
		File:   file,
	})
}

// Delete requests removal of a shared file. The local uploader check is
// cosmetic; the relay independently re-validates ownership. An ID that
// is missing locally is still sent — the local view may be stale, and
// the relay treats unknown IDs as no-ops.
func (r *Registry) Delete(fileID string) error {
	r.mu.RLock()
	var found *transport.SharedFile
	for i := range r.files {
		if r.files[i].ID == fileID {
			found = &r.files[i]
			break
		}
	}
	r.mu.RUnlock()

	if found != nil && found.UploaderID != r.userID {
		return ErrNotUploader
	}

	return r.tr.Emit(transport.EventDeleteFile, r.roomID, transport.DeleteFile{
		RoomID: r.roomID,
		FileID: fileID,
	})
}

// replace installs the authoritative snapshot wholesale.
func (r *Registry) replace(files []transport.SharedFile) {
	r.mu.Lock()
	r.files = append(files[:0:0], files...)
	r.mu.Unlock()
}

// List 레지스트리 사본 반환
func (r *Registry) List() []transport.SharedFile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]transport.SharedFile(nil), r.files...)
}

// Get 파일 ID로 조회
func (r *Registry) Get(fileID string) (transport.SharedFile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.files {
		if f.ID == fileID {
			return f, true
		}
	}
	return transport.SharedFile{}, false
}

// Len 레코드 수
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.files)
}
