package model

import (
	"time"
)

// User 사용자
type User struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email      string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Nickname   string    `gorm:"type:varchar(100);not null" json:"nickname"`
	ProfileImg *string   `gorm:"type:text" json:"profile_img,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Rooms []RoomMember `gorm:"foreignKey:UserID" json:"rooms,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// Room 학습 방. Code는 클라이언트가 join에 쓰는 외부 식별자.
type Room struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Code      string     `gorm:"type:varchar(100);uniqueIndex;not null" json:"code"`
	Title     string     `gorm:"type:varchar(200);not null" json:"title"`
	HostID    int64      `gorm:"not null" json:"host_id"`
	Status    string     `gorm:"type:varchar(20);default:'OPEN'" json:"status"` // OPEN, CLOSED
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Host    User          `gorm:"foreignKey:HostID" json:"host,omitempty"`
	Members []RoomMember  `gorm:"foreignKey:RoomID" json:"members,omitempty"`
	Actions []BoardAction `gorm:"foreignKey:RoomID" json:"actions,omitempty"`
	Files   []SharedFile  `gorm:"foreignKey:RoomID" json:"files,omitempty"`
}

func (Room) TableName() string {
	return "rooms"
}

// RoomMember 방 참가 이력
type RoomMember struct {
	ID       int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID   int64      `gorm:"not null;index" json:"room_id"`
	UserID   int64      `gorm:"not null" json:"user_id"`
	Role     string     `gorm:"type:varchar(20);default:'MEMBER'" json:"role"` // HOST, MEMBER
	JoinedAt time.Time  `gorm:"autoCreateTime" json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`

	// Relations
	Room Room `gorm:"foreignKey:RoomID" json:"room,omitempty"`
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (RoomMember) TableName() string {
	return "room_members"
}

// BoardAction 화이트보드 액션 로그 한 건. Payload는 와이어 포맷 그대로의
// 액션 JSON이며, Seq는 방 안에서 릴레이가 찍은 단조 증가 순번이다.
type BoardAction struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID    int64     `gorm:"not null;index:idx_room_seq" json:"room_id"`
	Seq       int64     `gorm:"not null;index:idx_room_seq" json:"seq"`
	UserID    string    `gorm:"type:varchar(100);not null" json:"user_id"`
	Payload   string    `gorm:"type:jsonb;not null" json:"payload"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Room Room `gorm:"foreignKey:RoomID" json:"room,omitempty"`
}

func (BoardAction) TableName() string {
	return "board_actions"
}

// RoomNote 방마다 하나뿐인 공유 노트 문서. 전체 교체(last-writer-wins)로만
// 갱신된다.
type RoomNote struct {
	RoomID    int64     `gorm:"primaryKey" json:"room_id"`
	Content   string    `gorm:"type:text;not null;default:''" json:"content"`
	SavedBy   string    `gorm:"type:varchar(100)" json:"saved_by"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Room Room `gorm:"foreignKey:RoomID" json:"room,omitempty"`
}

func (RoomNote) TableName() string {
	return "room_notes"
}

// SharedFile 방에 공유된 파일 메타데이터. 바이너리는 S3에 있고 생성 후
// 수정되지 않는다.
type SharedFile struct {
	ID         string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	RoomID     int64      `gorm:"not null;index" json:"room_id"`
	Name       string     `gorm:"type:varchar(255);not null" json:"name"`
	Size       int64      `gorm:"not null" json:"size"`
	MimeType   string     `gorm:"type:varchar(100)" json:"mime_type"`
	URL        string     `gorm:"type:text;not null" json:"url"`
	S3Key      *string    `gorm:"type:varchar(500)" json:"s3_key,omitempty"` // AWS S3 객체 키
	UploaderID string     `gorm:"type:varchar(100);not null" json:"uploader_id"`
	UploadedBy string     `gorm:"type:varchar(100);not null" json:"uploaded_by"`
	DeletedAt  *time.Time `gorm:"index" json:"deleted_at,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Room Room `gorm:"foreignKey:RoomID" json:"room,omitempty"`
}

func (SharedFile) TableName() string {
	return "shared_files"
}
