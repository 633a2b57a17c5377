package model

// RoomStatus 방 상태
type RoomStatus string

const (
	RoomStatusOpen   RoomStatus = "OPEN"
	RoomStatusClosed RoomStatus = "CLOSED"
)

// String 메서드
func (s RoomStatus) String() string {
	return string(s)
}

// MemberRole 방 참가자 역할
type MemberRole string

const (
	MemberRoleHost   MemberRole = "HOST"
	MemberRoleMember MemberRole = "MEMBER"
)

func (r MemberRole) String() string {
	return string(r)
}
