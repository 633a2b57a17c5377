package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ParticipantData Redis에 저장될 참가자 상태 데이터
type ParticipantData struct {
	UserID        string `json:"user_id"`
	Nickname      string `json:"nickname"`
	JoinedAt      int64  `json:"joined_at"`
	LastHeartbeat int64  `json:"last_heartbeat"`
	ServerID      string `json:"server_id"` // 멀티 서버 확장 대비
}

// Manager 방 단위 Presence 관리자. 참가자마다 TTL 키 하나와 방 로스터
// 세트 하나를 유지한다. 키가 만료되면 오프라인으로 취급한다.
type Manager struct {
	client *redis.Client
	ctx    context.Context
	ttl    time.Duration
}

// NewManager 생성자
func NewManager(addr string, password string, db int, ttl time.Duration) *Manager {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &Manager{
		client: rdb,
		ctx:    context.Background(),
		ttl:    ttl,
	}
}

// Key 생성 유틸
func (m *Manager) memberKey(roomID, userID string) string {
	return fmt.Sprintf("presence:room:%s:member:%s", roomID, userID)
}

func (m *Manager) rosterKey(roomID string) string {
	return fmt.Sprintf("presence:room:%s:roster", roomID)
}

// Join 참가자 등록 (Connect)
func (m *Manager) Join(roomID, userID, nickname, serverID string) error {
	now := time.Now().Unix()
	data := ParticipantData{
		UserID:        userID,
		Nickname:      nickname,
		JoinedAt:      now,
		LastHeartbeat: now,
		ServerID:      serverID,
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	pipe := m.client.TxPipeline()
	pipe.Set(m.ctx, m.memberKey(roomID, userID), jsonData, m.ttl)
	pipe.SAdd(m.ctx, m.rosterKey(roomID), userID)
	pipe.Expire(m.ctx, m.rosterKey(roomID), 24*time.Hour)
	_, err = pipe.Exec(m.ctx)
	return err
}

// Heartbeat 생존 신고 (TTL 연장)
func (m *Manager) Heartbeat(roomID, userID string) error {
	result, err := m.client.Expire(m.ctx, m.memberKey(roomID, userID), m.ttl).Result()
	if err != nil {
		return err
	}
	if !result {
		return fmt.Errorf("user %s not present in room %s", userID, roomID)
	}
	return nil
}

// Leave 참가자 제거 (Disconnect)
func (m *Manager) Leave(roomID, userID string) error {
	pipe := m.client.TxPipeline()
	pipe.Del(m.ctx, m.memberKey(roomID, userID))
	pipe.SRem(m.ctx, m.rosterKey(roomID), userID)
	_, err := pipe.Exec(m.ctx)
	return err
}

// Roster 방의 살아있는 참가자 목록 조회. TTL이 끝난 멤버는 로스터에서
// 걷어내면서 건너뛴다.
func (m *Manager) Roster(roomID string) ([]ParticipantData, error) {
	userIDs, err := m.client.SMembers(m.ctx, m.rosterKey(roomID)).Result()
	if err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return []ParticipantData{}, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = m.memberKey(roomID, id)
	}

	// MGET으로 한 번에 조회
	results, err := m.client.MGet(m.ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	participants := make([]ParticipantData, 0, len(results))
	for i, result := range results {
		if result == nil {
			// Expired member; lazily drop from the roster.
			m.client.SRem(m.ctx, m.rosterKey(roomID), userIDs[i])
			continue
		}

		strVal, ok := result.(string)
		if !ok {
			continue
		}

		var data ParticipantData
		if err := json.Unmarshal([]byte(strVal), &data); err == nil {
			participants = append(participants, data)
		}
	}

	return participants, nil
}

// Count 방의 살아있는 참가자 수
func (m *Manager) Count(roomID string) (int, error) {
	roster, err := m.Roster(roomID)
	if err != nil {
		return 0, err
	}
	return len(roster), nil
}

// Close 연결 종료
func (m *Manager) Close() error {
	return m.client.Close()
}
