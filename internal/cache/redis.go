package cache

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"studysync-backend/internal/board"
	"studysync-backend/internal/transport"
)

// RedisClient wraps the Redis client for hot room state. Redis holds the
// working copy of each room's action log, note document, and file
// registry so a relay restart can rehydrate without replaying Postgres.
type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient creates a new Redis client
func NewRedisClient(addr, password string, ttl time.Duration) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Printf("[Redis] Connected to %s", addr)
	return &RedisClient{client: client, ttl: ttl}, nil
}

func actionsKey(roomID string) string { return "room:" + roomID + ":actions" }
func noteKey(roomID string) string    { return "room:" + roomID + ":note" }
func filesKey(roomID string) string   { return "room:" + roomID + ":files" }

// AppendAction appends one action to the room's log
func (r *RedisClient) AppendAction(ctx context.Context, roomID string, a board.Action) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}

	key := actionsKey(roomID)
	if err := r.client.RPush(ctx, key, data).Err(); err != nil {
		log.Printf("[Redis] Failed to append action: %v", err)
		return err
	}
	r.client.Expire(ctx, key, r.ttl)

	return nil
}

// ReplaceActions swaps the room's whole action log atomically. Used for
// the full-list resynchronization after undo/redo.
func (r *RedisClient) ReplaceActions(ctx context.Context, roomID string, actions []board.Action) error {
	key := actionsKey(roomID)

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	for _, a := range actions {
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		pipe.RPush(ctx, key, data)
	}
	pipe.Expire(ctx, key, r.ttl)

	_, err := pipe.Exec(ctx)
	if err != nil {
		log.Printf("[Redis] Failed to replace actions: %v", err)
	}
	return err
}

// GetActions retrieves the room's action log in order
func (r *RedisClient) GetActions(ctx context.Context, roomID string) ([]board.Action, error) {
	results, err := r.client.LRange(ctx, actionsKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	actions := make([]board.Action, 0, len(results))
	for _, data := range results {
		var a board.Action
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			continue
		}
		actions = append(actions, a)
	}

	return actions, nil
}

// ActionCount returns the length of a room's action log
func (r *RedisClient) ActionCount(ctx context.Context, roomID string) (int64, error) {
	return r.client.LLen(ctx, actionsKey(roomID)).Result()
}

// SetNote stores the room's note content
func (r *RedisClient) SetNote(ctx context.Context, roomID, content string) error {
	return r.client.Set(ctx, noteKey(roomID), content, r.ttl).Err()
}

// GetNote retrieves the room's note content. A missing key is an empty
// document, not an error.
func (r *RedisClient) GetNote(ctx context.Context, roomID string) (string, error) {
	content, err := r.client.Get(ctx, noteKey(roomID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return content, err
}

// PutFile upserts one file record in the room's registry hash
func (r *RedisClient) PutFile(ctx context.Context, roomID string, f transport.SharedFile) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	key := filesKey(roomID)
	if err := r.client.HSet(ctx, key, f.ID, data).Err(); err != nil {
		log.Printf("[Redis] Failed to put file: %v", err)
		return err
	}
	r.client.Expire(ctx, key, r.ttl)

	return nil
}

// RemoveFile deletes one file record from the registry hash
func (r *RedisClient) RemoveFile(ctx context.Context, roomID, fileID string) error {
	return r.client.HDel(ctx, filesKey(roomID), fileID).Err()
}

// GetFiles retrieves the room's file registry, oldest first
func (r *RedisClient) GetFiles(ctx context.Context, roomID string) ([]transport.SharedFile, error) {
	results, err := r.client.HGetAll(ctx, filesKey(roomID)).Result()
	if err != nil {
		return nil, err
	}

	files := make([]transport.SharedFile, 0, len(results))
	for _, data := range results {
		var f transport.SharedFile
		if err := json.Unmarshal([]byte(data), &f); err != nil {
			continue
		}
		files = append(files, f)
	}
	// HGetAll order is random; clients expect share order.
	sort.Slice(files, func(i, j int) bool { return files[i].Timestamp.Before(files[j].Timestamp) })

	return files, nil
}

// DeleteRoom removes all cached state for a room
func (r *RedisClient) DeleteRoom(ctx context.Context, roomID string) error {
	return r.client.Del(ctx, actionsKey(roomID), noteKey(roomID), filesKey(roomID)).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Health checks if Redis is healthy
func (r *RedisClient) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
