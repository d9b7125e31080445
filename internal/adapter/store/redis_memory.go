package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"insurebot-core/internal/domain/entity"

	"github.com/redis/go-redis/v9"
)

// Profile hash fields.
const (
	fieldFirstName     = "first_name"
	fieldCity          = "city"
	fieldHomeValue     = "home_value"
	fieldStage         = "stage"
	fieldLastMessageID = "last_message_id"
	fieldUpdatedAt     = "updated_at"
)

// RedisMemory keeps each user's history in a list (one JSON turn per item,
// oldest first) and profile facts in a hash.
type RedisMemory struct {
	client *redis.Client
	retain int
	now    func() time.Time
}

func NewRedisMemory(client *redis.Client, retain int) *RedisMemory {
	if retain <= 0 {
		retain = 200
	}
	return &RedisMemory{client: client, retain: retain, now: time.Now}
}

func historyKey(userID string) string { return "history:" + userID }
func profileKey(userID string) string { return "profile:" + userID }

func (r *RedisMemory) GetHistory(ctx context.Context, userID string, maxTurns int) ([]entity.ConversationTurn, error) {
	start := int64(0)
	if maxTurns > 0 {
		start = -int64(maxTurns)
	}
	raw, err := r.client.LRange(ctx, historyKey(userID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	turns := make([]entity.ConversationTurn, 0, len(raw))
	for _, item := range raw {
		var t entity.ConversationTurn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			// a corrupt turn must not hide the rest of the conversation
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// appendTurn pushes a turn and trims the list atomically. When a message id
// is given, a marker key makes a repeated append of the same message a no-op.
var appendTurn = redis.NewScript(`
if ARGV[3] ~= "" then
	if not redis.call("SET", KEYS[2], "1", "NX", "EX", ARGV[4]) then
		return 0
	end
end
redis.call("RPUSH", KEYS[1], ARGV[1])
redis.call("LTRIM", KEYS[1], -tonumber(ARGV[2]), -1)
return 1
`)

// appendedTTL is how long a message id is remembered as already recorded.
const appendedTTL = 24 * time.Hour

func appendedKey(userID, messageID string) string {
	return "appended:" + userID + ":" + messageID
}

// AppendExchange pushes the turn and trims the list in one script. A turn
// whose meta carries a message_id already recorded is skipped, so retrying
// after an ambiguous failure cannot duplicate it.
func (r *RedisMemory) AppendExchange(ctx context.Context, userID, userText, botText string, meta map[string]string) error {
	b, err := json.Marshal(entity.ConversationTurn{
		User:      userText,
		Bot:       botText,
		Timestamp: r.now().UTC(),
		Meta:      meta,
	})
	if err != nil {
		return fmt.Errorf("failed to encode turn: %w", err)
	}
	messageID := meta[entity.MetaMessageID]
	keys := []string{historyKey(userID), appendedKey(userID, messageID)}
	err = appendTurn.Run(ctx, r.client, keys, b, r.retain, messageID, int(appendedTTL.Seconds())).Err()
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

func (r *RedisMemory) GetProfile(ctx context.Context, userID string) (entity.UserProfile, error) {
	fields, err := r.client.HGetAll(ctx, profileKey(userID)).Result()
	if err != nil {
		return entity.UserProfile{}, fmt.Errorf("failed to read profile: %w", err)
	}
	p := entity.NewProfile(userID)
	p.FirstName = fields[fieldFirstName]
	p.City = fields[fieldCity]
	p.LastMessageID = fields[fieldLastMessageID]
	if v, err := strconv.ParseInt(fields[fieldHomeValue], 10, 64); err == nil {
		p.HomeValue = v
	}
	if s := entity.Stage(fields[fieldStage]); s.Valid() {
		p.Stage = s
	}
	if ts, err := strconv.ParseInt(fields[fieldUpdatedAt], 10, 64); err == nil {
		p.UpdatedAt = time.Unix(ts, 0).UTC()
	}
	return p, nil
}

// UpdateProfile writes only the fields present in patch.
func (r *RedisMemory) UpdateProfile(ctx context.Context, userID string, patch entity.ProfilePatch) error {
	if patch.Empty() {
		return nil
	}
	values := profileFields(patch)
	values[fieldUpdatedAt] = strconv.FormatInt(r.now().Unix(), 10)
	if err := r.client.HSet(ctx, profileKey(userID), values).Err(); err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

func (r *RedisMemory) Erase(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, historyKey(userID), profileKey(userID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to erase user data: %w", err)
	}
	return nil
}

func profileFields(p entity.ProfilePatch) map[string]any {
	values := make(map[string]any, 6)
	if p.FirstName != nil {
		values[fieldFirstName] = *p.FirstName
	}
	if p.City != nil {
		values[fieldCity] = *p.City
	}
	if p.HomeValue != nil {
		values[fieldHomeValue] = strconv.FormatInt(*p.HomeValue, 10)
	}
	if p.Stage != nil {
		values[fieldStage] = string(*p.Stage)
	}
	if p.LastMessageID != nil {
		values[fieldLastMessageID] = *p.LastMessageID
	}
	return values
}
