package buffer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entities and operations the processor knows how to replay.
const (
	EntityProfile       = "profile"
	EntitySecurityEvent = "security_event"

	OperationAppend = "append"
	OperationUpdate = "update"
)

// Priorities sort ascending: security events replay before profile writes.
const (
	PriorityHighest       = 1
	PrioritySecurityEvent = 2
	PriorityProfile       = 3
	PriorityLowest        = 5
)

// Item is one pending write, replayed once Postgres is reachable again.
type Item struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Entity    string          `json:"entity"`
	Operation string          `json:"operation"`
	Data      json.RawMessage `json:"data"`
	Priority  int             `json:"priority"`
	Retries   int             `json:"retries"`
	Timestamp time.Time       `json:"timestamp"`

	bucketKey []byte
}

// NewItem encodes payload into an item for entity. The id may be empty, in
// which case Enqueue assigns one.
func NewItem(id, entity, operation string, priority int, payload any) (Item, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Item{}, fmt.Errorf("encode %s payload: %w", entity, err)
	}
	return Item{
		ID:        id,
		Entity:    entity,
		Operation: operation,
		Priority:  priority,
		Data:      data,
	}, nil
}

// Decode unmarshals the payload into dst.
func (i Item) Decode(dst any) error {
	if len(i.Data) == 0 {
		return fmt.Errorf("buffer item %s has no payload", i.ID)
	}
	return json.Unmarshal(i.Data, dst)
}

func (i *Item) normalize() {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Priority < PriorityHighest || i.Priority > PriorityLowest {
		i.Priority = PriorityProfile
	}
	if i.Timestamp.IsZero() {
		i.Timestamp = time.Now().UTC()
	}
}
