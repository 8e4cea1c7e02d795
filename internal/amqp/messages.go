package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Change operations carried by ChangeEvent.Op.
const (
	OpAdd     = "add"
	OpSave    = "save"
	OpDelete  = "delete"
	OpRestore = "restore"
)

// ChangeEvent announces that a budget table was mutated. It carries no row
// data: consumers re-read the store, so events are safe to coalesce.
type ChangeEvent struct {
	ID    string    `json:"id"`
	Table string    `json:"table"`
	Op    string    `json:"op"`
	RowID int64     `json:"row_id,omitempty"`
	At    time.Time `json:"at"`
}

func NewChangeEvent(table, op string, rowID int64) ChangeEvent {
	return ChangeEvent{
		ID:    uuid.NewString(),
		Table: table,
		Op:    op,
		RowID: rowID,
		At:    time.Now().UTC(),
	}
}

func (e ChangeEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ChangeEventFromJSON decodes and sanity-checks an event body.
func ChangeEventFromJSON(data []byte) (ChangeEvent, error) {
	var e ChangeEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return ChangeEvent{}, err
	}
	if e.Table == "" || e.Op == "" {
		return ChangeEvent{}, fmt.Errorf("change event missing table or op")
	}
	return e, nil
}
