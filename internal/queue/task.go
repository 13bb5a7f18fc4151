package queue

import (
	"errors"
	"fmt"
)

const (
	TaskDispatch = "dispatch"
	TaskPoll     = "poll"
)

var ErrMalformedTask = errors.New("malformed task")

// Task is one stream entry. Values are flat strings so entries stay
// readable with redis-cli.
type Task struct {
	Type       string
	DocumentID string
}

func (t Task) values() map[string]any {
	return map[string]any{
		"type":       t.Type,
		"documentId": t.DocumentID,
	}
}

func decodeTask(values map[string]any) (Task, error) {
	typ, _ := values["type"].(string)
	docID, _ := values["documentId"].(string)
	if typ == "" || docID == "" {
		return Task{}, fmt.Errorf("%w: %v", ErrMalformedTask, values)
	}
	return Task{Type: typ, DocumentID: docID}, nil
}
