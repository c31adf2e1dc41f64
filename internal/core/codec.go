package core

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dkeye/copilot/internal/domain"
)

// EncodeEvent renders payload as a JSON object with an extra "type" field.
// payload must marshal to a JSON object (or be nil).
func EncodeEvent(kind domain.EventKind, payload any) (Frame, error) {
	head, err := json.Marshal(struct {
		Type domain.EventKind `json:"type"`
	}{kind})
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return head, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	body = bytes.TrimSpace(body)
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("encode %s: payload is not an object", kind)
	}
	if len(bytes.TrimSpace(body[1:len(body)-1])) == 0 {
		return head, nil
	}
	out := make([]byte, 0, len(head)+len(body))
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}
