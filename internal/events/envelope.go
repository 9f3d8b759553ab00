package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformedEvent = errors.New("malformed event")
	ErrUnknownEvent   = errors.New("unknown event")
)

// Envelope is the provider's outer shape: {"event": "...", "data": {...}}
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Parse decodes the envelope without interpreting data
func Parse(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event", ErrMalformedEvent)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Envelope{}, fmt.Errorf("%w: missing data", ErrMalformedEvent)
	}
	if data[0] != '{' {
		return Envelope{}, fmt.Errorf("%w: data must be an object", ErrMalformedEvent)
	}
	env.Data = data
	return env, nil
}

// Reference extracts the provider reference from data without validating the
// payload, for audit logging. It returns "" when none is present.
func (e Envelope) Reference() string {
	var probe struct {
		Reference        string `json:"reference"`
		PaymentReference string `json:"paymentReference"`
	}
	if err := json.Unmarshal(e.Data, &probe); err != nil {
		return ""
	}
	if probe.Reference != "" {
		return probe.Reference
	}
	return probe.PaymentReference
}
