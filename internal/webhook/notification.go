package webhook

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FlexibleID accepts ids sent either as JSON strings or numbers.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return err
	}
	*f = FlexibleID(n.String())
	return nil
}

func (f FlexibleID) String() string { return string(f) }

type NotificationData struct {
	ID FlexibleID `json:"id"`
}

// Notification is the body the gateway posts for every event.
type Notification struct {
	ID          FlexibleID       `json:"id"`
	Action      string           `json:"action"`
	APIVersion  string           `json:"api_version"`
	Data        NotificationData `json:"data"`
	DateCreated string           `json:"date_created"`
	LiveMode    bool             `json:"live_mode"`
	Type        string           `json:"type"`
	UserID      FlexibleID       `json:"user_id"`
}

// Request is one webhook delivery as received by the transport.
type Request struct {
	Body        Notification
	RawBody     []byte
	QueryDataID string
	Signature   string
	RequestID   string
}

// DataID prefers the query parameter, which is what the signature covers.
func (r Request) DataID() string {
	if r.QueryDataID != "" {
		return r.QueryDataID
	}
	return r.Body.Data.ID.String()
}
