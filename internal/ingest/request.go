package ingest

import (
	"bytes"
	"encoding/json"
)

// Request is a decoded ingest body. Fields that are missing or of the wrong
// JSON type decode to their zero value and fail validation later.
type Request struct {
	ID       string
	Readings []json.RawMessage
}

// ParseRequest decodes raw into a Request.
//
// It returns ErrInvalidRequest when raw is empty, is not a JSON object, or is
// an object with no keys.
func ParseRequest(raw []byte) (*Request, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrInvalidRequest
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || len(fields) == 0 {
		return nil, ErrInvalidRequest
	}

	req := &Request{}

	if id, ok := fields["id"]; ok {
		if err := json.Unmarshal(id, &req.ID); err != nil {
			req.ID = ""
		}
	}

	if readings, ok := fields["readings"]; ok {
		if err := json.Unmarshal(readings, &req.Readings); err != nil {
			req.Readings = nil
		}
	}

	return req, nil
}
