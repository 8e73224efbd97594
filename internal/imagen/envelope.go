package imagen

import (
	"encoding/json"
	"fmt"
)

// The service wraps some responses in {"data": ...} and returns others flat,
// depending on which API surface served the call. All decoding funnels
// through here so the rest of the client never probes response shapes.

// unwrap strips a {"data": ...} envelope when present.
func unwrap(raw []byte) []byte {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 {
		return env.Data
	}
	return raw
}

// decode unmarshals a response body into out after envelope normalization.
func decode(raw []byte, out any) error {
	if err := json.Unmarshal(unwrap(raw), out); err != nil {
		return fmt.Errorf("imagen: decode response: %w", err)
	}
	return nil
}

// projectIDFrom probes the known field names and nesting levels the service
// has been observed to use for a freshly created project's identifier.
func projectIDFrom(raw []byte) string {
	var body struct {
		ProjectUUID string `json:"project_uuid"`
		ProjectID   string `json:"project_id"`
		UUID        string `json:"uuid"`
		ID          string `json:"id"`
		Project     struct {
			ProjectUUID string `json:"project_uuid"`
			ID          string `json:"id"`
		} `json:"project"`
	}
	if err := json.Unmarshal(unwrap(raw), &body); err != nil {
		return ""
	}
	for _, candidate := range []string{
		body.ProjectUUID,
		body.ProjectID,
		body.UUID,
		body.ID,
		body.Project.ProjectUUID,
		body.Project.ID,
	} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}
