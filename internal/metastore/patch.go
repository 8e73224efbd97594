package metastore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// jobColumns whitelists the job fields a patch may touch and maps the record
// field names used by callers onto table columns. Anything outside this map is
// a programming error, not data.
var jobColumns = map[string]string{
	"status":          "status",
	"source":          "source",
	"error":           "error",
	"galleryId":       "gallery_id",
	"remoteProjectId": "remote_project_id",
	"rawKeys":         "raw_keys",
	"resultKeys":      "result_keys",
	"completedAt":     "completed_at",
}

// jsonColumns are stored as JSONB and need their values encoded before they
// can be bound as parameters.
var jsonColumns = map[string]bool{
	"raw_keys":    true,
	"result_keys": true,
}

// buildJobUpdate converts a flat field/value patch into an UPDATE statement
// that touches only the supplied fields and always stamps updated_at. Patch
// keys are sorted so the generated SQL is deterministic.
func buildJobUpdate(id string, patch map[string]any, now time.Time) (string, []any, error) {
	if len(patch) == 0 {
		return "", nil, fmt.Errorf("metastore: empty patch for job %s", id)
	}
	keys := make([]string, 0, len(patch))
	for k := range patch {
		if _, ok := jobColumns[k]; !ok {
			return "", nil, fmt.Errorf("metastore: unknown job field %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sets []string
	var args []any
	for _, k := range keys {
		col := jobColumns[k]
		val := patch[k]
		if jsonColumns[col] {
			encoded, err := json.Marshal(val)
			if err != nil {
				return "", nil, fmt.Errorf("metastore: encode %s: %w", k, err)
			}
			args = append(args, string(encoded))
			sets = append(sets, fmt.Sprintf("%s=$%d::jsonb", col, len(args)))
			continue
		}
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	args = append(args, now)
	sets = append(sets, fmt.Sprintf("updated_at=$%d", len(args)))
	args = append(args, id)

	stmt := fmt.Sprintf("UPDATE processing_jobs SET %s WHERE id=$%d", strings.Join(sets, ", "), len(args))
	return stmt, args, nil
}
