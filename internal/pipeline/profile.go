package pipeline

import (
	"path"
	"strings"
)

// Profiles holds the configured editing profile ids for the two file classes.
type Profiles struct {
	RAW string
	JPG string
}

// Resolve picks the profile for a batch: an explicit override always wins,
// an all-JPEG batch gets the JPG profile, anything else gets the RAW profile.
// An empty result means the deployment is missing configuration.
func (p Profiles) Resolve(rawKeys []string, override string) string {
	if override != "" {
		return override
	}
	if allJPEG(rawKeys) {
		return p.JPG
	}
	return p.RAW
}

func allJPEG(keys []string) bool {
	if len(keys) == 0 {
		return false
	}
	for _, key := range keys {
		switch strings.ToLower(path.Ext(key)) {
		case ".jpg", ".jpeg":
		default:
			return false
		}
	}
	return true
}
