// Package store implements the durable per-board event log.
package store

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Kunalpanche/Collaborative-Whiteboard/domain"
)

// Open selects a backend from the configured endpoint: "memory://" for a
// process-local store, "file:///dir" or a bare directory path for the
// log-structured file store.
func Open(endpoint string) (domain.BoardStore, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("board store endpoint is empty")
	}
	if !strings.Contains(endpoint, "://") {
		return NewFile(endpoint)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing board store endpoint: %w", err)
	}

	switch u.Scheme {
	case "memory", "mem":
		return NewMemory(), nil
	case "file":
		dir := u.Host + u.Path
		if dir == "" {
			return nil, fmt.Errorf("file board store endpoint %q has no path", endpoint)
		}
		return NewFile(dir)
	default:
		return nil, fmt.Errorf("unsupported board store scheme %q", u.Scheme)
	}
}
