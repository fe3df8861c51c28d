// Package store holds the helpers shared by every contract.Store backend.
package store

import (
	"board-lab/contract"
	"board-lab/errors"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// SeqKey renders a push sequence so that lexical order is numeric order.
func SeqKey(seq uint64) string {
	return fmt.Sprintf("%020d", seq)
}

// ParseSeqKey returns the sequence carried by the last segment of a pushed path.
func ParseSeqKey(path string) (uint64, bool) {
	seq, err := strconv.ParseUint(path[strings.LastIndexByte(path, '/')+1:], 10, 64)
	return seq, err == nil
}

// Join builds a store path from its segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Prefix builds a watch prefix, always terminated by a slash.
func Prefix(segments ...string) string {
	return Join(segments...) + "/"
}

// ValidatePath rejects empty paths, empty segments and trailing slashes.
func ValidatePath(path string) error {
	if path == "" || strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") || strings.Contains(path, "//") {
		return fmt.Errorf("%w: %q", errors.ErrInvalidPath, path)
	}
	return nil
}

// ValidatePrefix accepts a path followed by a slash, or the empty prefix.
func ValidatePrefix(prefix string) error {
	if prefix == "" {
		return nil
	}
	if !strings.HasSuffix(prefix, "/") {
		return fmt.Errorf("%w: prefix %q must end with /", errors.ErrInvalidPath, prefix)
	}
	return ValidatePath(strings.TrimSuffix(prefix, "/"))
}

// MergeFields merges top-level fields into a JSON object.
// An absent or null document starts from an empty object.
func MergeFields(current []byte, fields map[string]any) ([]byte, error) {
	doc := map[string]json.RawMessage{}
	if len(current) > 0 && string(current) != "null" {
		if err := json.Unmarshal(current, &doc); err != nil {
			return nil, fmt.Errorf("merge into non-object: %w", err)
		}
	}
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		doc[k] = raw
	}
	return json.Marshal(doc)
}

// Snapshot reads every path under prefix in key order by watching until the
// initial replay is complete.
func Snapshot(ctx context.Context, s contract.Store, prefix string) ([]contract.Change, error) {
	w, err := s.Watch(ctx, prefix)
	if err != nil {
		return nil, err
	}
	defer func() { _ = w.Close() }()

	var puts []contract.Change
	for {
		select {
		case c, ok := <-w.Changes():
			if !ok {
				if err = w.Err(); err != nil {
					return nil, err
				}
				return nil, errors.ErrStoreClosed
			}
			switch c.Kind {
			case contract.Synced:
				return puts, nil
			case contract.Put:
				puts = append(puts, c)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// GlobEscape escapes the glob metacharacters used by redis patterns.
func GlobEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
