// Package store declares the persistence contract for generated documentation.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrNotFound signals that the requested artifact does not exist.
var ErrNotFound = errors.New("doc not found")

// PersistedDoc is the durable record for one owner/repo pair. The slug is
// both the persistence key and the public addressable path for the artifact.
type PersistedDoc struct {
	Slug      string
	Owner     string
	RepoURL   string
	RepoName  string
	Docs      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocsRepository persists generated documentation keyed by slug. Upsert is
// idempotent: repeated generations for the same owner/repo overwrite the same
// record rather than duplicating it.
type DocsRepository interface {
	// Upsert stores docs under the slug derived from (repoName, owner) and
	// returns the canonical record.
	Upsert(ctx context.Context, owner, repoURL, repoName string, docs json.RawMessage) (PersistedDoc, error)
	// Get loads a single artifact or returns ErrNotFound.
	Get(ctx context.Context, slug string) (PersistedDoc, error)
}

// Slug derives the deterministic persistence key for a repo/owner pair. The
// repo name is sanitized into a path/subdomain-safe label; a short digest of
// the owner identity keeps slugs from different owners apart.
func Slug(repoName, owner string) string {
	sum := sha256.Sum256([]byte(owner))
	return sanitizeLabel(repoName) + "-" + hex.EncodeToString(sum[:4])
}

func sanitizeLabel(s string) string {
	var b strings.Builder
	dash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "repo"
	}
	return out
}
