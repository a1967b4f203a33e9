// Content hashing for change detection and export build ids.

package docs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// hashProjection is the exact field set the content hash covers. Audit
// entries, facts and canonical claims deliberately do not participate, so
// bookkeeping mutations do not invalidate downstream embeddings.
type hashProjection struct {
	Slug           string   `json:"slug"`
	Version        string   `json:"version"`
	Title          string   `json:"title"`
	Stage          Stage    `json:"stage"`
	Summary        string   `json:"summary"`
	UpdatedAt      string   `json:"updatedAt"`
	LastReviewedAt string   `json:"lastReviewedAt"`
	Owners         []string `json:"owners"`
	Topics         []string `json:"topics"`
	Markdown       string   `json:"markdown"`
}

// ContentHash returns the SHA-256 hex digest of the canonical JSON projection
// of the governance-relevant fields plus the markdown body.
func ContentHash(meta *Meta, markdown string) string {
	p := hashProjection{
		Slug:           meta.Slug,
		Version:        meta.Version,
		Title:          meta.Title,
		Stage:          meta.Stage,
		Summary:        meta.Summary,
		UpdatedAt:      meta.UpdatedAt,
		LastReviewedAt: meta.LastReviewedAt,
		Owners:         emptyIfNil(meta.Owners),
		Topics:         emptyIfNil(meta.Topics),
		Markdown:       markdown,
	}
	data, err := json.Marshal(&p)
	if err != nil {
		// Marshalling a struct of strings cannot fail.
		panic(err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashText returns the SHA-256 hex digest of arbitrary text. Used for chunk
// hashes in the embeddings manifest.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
