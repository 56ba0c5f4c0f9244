/*
Package outputs holds generated artifacts between creation and the single
terminal action (download, copy, discard, promote or eviction) that ends
their lifecycle.
*/
package outputs

import (
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/khanglvm/skill-hub/internal/tier"
)

var (
	// ErrNotFound is returned when an output id is not held, either because
	// it never existed or because it was already finalized.
	ErrNotFound = errors.New("output not found")

	// ErrDuplicateID is returned when adding an id that is already held.
	ErrDuplicateID = errors.New("duplicate output id")
)

// CapacityError reports that an owner already holds the maximum number of
// outputs their tier allows and eviction is disabled.
type CapacityError struct {
	Owner string
	Tier  string
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("output store full for %s: %d/%d held on the %s tier; finalize or discard an output first",
		e.Owner, e.Limit, e.Limit, e.Tier)
}

// Kind tags the payload of an output.
type Kind string

const (
	KindText   Kind = "text"
	KindBinary Kind = "binary"
)

// Content is a textual or binary payload. Treat Data as immutable once
// the output has been added.
type Content struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text,omitempty"`
	Data []byte `json:"data,omitempty"`
}

// TextContent builds a text payload.
func TextContent(text string) Content {
	return Content{Kind: KindText, Text: text}
}

// BinaryContent builds a binary payload.
func BinaryContent(data []byte) Content {
	return Content{Kind: KindBinary, Data: data}
}

// Bytes returns the raw payload bytes.
func (c Content) Bytes() []byte {
	if c.Kind == KindText {
		return []byte(c.Text)
	}
	return c.Data
}

// Size returns the payload size in bytes.
func (c Content) Size() int {
	if c.Kind == KindText {
		return len(c.Text)
	}
	return len(c.Data)
}

// Output is one generated artifact.
type Output struct {
	ID          string         `json:"id"`
	Owner       string         `json:"owner"`
	Skill       tier.Skill     `json:"skill"`
	Content     Content        `json:"content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	Filename    string         `json:"filename,omitempty"`
	Description string         `json:"description,omitempty"`

	// Digest is the hex BLAKE3 hash of the payload.
	Digest string `json:"digest"`
}

// New builds an output with a fresh UUID and content digest. CreatedAt
// is left for the store to stamp.
func New(owner string, skill tier.Skill, content Content, metadata map[string]any) Output {
	return Output{
		ID:       uuid.NewString(),
		Owner:    owner,
		Skill:    skill,
		Content:  content,
		Metadata: metadata,
		Digest:   Digest(content),
	}
}

// Digest returns the hex BLAKE3-256 digest of a payload.
func Digest(c Content) string {
	sum := blake3.Sum256(c.Bytes())
	return hex.EncodeToString(sum[:])
}

// clone copies the metadata map so callers cannot race with the store.
func (o Output) clone() Output {
	o.Metadata = maps.Clone(o.Metadata)
	return o
}
