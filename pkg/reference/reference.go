// Package reference records license attributions attached to generated code.
package reference

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Span is the character range of generated content that a reference covers.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Reference is a license attribution surfaced by the backend.
type Reference struct {
	LicenseName string `json:"licenseName,omitempty"`
	Repository  string `json:"repository,omitempty"`
	URL         string `json:"url,omitempty"`
	Span        *Span  `json:"recommendationContentSpan,omitempty"`
}

// Entry is one line of the reference log.
type Entry struct {
	Time      time.Time `json:"time"`
	TabID     string    `json:"tabId,omitempty"`
	Text      string    `json:"text"`
	Reference Reference `json:"reference"`
}

// Log is the process-wide, append-only attribution sink.
type Log interface {
	Append(ctx context.Context, entry Entry) error
}

// EntryText renders the human-readable attribution line for ref.
func EntryText(ref Reference, now time.Time) string {
	license := strings.TrimSpace(ref.LicenseName)
	if license == "" {
		license = "unknown"
	}
	repo := strings.TrimSpace(ref.Repository)
	if repo == "" {
		repo = "an unnamed repository"
	}
	text := fmt.Sprintf("[%s] Accepted generated code containing content licensed under %s from %s",
		now.Format("2006-01-02 15:04:05"), license, repo)
	if ref.URL != "" {
		text += " (" + ref.URL + ")"
	}
	return text + "."
}

// NewEntry builds the log entry for ref at time now.
func NewEntry(tabID string, ref Reference, now time.Time) Entry {
	return Entry{Time: now, TabID: tabID, Text: EntryText(ref, now), Reference: ref}
}

// MemoryLog keeps entries in process memory.
type MemoryLog struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryLog creates an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Append(_ context.Context, entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// Entries returns a copy of everything appended so far.
func (l *MemoryLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}
