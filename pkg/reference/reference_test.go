package reference

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryText(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	text := EntryText(Reference{LicenseName: "MIT", Repository: "acme/widgets", URL: "https://example.com/acme/widgets"}, now)

	assert.Equal(t, "[2026-03-01 12:30:00] Accepted generated code containing content licensed under MIT from acme/widgets (https://example.com/acme/widgets).", text)
}

func TestEntryTextFillsBlanks(t *testing.T) {
	text := EntryText(Reference{}, time.Unix(0, 0).UTC())
	assert.True(t, strings.Contains(text, "licensed under unknown from an unnamed repository."), text)
}

func TestMemoryLogAppendsInOrder(t *testing.T) {
	log := NewMemoryLog()
	now := time.Now()

	require.NoError(t, log.Append(context.Background(), NewEntry("tab", Reference{LicenseName: "MIT"}, now)))
	require.NoError(t, log.Append(context.Background(), NewEntry("tab", Reference{LicenseName: "Apache-2.0"}, now)))

	entries := log.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "MIT", entries[0].Reference.LicenseName)
	assert.Equal(t, "Apache-2.0", entries[1].Reference.LicenseName)

	entries[0].Text = "mutated"
	assert.NotEqual(t, "mutated", log.Entries()[0].Text)
}
