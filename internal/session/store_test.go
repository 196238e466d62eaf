package session

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refinery/internal/protocol"
)

func sessionAt(t *testing.T, name string, created time.Time) *Session {
	t.Helper()
	s := New()
	s.Name = name
	s.CreatedAt = created
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	kv := newMemKV()
	st := NewStore(kv)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// Session with a translated message.
	translated := sessionAt(t, "translated", base)
	msg := NewMessage(AuthorAI, "[Final Output]\nBonjour")
	msg.Parsed = protocol.Parse(msg.Content)
	msg.Translation = &Translation{Lang: "fr", Content: "Bonjour"}
	translated.Append(msg)
	translated.RecordExchange([]ExchangePart{{Text: "greet"}}, msg.Content)
	require.NoError(t, st.Add(translated))

	// Session with an attachment.
	attached := sessionAt(t, "attached", base.Add(time.Minute))
	userMsg := NewMessage(AuthorUser, "review this file")
	userMsg.Attachment = &Attachment{
		Name:     "notes.txt",
		MIMEType: "text/plain",
		Size:     12,
		Data:     []byte("héllo wörld\n"),
	}
	attached.Append(userMsg)
	require.NoError(t, st.Add(attached))

	// Empty session.
	empty := sessionAt(t, "empty", base.Add(2*time.Minute))
	require.NoError(t, st.Add(empty))

	// Reload from the same KV and compare structurally.
	reloaded := NewStore(kv)
	require.NoError(t, reloaded.Load())

	if diff := cmp.Diff(st.Sessions(), reloaded.Sessions()); diff != "" {
		t.Fatalf("session collection did not round-trip (-orig +reloaded):\n%s", diff)
	}
	assert.Equal(t, st.ActiveID(), reloaded.ActiveID())
}

func TestDeleteActivePromotesNewest(t *testing.T) {
	st := NewStore(newMemKV())
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	a := sessionAt(t, "a", base)
	b := sessionAt(t, "b", base.Add(time.Hour))
	c := sessionAt(t, "c", base.Add(30*time.Minute))
	require.NoError(t, st.Add(a))
	require.NoError(t, st.Add(b))
	require.NoError(t, st.Add(c))

	// c was added last so it is active; delete it.
	require.Equal(t, c.ID, st.ActiveID())
	remaining, err := st.Delete(c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)

	// b has the largest CreatedAt of the remainder.
	assert.Equal(t, b.ID, st.ActiveID())
}

func TestDeleteLastSessionClearsState(t *testing.T) {
	kv := newMemKV()
	st := NewStore(kv)
	s := New()
	require.NoError(t, st.Add(s))

	remaining, err := st.Delete(s.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
	assert.Nil(t, st.Active())

	_, ok, _ := kv.Get(KeySessions)
	assert.False(t, ok, "sessions key must be cleared")
	_, ok, _ = kv.Get(KeyActive)
	assert.False(t, ok, "active key must be cleared")
}

func TestLoadCorruptRecordFallsBackClean(t *testing.T) {
	kv := newMemKV()
	require.NoError(t, kv.Set(KeySessions, "{not json"))
	require.NoError(t, kv.Set(KeyActive, "sess_1"))

	st := NewStore(kv)
	require.NoError(t, st.Load(), "corrupt state must not crash startup")
	assert.Equal(t, 0, st.Len())

	_, ok, _ := kv.Get(KeySessions)
	assert.False(t, ok, "corrupt record must be discarded")
}

func TestLoadDanglingActivePointer(t *testing.T) {
	kv := newMemKV()
	st := NewStore(kv)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	a := sessionAt(t, "a", base)
	b := sessionAt(t, "b", base.Add(time.Hour))
	require.NoError(t, st.Add(a))
	require.NoError(t, st.Add(b))
	require.NoError(t, kv.Set(KeyActive, "sess_gone"))

	reloaded := NewStore(kv)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, b.ID, reloaded.ActiveID(), "dangling pointer promotes newest")
}

func TestActivateUnknownSession(t *testing.T) {
	st := NewStore(newMemKV())
	require.NoError(t, st.Add(New()))
	assert.Error(t, st.Activate("sess_missing"))
}

func TestRename(t *testing.T) {
	st := NewStore(newMemKV())
	s := New()
	require.NoError(t, st.Add(s))
	require.NoError(t, st.Rename(s.ID, "my project"))
	assert.Equal(t, "my project", st.Get(s.ID).Name)
}

func TestDeriveName(t *testing.T) {
	assert.Equal(t, "short task", DeriveName("short task"))
	assert.Equal(t, DefaultName, DeriveName("   "))

	long := strings.Repeat("x", 80)
	derived := DeriveName(long)
	assert.Len(t, []rune(derived), 50)

	assert.Equal(t, "line one line two", DeriveName("line one\nline two"))
}
