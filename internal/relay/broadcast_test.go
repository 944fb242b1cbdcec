package relay

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/caption-relay/internal/storage"
)

func TestCaption_RelayedToPeersOnly(t *testing.T) {
	h := newHarness(t)
	a, b := h.admitPair()

	h.send(a, map[string]any{"type": TypeCaption, "messageId": "m1", "text": "hello", "isFinal": true})

	caption := last[CaptionMessage](t, b, TypeCaption)
	assert.Equal(t, "m1", caption.MessageID)
	assert.Equal(t, "A1", caption.SpeakerID)
	assert.Equal(t, "Alice", caption.SpeakerName)
	assert.Equal(t, "hello", caption.Text)
	assert.True(t, caption.IsFinal)
	assert.Equal(t, h.clock.Now().UnixMilli(), caption.Timestamp)
	assert.Zero(t, a.count(TypeCaption))
}

func TestCaption_MissingMessageIDIsGenerated(t *testing.T) {
	h := newHarness(t)
	a, b := h.admitPair()

	h.send(a, map[string]any{"type": TypeCaption, "text": "partial"})

	caption := last[CaptionMessage](t, b, TypeCaption)
	assert.NotEmpty(t, caption.MessageID)
	assert.False(t, caption.IsFinal)
}

func TestCaption_OversizedTextDropped(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTextLength = 8
	h := newHarnessWith(t, storage.NewMemory(), cfg)
	a, b := h.admitPair()

	h.send(a, map[string]any{"type": TypeCaption, "messageId": "m1", "text": strings.Repeat("x", 9)})
	h.send(a, map[string]any{"type": TypeLiveSTT, "text": strings.Repeat("y", 9)})
	h.send(a, map[string]any{"type": TypeCaption, "messageId": "m2", "text": "ünïcödé!"})

	require.Equal(t, 1, b.count(TypeCaption))
	assert.Equal(t, "m2", last[CaptionMessage](t, b, TypeCaption).MessageID)
	assert.Zero(t, b.count(TypeLiveSTT))
}

func TestBroadcast_FailingRecipientDoesNotStopOthers(t *testing.T) {
	h := newHarness(t)
	a, b := h.admitPair()
	c := h.attach("conn-c")
	h.join(c, "C1", "Carol")
	h.send(a, map[string]any{"type": TypeApproveJoin, "requesterId": "C1"})

	b.mu.Lock()
	b.failSend = true
	b.mu.Unlock()

	h.send(a, map[string]any{"type": TypeCaption, "messageId": "m1", "text": "still here"})

	assert.Equal(t, 1, c.count(TypeCaption))
	assert.Zero(t, b.count(TypeCaption))
	// The failing connection stays registered until its transport reports it gone.
	assert.Equal(t, 3, h.status().ConnectedCount)
}

func TestSpeaker_StartAndStopRelayed(t *testing.T) {
	h := newHarness(t)
	a, b := h.admitPair()

	h.send(a, map[string]any{"type": TypeRequestSpeak})

	changed := last[SpeakerMessage](t, b, TypeSpeakerChanged)
	assert.Equal(t, "A1", changed.SpeakerID)
	assert.Equal(t, "Alice", changed.SpeakerName)
	assert.Equal(t, "start", changed.Action)
	assert.Zero(t, a.count(TypeSpeakerChanged))

	// Several speakers at once are allowed.
	h.send(b, map[string]any{"type": TypeRequestSpeak})
	assert.Equal(t, 1, a.count(TypeSpeakerChanged))

	h.send(a, map[string]any{"type": TypeStopSpeak})
	stopped := last[SpeakerMessage](t, b, TypeSpeakerStopped)
	assert.Equal(t, "A1", stopped.SpeakerID)
	assert.Equal(t, "stop", stopped.Action)
}

func TestPresence_RelayedToPeers(t *testing.T) {
	h := newHarness(t)
	a, b := h.admitPair()

	h.send(a, map[string]any{"type": TypeButtonPressed})
	h.send(a, map[string]any{"type": TypeButtonReleased})
	h.send(a, map[string]any{"type": TypeLiveSTT, "text": "hel"})
	h.send(a, map[string]any{"type": TypeLiveTextContent, "text": "typed"})
	h.send(a, map[string]any{"type": TypeLiveTextingStatus, "isTexting": false})

	assert.Equal(t, 1, b.count(TypeButtonPressed))
	assert.Equal(t, 1, b.count(TypeButtonReleased))

	stt := last[PresenceMessage](t, b, TypeLiveSTT)
	assert.Equal(t, "A1", stt.ParticipantID)
	require.NotNil(t, stt.Text)
	assert.Equal(t, "hel", *stt.Text)
	assert.Nil(t, stt.IsTexting)

	content := last[PresenceMessage](t, b, TypeLiveTextContent)
	require.NotNil(t, content.Text)
	assert.Equal(t, "typed", *content.Text)

	texting := last[PresenceMessage](t, b, TypeLiveTextingStatus)
	require.NotNil(t, texting.IsTexting)
	assert.False(t, *texting.IsTexting)

	for _, typ := range []string{TypeButtonPressed, TypeLiveSTT, TypeLiveTextContent, TypeLiveTextingStatus} {
		assert.Zerof(t, a.count(typ), "sender received its own %s", typ)
	}
}

func TestDispatch_MalformedAndUnknownFramesDropped(t *testing.T) {
	h := newHarness(t)
	a, b := h.admitPair()
	totalA, totalB := a.total(), b.total()

	require.NoError(t, h.room.Deliver(a, []byte("{not json")))
	require.NoError(t, h.room.Deliver(a, []byte(`{"type":"teleport"}`)))
	h.flush()

	assert.Equal(t, totalA, a.total())
	assert.Equal(t, totalB, b.total())
	closed, _ := a.isClosed()
	assert.False(t, closed)
}

func TestDispatch_UnadmittedSenderDropped(t *testing.T) {
	h := newHarness(t)
	a := h.attach("conn-a")
	b := h.attach("conn-b")
	h.join(a, "A1", "Alice")
	h.join(b, "B1", "Bob")
	totalA := a.total()

	h.send(b, map[string]any{"type": TypeCaption, "messageId": "m1", "text": "sneaky"})
	h.send(b, map[string]any{"type": TypeRequestSpeak})
	h.send(b, map[string]any{"type": TypeRemoveParticipant, "participantId": "A1"})

	assert.Equal(t, totalA, a.total())
}

func TestCheckRoom_AnswersStatus(t *testing.T) {
	h := newHarness(t)
	_, _ = h.admitPair()
	probe := h.attach("conn-probe")

	h.send(probe, map[string]any{"type": TypeCheckRoom})

	st := last[RoomStatusMessage](t, probe, TypeRoomStatus)
	assert.Equal(t, "TALK47", st.RoomID)
	assert.Equal(t, 2, st.ParticipantCount)
	assert.Equal(t, 2, st.ActiveCount)
	assert.Equal(t, 2, st.ConnectedCount)
	assert.False(t, st.IsEmpty)
}

func TestCheckRoom_EmptyRoom(t *testing.T) {
	h := newHarness(t)
	probe := h.attach("conn-probe")

	h.send(probe, map[string]any{"type": TypeCheckRoom})

	st := last[RoomStatusMessage](t, probe, TypeRoomStatus)
	assert.True(t, st.IsEmpty)
	assert.Zero(t, st.ParticipantCount)
}
