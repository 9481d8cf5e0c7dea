package broadcast

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBroadcaster_PublishesToCompetitionTopic(t *testing.T) {
	pubSub := NewPubSub(testLogger())
	defer pubSub.Close()

	competitionID := uuid.New()
	matchID := uuid.New()

	messages, err := pubSub.Subscribe(context.Background(), Topic(competitionID))
	require.NoError(t, err)

	b := NewBroadcaster(pubSub, testLogger())
	b.Publish(context.Background(), Event{
		Type:          EventVoteUpdate,
		CompetitionID: competitionID,
		Payload:       VoteUpdate{MatchID: matchID, Entry1Votes: 2, Entry2Votes: 1, TotalVotes: 3},
	})

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, string(EventVoteUpdate), msg.Metadata.Get("type"))

		var decoded struct {
			Type    EventType  `json:"type"`
			Payload VoteUpdate `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
		assert.Equal(t, EventVoteUpdate, decoded.Type)
		assert.Equal(t, matchID, decoded.Payload.MatchID)
		assert.Equal(t, 3, decoded.Payload.TotalVotes)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestBroadcaster_OtherTopicsDoNotReceive(t *testing.T) {
	pubSub := NewPubSub(testLogger())
	defer pubSub.Close()

	messages, err := pubSub.Subscribe(context.Background(), Topic(uuid.New()))
	require.NoError(t, err)

	NewBroadcaster(pubSub, testLogger()).Publish(context.Background(), Event{
		Type:          EventMatchReady,
		CompetitionID: uuid.New(),
	})

	select {
	case msg := <-messages:
		t.Fatalf("unexpected message %s", msg.Payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBroadcaster_PublishFailureIsSwallowed(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, nil)
	require.NoError(t, pubSub.Close())

	b := NewBroadcaster(pubSub, testLogger())
	assert.NotPanics(t, func() {
		b.Publish(context.Background(), Event{Type: EventCompetitionCreated, CompetitionID: uuid.New()})
	})
}

func TestStream_ForwardsEvents(t *testing.T) {
	pubSub := NewPubSub(testLogger())
	defer pubSub.Close()

	competitionID := uuid.New()
	stream := NewStream(pubSub, func(*http.Request) bool { return true }, testLogger())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stream.Serve(w, r, competitionID)
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	b := NewBroadcaster(pubSub, testLogger())

	// The subscription is registered right after the handshake, so retry until one arrives.
	var payload []byte
	for attempt := 0; attempt < 40 && payload == nil; attempt++ {
		b.Publish(context.Background(), Event{
			Type:          EventMatchFinalized,
			CompetitionID: competitionID,
			Payload:       MatchFinalized{MatchID: uuid.New(), WinnerID: uuid.New()},
		})

		conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		_, data, err := conn.ReadMessage()
		if err == nil {
			payload = data
			break
		}
		if ne, ok := err.(interface{ Timeout() bool }); !ok || !ne.Timeout() {
			require.NoError(t, err)
		}
	}
	require.NotNil(t, payload, "no event received over websocket")

	var decoded Event
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, EventMatchFinalized, decoded.Type)
	assert.Equal(t, competitionID, decoded.CompetitionID)
}
