package query

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zots0127/io/blobs"
)

func TestShouldDecodeJsonCommands(t *testing.T) {
	cases := []struct {
		msg string
		res interface{}
	}{{"{\"command\":\"subscribe\",\"sha1\":\"9bb4dced33ebd2ab9b829686df3ad5923b08846b\"}", &subscribeBlobs{Digest: "9bb4dced33ebd2ab9b829686df3ad5923b08846b"}},
		{"{\"command\":\"subscribe\"}", &subscribeBlobs{}},
		{"{\"command\":\"unsubscribe\",\"sha1\":\"9bb4dced33ebd2ab9b829686df3ad5923b08846b\"}", &unSubscribeBlobs{Digest: "9bb4dced33ebd2ab9b829686df3ad5923b08846b"}}}

	for _, c := range cases {
		res, err := extractCommand([]byte(c.msg))
		assert.NoError(t, err)
		assert.Equal(t, c.res, res)
	}
}

func TestShouldRejectUnknownCommands(t *testing.T) {
	_, err := extractCommand([]byte("{\"command\":\"subscribe-all-the-things\"}"))
	assert.Error(t, err)

	_, err = extractCommand([]byte("not json"))
	assert.Error(t, err)
}

func TestShouldStreamEventsToSubscribedClient(t *testing.T) {
	stream := blobs.NewEventStream()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WSHandler(stream, w, r)
	}))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{\"command\":\"subscribe\"}")))

	// the subscribe command races the publish below; retry until the
	// subscription is live
	received := make(chan blobs.Event, 1)
	go func() {
		var event blobs.Event
		if err := conn.ReadJSON(&event); err == nil {
			received <- event
		}
	}()

	deadline := time.After(2 * time.Second)
	for {
		stream.Publish(blobs.Event{Type: blobs.EventBlobStored, Digest: "9bb4dced33ebd2ab9b829686df3ad5923b08846b", Length: 18})
		select {
		case event := <-received:
			assert.Equal(t, blobs.EventBlobStored, event.Type)
			assert.Equal(t, blobs.Digest("9bb4dced33ebd2ab9b829686df3ad5923b08846b"), event.Digest)
			return
		case <-deadline:
			t.Fatal("no event received")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestShouldFilterEventsByDigest(t *testing.T) {
	stream := blobs.NewEventStream()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WSHandler(stream, w, r)
	}))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	wanted := blobs.DigestOf([]byte("wanted"))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte("{\"command\":\"subscribe\",\"sha1\":\""+string(wanted)+"\"}")))

	received := make(chan blobs.Event, 1)
	go func() {
		var event blobs.Event
		if err := conn.ReadJSON(&event); err == nil {
			received <- event
		}
	}()

	deadline := time.After(2 * time.Second)
	for {
		stream.Publish(blobs.Event{Type: blobs.EventBlobStored, Digest: blobs.DigestOf([]byte("unwanted"))})
		stream.Publish(blobs.Event{Type: blobs.EventBlobDeleted, Digest: wanted})
		select {
		case event := <-received:
			// only the subscribed digest comes through
			assert.Equal(t, wanted, event.Digest)
			assert.Equal(t, blobs.EventBlobDeleted, event.Type)
			return
		case <-deadline:
			t.Fatal("no event received")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
