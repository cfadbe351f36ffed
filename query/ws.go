package query

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/zots0127/io/blobs"
)

var log = logrus.WithField("logger", "query")

var wsupgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades the connection and streams blob store events to it until
// the client goes away.
func WSHandler(stream *blobs.EventStream, w http.ResponseWriter, r *http.Request) {
	conn, err := wsupgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugf("Failed to set websocket upgrade: %+v", err)
		return
	}
	defer conn.Close()

	worker := newWorker(conn, stream)
	log.Debugf("Subscribing %v to blob events", conn.RemoteAddr())
	worker.Run()
}

// subscribeBlobs subscribes the connection to events, either for one digest
// or for all blobs when no digest is given.
type subscribeBlobs struct {
	Digest string `json:"sha1,omitempty"`
}

type unSubscribeBlobs struct {
	Digest string `json:"sha1,omitempty"`
}

func (sb *subscribeBlobs) Action(l *wsWorker) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.filters[sb.Digest]; ok {
		// already subscribed nop
		return nil
	}
	log.WithField("conn", l.conn.RemoteAddr().String()).WithField("sha1", sb.Digest).Info("Subscribed to blob events")
	l.filters[sb.Digest] = true
	return nil
}

func (sb *unSubscribeBlobs) Action(l *wsWorker) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.filters, sb.Digest)
	return nil
}

type jsonCommand struct {
	Command string `json:"command"`
}

var cmds = map[string](func() wsCommandHandler){
	"subscribe":   func() wsCommandHandler { return &subscribeBlobs{} },
	"unsubscribe": func() wsCommandHandler { return &unSubscribeBlobs{} },
}

func extractCommand(data []byte) (wsCommandHandler, error) {
	cmd := jsonCommand{}
	err := json.Unmarshal(data, &cmd)
	if err != nil {
		return nil, err
	}
	if cmdFactory, ok := cmds[cmd.Command]; ok {
		cmdObj := cmdFactory()
		err = json.Unmarshal(data, cmdObj)
		if err != nil {
			return nil, err
		}
		return cmdObj, nil
	}
	return nil, fmt.Errorf("unsupported command type %s", cmd.Command)
}

type wsCommandHandler interface {
	Action(listener *wsWorker) error
}

type wsWorker struct {
	conn    *websocket.Conn
	stream  *blobs.EventStream
	events  chan blobs.Event
	mu      sync.Mutex
	filters map[string]bool
}

func newWorker(conn *websocket.Conn, stream *blobs.EventStream) *wsWorker {
	return &wsWorker{
		conn:    conn,
		stream:  stream,
		events:  stream.Subscribe(),
		filters: make(map[string]bool),
	}
}

func (l *wsWorker) wants(event blobs.Event) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filters[""] || l.filters[string(event.Digest)]
}

func (l *wsWorker) forwardEvents() {
	for event := range l.events {
		if !l.wants(event) {
			continue
		}
		if err := l.conn.WriteJSON(event); err != nil {
			log.WithError(err).Debug("Dropping websocket event subscriber")
			return
		}
	}
}

func (l *wsWorker) Run() {
	defer l.Close()

	go l.forwardEvents()

	// main cmd loop
	for {
		msgType, msg, err := l.conn.ReadMessage()
		if msgType == websocket.TextMessage {
			cmd, cmdErr := extractCommand(msg)
			if cmdErr != nil {
				log.WithError(cmdErr).Error("Invalid command")
				break
			}

			if actErr := cmd.Action(l); actErr != nil {
				log.WithError(actErr).Error("Command failed")
				break
			}
		}
		if err != nil || msgType == websocket.CloseMessage {
			break
		}
	}
}

func (l *wsWorker) Close() {
	log.Debugf("Unsubscribing %v from blob events", l.conn.RemoteAddr())
	l.stream.Unsubscribe(l.events)
}
