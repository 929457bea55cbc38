package observer

import (
	"encoding/binary"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/kaelari/lumagrid/internal/wire"
)

// WebSocketSink broadcasts observer events to connected peers, in
// text (JSON) or packed (wire-format) encoding per client (spec §4.6:
// "WebSocket (text and packed): broadcasts to connected peers").
// Adapted from livefeed/streamer.go's client registry, drop-oldest
// broadcast channel and read/write pumps.
type WebSocketSink struct {
	mu        sync.RWMutex
	clients   map[*wsClient]bool
	broadcast chan wsRecord
	upgrader  websocket.Upgrader
	logger    *logrus.Logger
	order     binary.ByteOrder
}

type wsClient struct {
	conn   *websocket.Conn
	packed bool
	send   chan wsRecord
	id     string
}

type wsRecord struct {
	recordType wire.RecordType
	region     string
	ts         time.Time
	events     []Event
}

type wsTextMessage struct {
	Type   string  `json:"type"`
	Region string  `json:"region,omitempty"`
	Events []Event `json:"events,omitempty"`
}

// NewWebSocketSink returns a sink with an empty client registry. Call
// HandleWebSocket from an HTTP mux to accept connections and Run in a
// goroutine to drain the broadcast channel.
func NewWebSocketSink(order binary.ByteOrder) *WebSocketSink {
	return &WebSocketSink{
		clients:   make(map[*wsClient]bool),
		broadcast: make(chan wsRecord, 100),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logrus.New(),
		order:  order,
	}
}

// HandleWebSocket upgrades an incoming request and registers it. A
// `?format=packed` query selects the binary wire encoding; any other
// value (or none) selects JSON text.
func (s *WebSocketSink) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Error("observer websocket upgrade failed")
		return
	}
	client := &wsClient{
		conn:   conn,
		packed: r.URL.Query().Get("format") == "packed",
		send:   make(chan wsRecord, 50),
		id:     r.RemoteAddr,
	}
	s.mu.Lock()
	s.clients[client] = true
	s.mu.Unlock()

	go s.writePump(client)
	go s.readPump(client)
}

// Run drains the broadcast channel until ctx-equivalent stop; callers
// typically run this in its own goroutine for the sink's lifetime.
func (s *WebSocketSink) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			s.closeAllClients()
			return
		case rec := <-s.broadcast:
			s.fanOut(rec)
		}
	}
}

func (s *WebSocketSink) Start(ts time.Time) error {
	return s.queue(wsRecord{recordType: wire.RecordStart, ts: ts})
}

func (s *WebSocketSink) Stop(ts time.Time) error {
	return s.queue(wsRecord{recordType: wire.RecordStop, ts: ts})
}

func (s *WebSocketSink) Emit(regionName string, ts time.Time, events []Event) error {
	return s.queue(wsRecord{recordType: wire.RecordFrame, region: regionName, ts: ts, events: events})
}

func (s *WebSocketSink) queue(rec wsRecord) error {
	select {
	case s.broadcast <- rec:
	default:
		select {
		case <-s.broadcast:
		default:
		}
		s.broadcast <- rec
	}
	return nil
}

func (s *WebSocketSink) fanOut(rec wsRecord) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for client := range s.clients {
		select {
		case client.send <- rec:
		default:
		}
	}
}

func (s *WebSocketSink) closeAllClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		client.conn.Close()
		close(client.send)
		delete(s.clients, client)
	}
}

func (s *WebSocketSink) unregister(c *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *WebSocketSink) writePump(c *wsClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case rec, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			var err error
			if c.packed {
				err = c.conn.WriteMessage(websocket.BinaryMessage, s.encodePacked(rec))
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, s.encodeText(rec))
			}
			if err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *WebSocketSink) readPump(c *wsClient) {
	defer func() {
		s.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *WebSocketSink) encodeText(rec wsRecord) []byte {
	msg := wsTextMessage{Region: rec.region, Events: rec.events}
	switch rec.recordType {
	case wire.RecordStart:
		msg.Type = "start"
	case wire.RecordStop:
		msg.Type = "stop"
	default:
		msg.Type = "frame"
	}
	data, _ := json.Marshal(msg)
	return data
}

func (s *WebSocketSink) encodePacked(rec wsRecord) []byte {
	records := make([]wire.ObjectRecord, len(rec.events))
	for i, ev := range rec.events {
		records[i] = toObjectRecord(ev.Object)
	}
	payload := make([]byte, 4+len(records)*wire.ObjectRecordSize)
	s.order.PutUint32(payload[0:4], uint32(len(records)))
	for i, r := range records {
		off := 4 + i*wire.ObjectRecordSize
		r.Encode(s.order, payload[off:off+wire.ObjectRecordSize])
	}

	buf := make([]byte, wire.HeaderSize)
	h := wire.Header{Timestamp: uint64(rec.ts.UnixMilli()), Type: rec.recordType, Size: uint32(len(payload))}
	h.Encode(s.order, buf)
	return append(buf, payload...)
}
