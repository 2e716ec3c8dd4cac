package hub

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"converse/internal/event"
	"converse/internal/model"
)

const (
	shardCount = 64 // tune: 16/64/128 depending on load
)

type inboundMessage struct {
	event  event.WsEvent
	client *Client
}

type clientBucket struct {
	sync.RWMutex
	rooms map[string]map[string]*Client
}

// Hub owns the live connections and the per-conversation rooms used for push
// fan-out. Room membership is mutated only through the owning connection's
// join/leave events.
type Hub struct {
	shards     [shardCount]*clientBucket
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundMessage

	clients   map[string]*Client // by client id
	clientsMu sync.RWMutex

	gateway *ChatHandler
	logger  *zap.Logger

	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func NewHub(logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		register:   make(chan *Client, 1024),
		unregister: make(chan *Client, 1024),
		inbound:    make(chan inboundMessage, 4096), // buffer for burst handling
		clients:    make(map[string]*Client),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}

	for i := 0; i < shardCount; i++ {
		h.shards[i] = &clientBucket{
			rooms: make(map[string]map[string]*Client),
		}
	}

	go h.run()

	for i := 0; i < workerPoolSize; i++ {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in, ok := <-h.inbound:
					if !ok {
						return
					}
					h.handleEvent(in.event, in.client)
				}
			}
		}()
	}

	return h
}

// SetGateway wires the chat gateway. Must be called before serving
// connections; split from NewHub to break the hub/gateway cycle.
func (h *Hub) SetGateway(gateway *ChatHandler) {
	h.gateway = gateway
}

func (h *Hub) handleEvent(ev event.WsEvent, c *Client) {
	if h.gateway == nil {
		h.logger.Warn("no gateway wired, dropping event", zap.String("event", ev.Event))
		return
	}
	h.gateway.HandleEvent(ev, c)
}

// JoinRoom subscribes c to the conversation's room.
func (h *Hub) JoinRoom(conversationID string, c *Client) {
	sh := getShard(conversationID)
	b := h.shards[sh]
	b.Lock()
	room, ok := b.rooms[conversationID]
	if !ok {
		room = make(map[string]*Client)
		b.rooms[conversationID] = room
	}
	room[c.ID] = c
	b.Unlock()

	c.addRoom(conversationID)
	h.logger.Debug("client joined room",
		zap.String("client_id", c.ID),
		zap.String("conversation_id", conversationID),
		zap.Uint32("shard", sh),
	)
}

// LeaveRoom unsubscribes c from the conversation's room.
func (h *Hub) LeaveRoom(conversationID string, c *Client) {
	sh := getShard(conversationID)
	b := h.shards[sh]
	b.Lock()
	if room, ok := b.rooms[conversationID]; ok {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(b.rooms, conversationID)
		}
	}
	b.Unlock()

	c.removeRoom(conversationID)
}

// Publish fans ev out to every client subscribed to the room, skipping
// excludeClientID when non-empty.
func (h *Hub) Publish(conversationID string, ev event.WsEvent, excludeClientID string) {
	sh := getShard(conversationID)
	b := h.shards[sh]

	// collect clients while holding RLock
	b.RLock()
	room, ok := b.rooms[conversationID]
	if !ok || len(room) == 0 {
		b.RUnlock()
		return
	}
	clients := make([]*Client, 0, len(room))
	for _, c := range room {
		if c.ID == excludeClientID {
			continue
		}
		clients = append(clients, c)
	}
	b.RUnlock()

	// Deliver to clients without holding the lock. SafeSend refuses closed
	// sessions, so a client that disconnected between the room snapshot and
	// the send is skipped instead of panicking the fan-out.
	for _, c := range clients {
		if c.SafeSend(ev, sendTimeout) {
			continue
		}
		h.logger.Warn("dropping event for client",
			zap.String("client_id", c.ID),
			zap.String("conversation_id", conversationID),
		)
		if kickOnFull {
			h.unregister <- c
		}
	}
}

// BroadcastMessage implements service.Broadcaster.
func (h *Hub) BroadcastMessage(conversationID string, msg *model.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal message event", zap.Error(err))
		return
	}
	h.Publish(conversationID, event.WsEvent{
		Event:          event.EventMessageReceived,
		ConversationID: conversationID,
		Payload:        payload,
	}, "")
}

// BroadcastRead implements service.Broadcaster.
func (h *Hub) BroadcastRead(conversationID, userID string) {
	payload, err := json.Marshal(model.ReadReceiptEvent{
		ConversationID: conversationID,
		UserID:         userID,
	})
	if err != nil {
		h.logger.Error("failed to marshal read event", zap.Error(err))
		return
	}
	h.Publish(conversationID, event.WsEvent{
		Event:          event.EventMessagesRead,
		ConversationID: conversationID,
		Payload:        payload,
	}, "")
}

func getShard(conversationID string) uint32 {
	if conversationID == "" {
		return 0
	}
	h := sha1.Sum([]byte(conversationID))
	return binary.BigEndian.Uint32(h[:4]) % shardCount
}

func (h *Hub) addClient(c *Client) {
	h.clientsMu.Lock()
	h.clients[c.ID] = c
	h.clientsMu.Unlock()

	h.logger.Debug("client registered",
		zap.String("client_id", c.ID),
		zap.String("user_id", c.userID),
	)
}

func (h *Hub) removeClient(c *Client) {
	for _, conversationID := range c.Rooms() {
		sh := getShard(conversationID)
		b := h.shards[sh]
		b.Lock()
		if room, ok := b.rooms[conversationID]; ok {
			delete(room, c.ID)
			if len(room) == 0 {
				delete(b.rooms, conversationID)
			}
		}
		b.Unlock()
	}

	h.clientsMu.Lock()
	delete(h.clients, c.ID)
	h.clientsMu.Unlock()

	c.Close()
	h.logger.Debug("client removed", zap.String("client_id", c.ID))
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

// Stop shuts the hub down. Safe to call more than once; the container and the
// server teardown path may both reach it. The inbound channel stays open:
// read pumps may still be draining their sockets into it, and workers exit on
// the cancelled context instead.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.cancel()

		h.clientsMu.RLock()
		for _, client := range h.clients {
			client.Close()
		}
		h.clientsMu.RUnlock()

		h.wg.Wait()
	})
}

var websocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and registers a client session for userID.
// Rooms are joined afterwards through explicit join_room events.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := websocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	RegisterClient(userID, conn, h)
}
