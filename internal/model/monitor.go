package model

// MonitorResponse is the hub statistics snapshot served by the monitor endpoint.
type MonitorResponse struct {
	Status      string       `json:"status"`
	Connections int          `json:"connections"`
	Rooms       RoomStats    `json:"rooms"`
	Clients     []ClientInfo `json:"clients"`
}

// RoomStats summarizes live room subscriptions.
type RoomStats struct {
	TotalRooms  int        `json:"totalRooms"`
	RoomDetails []RoomInfo `json:"roomDetails"`
}

// RoomInfo describes a single room's live subscribers.
type RoomInfo struct {
	ConversationID string   `json:"conversationId"`
	Subscribers    int      `json:"subscribers"`
	UserIDs        []string `json:"userIds"`
}

// ClientInfo describes one connected socket client.
type ClientInfo struct {
	ClientID string   `json:"clientId"`
	UserID   string   `json:"userId"`
	Rooms    []string `json:"rooms"`
}
