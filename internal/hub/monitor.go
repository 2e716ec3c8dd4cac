package hub

import (
	"converse/internal/model"
)

// MonitorService gathers hub statistics for the monitoring endpoint.
type MonitorService struct {
	hub *Hub
}

func NewMonitorService(hub *Hub) *MonitorService {
	return &MonitorService{hub: hub}
}

// GetStats returns a snapshot of connections and room subscriptions.
func (ms *MonitorService) GetStats() model.MonitorResponse {
	clients := ms.getClientList()
	rooms := ms.getRoomStats()

	status := "healthy"
	if len(clients) == 0 {
		status = "idle"
	}

	return model.MonitorResponse{
		Status:      status,
		Connections: len(clients),
		Rooms:       rooms,
		Clients:     clients,
	}
}

func (ms *MonitorService) getRoomStats() model.RoomStats {
	stats := model.RoomStats{
		RoomDetails: make([]model.RoomInfo, 0),
	}

	for _, bucket := range ms.hub.shards {
		bucket.RLock()
		for conversationID, room := range bucket.rooms {
			userIDs := make([]string, 0, len(room))
			for _, client := range room {
				userIDs = append(userIDs, client.userID)
			}

			stats.RoomDetails = append(stats.RoomDetails, model.RoomInfo{
				ConversationID: conversationID,
				Subscribers:    len(room),
				UserIDs:        userIDs,
			})
			stats.TotalRooms++
		}
		bucket.RUnlock()
	}

	return stats
}

func (ms *MonitorService) getClientList() []model.ClientInfo {
	ms.hub.clientsMu.RLock()
	defer ms.hub.clientsMu.RUnlock()

	clients := make([]model.ClientInfo, 0, len(ms.hub.clients))
	for _, client := range ms.hub.clients {
		clients = append(clients, model.ClientInfo{
			ClientID: client.ID,
			UserID:   client.userID,
			Rooms:    client.Rooms(),
		})
	}
	return clients
}
