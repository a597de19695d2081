package websocket

import "github.com/google/uuid"

// HubDelivery adapts the hub to the synchronizer's fan-out contract.
type HubDelivery struct {
	hub *Hub
}

func NewHubDelivery(hub *Hub) *HubDelivery {
	return &HubDelivery{hub: hub}
}

func (d *HubDelivery) BroadcastRoom(conversationId uuid.UUID, payload []byte) {
	d.hub.Broadcast(RoomForConversation(conversationId), payload)
}

func (d *HubDelivery) BroadcastLobby(payload []byte) {
	d.hub.Broadcast(LobbyRoom, payload)
}
