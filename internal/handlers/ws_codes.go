// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the room gateway. These provide
// more specific reasons for closure than standard codes.
const (
	BadSubprotocolError = 3000 // Client connected with an unsupported subprotocol.
	InvalidRoomIDError  = 3001 // Target room ID in the WS URL does not exist or is invalid.
	RoomFullError       = 3002 // Room is at max player capacity.
)
