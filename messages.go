package main

import (
	"github.com/Seednode/seekingsystems/games/network"
)

// Messages coming from clients
type ClientMessage struct {
	Type     string            `json:"type"`               // "join", "start", "kick", "create_node", "connect", "remove_node"
	Name     string            `json:"name,omitempty"`     // join
	Position *network.Position `json:"position,omitempty"` // create_node
	Color    string            `json:"color,omitempty"`    // create_node, random when empty
	A        network.NodeID    `json:"a"`                  // connect
	B        network.NodeID    `json:"b"`                  // connect
	Node     network.NodeID    `json:"node"`               // remove_node
	Target   string            `json:"target,omitempty"`   // kick
}

// SessionInfoMessage is sent immediately on connect so the client knows
// whether to prompt for a name and whether it may start the game.
type SessionInfoMessage struct {
	Type       string `json:"type"`           // "session_info"
	IsExisting bool   `json:"is_existing"`    // true if this cookie already has a player
	IsHost     bool   `json:"is_host"`        // true if this cookie may start the game and kick
	Name       string `json:"name,omitempty"` // known name for this cookie, if any
}

// SnapshotMessage carries the full game state ahead of incremental events.
type SnapshotMessage struct {
	Type string `json:"type"` // "snapshot"
	network.Snapshot
}

// ErrorMessage is sent only to the client whose intent was rejected.
type ErrorMessage struct {
	Type    string `json:"type"`   // "error"
	Intent  string `json:"intent"` // the rejected message type
	Message string `json:"message"`
}

// SimpleMessage is for generic notifications ("kicked", etc.)
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
