package network

type EventKind string

const (
	EventRoster            EventKind = "roster"
	EventStarted           EventKind = "started"
	EventNodeCreated       EventKind = "node_created"
	EventNodeRemoved       EventKind = "node_removed"
	EventEdgeCreated       EventKind = "edge_created"
	EventScoreUpdated      EventKind = "score_updated"
	EventResilienceUpdated EventKind = "resilience_updated"
	EventCycleBonus        EventKind = "cycle_bonus"
	EventWon               EventKind = "won"
)

// Removal causes carried by node_removed events.
const (
	CausePlayer   = "player"
	CauseCascade  = "cascade"
	CauseDissolve = "dissolve"
)

// Event is a committed state change. Only the fields relevant to Kind are set.
type Event struct {
	Kind EventKind `json:"type"`

	Node    *Node    `json:"node,omitempty"`
	Edge    *Edge    `json:"edge,omitempty"`
	Removed []Edge   `json:"removed_edges,omitempty"`
	Cause   string   `json:"cause,omitempty"`
	Cycle   []NodeID `json:"cycle,omitempty"`

	Player string `json:"player,omitempty"`
	Score  *int   `json:"score,omitempty"` // set on every score_updated, zero included
	Delta  int    `json:"delta,omitempty"`

	Players    []string         `json:"players,omitempty"`
	Resilience *ResilienceState `json:"resilience,omitempty"`
}

type ResilienceState struct {
	State      ClockState `json:"state"`
	Elapsed    int        `json:"elapsed"`
	Resilience int        `json:"resilience"`
	Threshold  int        `json:"threshold"`
	WinTime    int        `json:"win_time"`
}

// Snapshot is the full state a newly connected client needs before it can
// apply incremental events.
type Snapshot struct {
	Nodes       []Node          `json:"nodes"`
	Connections []Edge          `json:"connections"`
	Scores      map[string]int  `json:"scores"`
	Resilience  ResilienceState `json:"resilience"`
	Players     []string        `json:"players"`
}

// Listener receives events in commit order while the session lock is held.
// It must not call back into the session.
type Listener func(Event)
