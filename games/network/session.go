package network

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"unicode/utf8"
)

var (
	ErrNotStarted    = errors.New("game has not started")
	ErrUnknownPlayer = errors.New("unknown player")
	ErrNameTaken     = errors.New("name is already taken")
	ErrEmptyName     = errors.New("name must not be empty")
	ErrNameTooLong   = fmt.Errorf("name must be at most %d characters", MaxNameLength)
)

// MaxNameLength caps player names, in runes.
const MaxNameLength = 24

type player struct {
	id    string
	name  string
	score int
	combo combo
	mark  int // elapsed tick of the last interaction or inactivity penalty
}

type listenerEntry struct {
	id int
	fn Listener
}

type SessionOption func(*Session)

// WithRand fixes the source used for random colors and node dissolution.
func WithRand(r *rand.Rand) SessionOption {
	return func(s *Session) {
		s.rng = r
	}
}

// Session is the authoritative state of one game: the graph, every player's
// score and the resilience clock. All methods are safe for concurrent use and
// are applied one at a time in arrival order.
type Session struct {
	mu sync.Mutex

	rules   Rules
	graph   *Graph
	clock   *Clock
	players map[string]*player
	order   []string
	awarded map[string]bool
	rng     *rand.Rand

	listeners    []listenerEntry
	nextListener int
}

func NewSession(rules Rules, opts ...SessionOption) (*Session, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		rules:   rules,
		graph:   NewGraph(WithExclusiveRadius(rules.NodeRadius)),
		clock:   NewClock(rules),
		players: make(map[string]*player),
		awarded: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return s, nil
}

// Subscribe registers fn for every subsequent event and returns a function
// that removes it again.
func (s *Session) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextListener
	s.nextListener++
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *Session) emitLocked(e Event) {
	for _, l := range s.listeners {
		l.fn(e)
	}
}

// SetRules swaps the tuning table. Scores and the clock keep their values.
func (s *Session) SetRules(r Rules) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules = r
	s.clock.setRules(r)
	s.graph.exclusiveRadius = r.NodeRadius

	return nil
}

func (s *Session) Rules() Rules {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rules
}

// Join adds a player with a zero score. Joining again with the same id
// renames the player and keeps their score.
func (s *Session) Join(id, name string) error {
	name = strings.TrimSpace(name)
	if id == "" || name == "" {
		return ErrEmptyName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return ErrNameTooLong
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.players {
		if p.id != id && strings.EqualFold(p.name, name) {
			return ErrNameTaken
		}
	}

	p, ok := s.players[id]
	if ok {
		p.name = name
	} else {
		p = &player{
			id:   id,
			name: name,
			mark: s.clock.Elapsed(),
		}
		s.players[id] = p
		s.order = append(s.order, id)
	}

	s.emitLocked(Event{Kind: EventRoster, Players: s.rosterLocked()})
	score := p.score
	s.emitLocked(Event{Kind: EventScoreUpdated, Player: p.name, Score: &score})

	return nil
}

// Leave drops the player from the roster and the score table. Nodes they
// placed stay in the graph.
func (s *Session) Leave(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.players[id]; !ok {
		return ErrUnknownPlayer
	}

	delete(s.players, id)
	for i, pid := range s.order {
		if pid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	s.emitLocked(Event{Kind: EventRoster, Players: s.rosterLocked()})

	return nil
}

// HasPlayer reports whether id is on the roster.
func (s *Session) HasPlayer(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.players[id]
	return ok
}

// PlayerName returns the display name for id.
func (s *Session) PlayerName(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[id]
	if !ok {
		return "", false
	}
	return p.name, true
}

// PlayerByName finds the id of the player using name.
func (s *Session) PlayerByName(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.players {
		if strings.EqualFold(p.name, name) {
			return p.id, true
		}
	}
	return "", false
}

func (s *Session) Score(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[id]
	if !ok {
		return 0, ErrUnknownPlayer
	}
	return p.score, nil
}

// Start confirms the tutorial and activates the clock. Further calls are
// no-ops.
func (s *Session) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.clock.Start() {
		return false
	}

	for _, p := range s.players {
		p.mark = s.clock.Elapsed()
	}

	s.emitLocked(Event{Kind: EventStarted})
	s.emitLocked(Event{Kind: EventResilienceUpdated, Resilience: s.resilienceLocked()})

	return true
}

func (s *Session) State() ClockState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.clock.State()
}

func (s *Session) actorLocked(id string) (*player, error) {
	if s.clock.State() == Inactive {
		return nil, ErrNotStarted
	}

	p, ok := s.players[id]
	if !ok {
		return nil, ErrUnknownPlayer
	}
	return p, nil
}

// CreateNode places a node for the player. A zero color picks one at random.
func (s *Session) CreateNode(playerID string, pos Position, color Color) (NodeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.actorLocked(playerID)
	if err != nil {
		return 0, err
	}

	if color == 0 {
		color = Colors[s.rng.IntN(len(Colors))]
	}

	id, err := s.graph.CreateNode(pos, color)
	if err != nil {
		return 0, err
	}

	p.combo.reset()
	p.mark = s.clock.Elapsed()

	node, _ := s.graph.Node(id)
	s.emitLocked(Event{Kind: EventNodeCreated, Node: &node, Player: p.name})

	return id, nil
}

// Connect links two nodes and scores the connection for the player. A red
// pair cascades both endpoints away; any other surviving edge is checked for
// a monochrome cycle bonus.
func (s *Session) Connect(playerID string, a, b NodeID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.actorLocked(playerID)
	if err != nil {
		return 0, err
	}

	if err := s.graph.Connect(a, b); err != nil {
		return 0, err
	}

	p.mark = s.clock.Elapsed()

	edge := newEdge(a, b)
	s.emitLocked(Event{Kind: EventEdgeCreated, Edge: &edge, Player: p.name})

	na, _ := s.graph.Node(a)
	nb, _ := s.graph.Node(b)
	outcome := ScoreForConnection(s.rules, na, nb)

	if outcome.Delta < 0 {
		p.combo.reset()
	} else {
		p.combo.hit()
	}
	delta := outcome.Delta + s.rules.ConnectBonus*p.combo.multiplier(s.rules)

	for _, id := range outcome.Cascade {
		delta -= s.removeLocked(id, CauseCascade) * s.rules.EdgeRemovalPenalty
	}
	if len(outcome.Cascade) > 0 {
		p.combo.reset()
	}

	// The walk only closes cycles through its own tree, so try both ends.
	if len(outcome.Cascade) == 0 {
		bonus, ok := s.awardCycleLocked(p, a)
		if !ok {
			bonus, _ = s.awardCycleLocked(p, b)
		}
		delta += bonus
	}

	s.applyLocked(p, delta)

	return delta, nil
}

// awardCycleLocked spawns a big node for a new monochrome cycle through start
// and returns the bonus. ok is false when there is none.
func (s *Session) awardCycleLocked(p *player, start NodeID) (bonus int, ok bool) {
	cycle, found := findCycle(s.graph, start, s.rules.MinCycleLength, s.awarded)
	if !found {
		return 0, false
	}
	s.awarded[cycleSignature(cycle)] = true

	id := s.graph.addNode(centroid(s.graph, cycle), Yellow, true)
	big, _ := s.graph.Node(id)

	s.emitLocked(Event{Kind: EventNodeCreated, Node: &big, Player: p.name})
	s.emitLocked(Event{
		Kind:   EventCycleBonus,
		Node:   &big,
		Cycle:  cycle,
		Player: p.name,
		Delta:  s.rules.CycleBonus,
	})

	return s.rules.CycleBonus, true
}

// RemoveNode deletes a node on the player's behalf and charges the removal
// and per-edge penalties.
func (s *Session) RemoveNode(playerID string, id NodeID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.actorLocked(playerID)
	if err != nil {
		return 0, err
	}

	if _, ok := s.graph.Node(id); !ok {
		return 0, fmt.Errorf("remove %d: %w", id, ErrUnknownNode)
	}

	edges := s.removeLocked(id, CausePlayer)
	delta := -(s.rules.RemovalPenalty + edges*s.rules.EdgeRemovalPenalty)

	p.mark = s.clock.Elapsed()
	p.combo.reset()
	s.applyLocked(p, delta)

	return delta, nil
}

// removeLocked takes a node out of the graph, announces it and returns the
// number of edges that went with it.
func (s *Session) removeLocked(id NodeID, cause string) int {
	node, ok := s.graph.Node(id)
	if !ok {
		return 0
	}

	incident := s.graph.incident(id)
	removed, err := s.graph.RemoveNode(id)
	if err != nil {
		return 0
	}

	s.emitLocked(Event{
		Kind:    EventNodeRemoved,
		Node:    &node,
		Removed: incident,
		Cause:   cause,
	})

	return removed
}

func (s *Session) applyLocked(p *player, delta int) {
	p.score += delta
	score := p.score
	s.emitLocked(Event{
		Kind:   EventScoreUpdated,
		Player: p.name,
		Score:  &score,
		Delta:  delta,
	})
}

// Tick advances the game by one second: resilience, the win condition, score
// decay, inactivity penalties and random dissolution, in that order.
func (s *Session) Tick() TickResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clock.State() != Active {
		return TickResult{Elapsed: s.clock.Elapsed(), Resilience: s.clock.Resilience()}
	}

	res := s.clock.Tick(s.graph.Size())

	s.emitLocked(Event{Kind: EventResilienceUpdated, Resilience: s.resilienceLocked()})

	if res.Won {
		s.emitLocked(Event{Kind: EventWon, Resilience: s.resilienceLocked()})
		return res
	}

	if res.Decay {
		for _, id := range s.order {
			p := s.players[id]
			if p.score > 0 {
				p.combo.reset()
				s.applyLocked(p, -s.rules.DecayPenalty)
			}
		}
	}

	for _, id := range s.order {
		p := s.players[id]
		if p.score > 0 && s.clock.InactivityDue(p.mark) {
			p.mark = res.Elapsed
			p.combo.reset()
			s.applyLocked(p, -s.rules.InactivityPenalty)
		}
	}

	if res.Dissolve && s.graph.Size() > 0 {
		nodes := s.graph.Nodes()
		victim := nodes[s.rng.IntN(len(nodes))]

		edges := s.removeLocked(victim.ID, CauseDissolve)
		delta := -(s.rules.RemovalPenalty + edges*s.rules.EdgeRemovalPenalty)
		for _, id := range s.order {
			p := s.players[id]
			p.combo.reset()
			s.applyLocked(p, delta)
		}
	}

	return res
}

func (s *Session) rosterLocked() []string {
	names := make([]string, 0, len(s.order))
	for _, id := range s.order {
		names = append(names, s.players[id].name)
	}
	return names
}

func (s *Session) resilienceLocked() *ResilienceState {
	return &ResilienceState{
		State:      s.clock.State(),
		Elapsed:    s.clock.Elapsed(),
		Resilience: s.clock.Resilience(),
		Threshold:  s.rules.MinNodeThreshold,
		WinTime:    s.rules.WinConditionTime,
	}
}

// Snapshot copies the full state for a client joining mid-session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	scores := make(map[string]int, len(s.players))
	for _, p := range s.players {
		scores[p.name] = p.score
	}

	return Snapshot{
		Nodes:       s.graph.Nodes(),
		Connections: s.graph.Edges(),
		Scores:      scores,
		Resilience:  *s.resilienceLocked(),
		Players:     s.rosterLocked(),
	}
}
