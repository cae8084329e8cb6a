package network

import (
	"encoding/json"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []Event
}

func (r *recorder) listen(e Event) {
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []EventKind {
	out := make([]EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func (r *recorder) count(kind EventKind) int {
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) reset() {
	r.events = nil
}

func newTestSession(t *testing.T, rules Rules) (*Session, *recorder) {
	t.Helper()

	s, err := NewSession(rules, WithRand(rand.New(rand.NewPCG(1, 2))))
	require.NoError(t, err)

	rec := &recorder{}
	s.Subscribe(rec.listen)

	require.NoError(t, s.Join("p1", "alice"))
	require.True(t, s.Start())
	rec.reset()

	return s, rec
}

func place(t *testing.T, s *Session, colors ...Color) []NodeID {
	t.Helper()

	ids := make([]NodeID, len(colors))
	for i, c := range colors {
		id, err := s.CreateNode("p1", Position{X: float64(i * 60), Y: float64(i * 30)}, c)
		require.NoError(t, err)
		ids[i] = id
	}
	return ids
}

func score(t *testing.T, s *Session) int {
	t.Helper()

	v, err := s.Score("p1")
	require.NoError(t, err)
	return v
}

func TestSessionRejectsIntentsBeforeStart(t *testing.T) {
	s, err := NewSession(DefaultRules())
	require.NoError(t, err)
	require.NoError(t, s.Join("p1", "alice"))

	_, err = s.CreateNode("p1", Position{}, Green)
	require.ErrorIs(t, err, ErrNotStarted)

	s.Start()
	_, err = s.CreateNode("nobody", Position{}, Green)
	require.ErrorIs(t, err, ErrUnknownPlayer)
}

func TestSessionGreenBlueConnect(t *testing.T) {
	s, rec := newTestSession(t, DefaultRules())
	ids := place(t, s, Green, Blue)
	rec.reset()

	delta, err := s.Connect("p1", ids[0], ids[1])
	require.NoError(t, err)
	assert.Equal(t, 15+10, delta)
	assert.Equal(t, 25, score(t, s))
	assert.Equal(t, []EventKind{EventEdgeCreated, EventScoreUpdated}, rec.kinds())
}

func TestSessionRedPairCascades(t *testing.T) {
	s, rec := newTestSession(t, DefaultRules())
	ids := place(t, s, Red, Red, Green)
	rec.reset()

	_, err := s.Connect("p1", ids[0], ids[2])
	require.NoError(t, err)
	assert.Equal(t, 0, score(t, s), "red penalty offset by the connect bonus")

	delta, err := s.Connect("p1", ids[0], ids[1])
	require.NoError(t, err)
	// -10 red, +10 connect, -10 per edge removed with the two reds (two edges).
	assert.Equal(t, -20, delta)
	assert.Equal(t, -20, score(t, s))

	snap := s.Snapshot()
	require.Len(t, snap.Nodes, 1)
	assert.Equal(t, ids[2], snap.Nodes[0].ID)
	assert.Empty(t, snap.Connections)

	assert.Equal(t, 2, rec.count(EventNodeRemoved))
	for _, e := range rec.events {
		if e.Kind == EventNodeRemoved {
			assert.Equal(t, CauseCascade, e.Cause)
		}
	}
}

func TestSessionRejectedIntentLeavesStateUnchanged(t *testing.T) {
	s, rec := newTestSession(t, DefaultRules())
	ids := place(t, s, Green, Blue)
	_, err := s.Connect("p1", ids[0], ids[1])
	require.NoError(t, err)

	before := s.Snapshot()
	rec.reset()

	_, err = s.Connect("p1", ids[0], 99)
	require.ErrorIs(t, err, ErrUnknownNode)
	_, err = s.Connect("p1", ids[1], ids[0])
	require.ErrorIs(t, err, ErrAlreadyConnected)
	_, err = s.Connect("p1", ids[0], ids[0])
	require.ErrorIs(t, err, ErrSelfLoop)
	_, err = s.RemoveNode("p1", 99)
	require.ErrorIs(t, err, ErrUnknownNode)

	assert.Equal(t, before, s.Snapshot())
	assert.Empty(t, rec.events)
}

func TestSessionRemoveNodePenalties(t *testing.T) {
	s, rec := newTestSession(t, DefaultRules())
	ids := place(t, s, Green, Blue, Yellow)
	_, err := s.Connect("p1", ids[0], ids[1])
	require.NoError(t, err)
	_, err = s.Connect("p1", ids[0], ids[2])
	require.NoError(t, err)
	start := score(t, s)
	rec.reset()

	delta, err := s.RemoveNode("p1", ids[0])
	require.NoError(t, err)
	assert.Equal(t, -20-2*10, delta)
	assert.Equal(t, start-40, score(t, s))

	require.Equal(t, []EventKind{EventNodeRemoved, EventScoreUpdated}, rec.kinds())
	assert.Equal(t, CausePlayer, rec.events[0].Cause)
	assert.Len(t, rec.events[0].Removed, 2)
}

func TestSessionComboMultiplier(t *testing.T) {
	s, _ := newTestSession(t, DefaultRules())
	ids := place(t, s, Green, Green, Green, Green, Green)

	var deltas []int
	for i := 0; i < 3; i++ {
		d, err := s.Connect("p1", ids[i], ids[i+1])
		require.NoError(t, err)
		deltas = append(deltas, d)
	}
	assert.Equal(t, []int{15, 15, 25}, deltas)

	// Placing a node breaks the streak.
	extra := place(t, s, Yellow)
	d, err := s.Connect("p1", ids[3], extra[0])
	require.NoError(t, err)
	assert.Equal(t, 2+10, d)
}

func TestSessionCycleBonus(t *testing.T) {
	s, rec := newTestSession(t, DefaultRules())
	ids := place(t, s, Green, Green, Green, Green, Green)
	rec.reset()

	for i := 0; i < 4; i++ {
		_, err := s.Connect("p1", ids[i], ids[i+1])
		require.NoError(t, err)
	}
	assert.Zero(t, rec.count(EventCycleBonus))

	delta, err := s.Connect("p1", ids[4], ids[0])
	require.NoError(t, err)
	assert.Equal(t, 5+20+200, delta)
	assert.Equal(t, 1, rec.count(EventCycleBonus))

	var bonus Event
	for _, e := range rec.events {
		if e.Kind == EventCycleBonus {
			bonus = e
		}
	}
	require.NotNil(t, bonus.Node)
	assert.True(t, bonus.Node.BigNode)
	assert.ElementsMatch(t, ids, bonus.Cycle)

	snap := s.Snapshot()
	assert.Len(t, snap.Nodes, 6, "cycle members stay and the big node is added")

	// A chord reuses the awarded ring and must not pay out again.
	_, err = s.Connect("p1", ids[0], ids[2])
	require.NoError(t, err)
	assert.Equal(t, 1, rec.count(EventCycleBonus))
	assert.Len(t, s.Snapshot().Nodes, 6)
}

func TestSessionCycleBonusIgnoresEndpointOrder(t *testing.T) {
	// Two green squares sharing the edge 1-2; closing 5-2 makes a six-ring
	// that a walk from 2 alone does not reach.
	closeRing := func(reversed bool) (int, int) {
		s, rec := newTestSession(t, DefaultRules())
		ids := place(t, s, Green, Green, Green, Green, Green, Green)

		for _, e := range [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}, {1, 4}, {4, 5}} {
			_, err := s.Connect("p1", ids[e[0]], ids[e[1]])
			require.NoError(t, err)
		}
		require.Zero(t, rec.count(EventCycleBonus))

		a, b := ids[5], ids[2]
		if reversed {
			a, b = b, a
		}
		delta, err := s.Connect("p1", a, b)
		require.NoError(t, err)
		assert.Equal(t, 1, rec.count(EventCycleBonus))

		return delta, len(s.Snapshot().Nodes)
	}

	forward, forwardNodes := closeRing(false)
	backward, backwardNodes := closeRing(true)

	assert.Equal(t, 5+20+200, forward)
	assert.Equal(t, forward, backward)
	assert.Equal(t, 7, forwardNodes)
	assert.Equal(t, forwardNodes, backwardNodes)
}

func TestSessionScoreUpdateCarriesZero(t *testing.T) {
	s, rec := newTestSession(t, DefaultRules())
	require.NoError(t, s.Join("p2", "bob"))

	require.Equal(t, EventScoreUpdated, rec.events[len(rec.events)-1].Kind)
	data, err := json.Marshal(rec.events[len(rec.events)-1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"score_updated","player":"bob","score":0}`, string(data))

	data, err = json.Marshal(Event{Kind: EventStarted})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "score")
}

func TestSessionNameLength(t *testing.T) {
	s, _ := newTestSession(t, DefaultRules())

	require.ErrorIs(t, s.Join("p2", strings.Repeat("x", MaxNameLength+1)), ErrNameTooLong)
	assert.False(t, s.HasPlayer("p2"))

	require.NoError(t, s.Join("p2", strings.Repeat("é", MaxNameLength)))
	assert.True(t, s.HasPlayer("p2"))
}

func TestSessionInactivityOncePerWindow(t *testing.T) {
	s, _ := newTestSession(t, DefaultRules())
	ids := place(t, s, Green, Blue)
	_, err := s.Connect("p1", ids[0], ids[1])
	require.NoError(t, err)
	require.Equal(t, 25, score(t, s))

	for i := 0; i < 10; i++ {
		s.Tick()
	}
	// decay at 5s and 10s, one inactivity penalty at 10s
	assert.Equal(t, 25-2-5, score(t, s))

	for i := 0; i < 10; i++ {
		s.Tick()
	}
	assert.Equal(t, 25-4-10, score(t, s))
}

func TestSessionNoPenaltiesAtZeroScore(t *testing.T) {
	s, _ := newTestSession(t, DefaultRules())
	for i := 0; i < 30; i++ {
		s.Tick()
	}
	assert.Zero(t, score(t, s))
}

func TestSessionDissolve(t *testing.T) {
	rules := DefaultRules()
	rules.DissolveDelay = 0
	rules.DissolveInterval = 1

	s, rec := newTestSession(t, rules)
	place(t, s, Yellow)
	rec.reset()

	res := s.Tick()
	assert.True(t, res.Dissolve)
	assert.Zero(t, len(s.Snapshot().Nodes))
	assert.Equal(t, -20, score(t, s))
	assert.Equal(t, 1, rec.count(EventNodeRemoved))
	for _, e := range rec.events {
		if e.Kind == EventNodeRemoved {
			assert.Equal(t, CauseDissolve, e.Cause)
		}
	}

	rec.reset()
	s.Tick()
	assert.Zero(t, rec.count(EventNodeRemoved))
	assert.Equal(t, -20, score(t, s))
}

func TestSessionWin(t *testing.T) {
	rules := DefaultRules()
	rules.WinConditionTime = 3
	rules.MinNodeThreshold = 1

	s, rec := newTestSession(t, rules)
	place(t, s, Green)

	for i := 0; i < 3; i++ {
		s.Tick()
	}
	assert.Equal(t, Won, s.State())
	assert.Equal(t, 1, rec.count(EventWon))

	rec.reset()
	s.Tick()
	assert.Empty(t, rec.events, "a won game no longer ticks")

	_, err := s.CreateNode("p1", Position{X: 500}, Blue)
	require.NoError(t, err, "players may keep building after the win")
}

func TestSessionRoster(t *testing.T) {
	s, rec := newTestSession(t, DefaultRules())

	require.ErrorIs(t, s.Join("p2", "ALICE"), ErrNameTaken)
	require.ErrorIs(t, s.Join("p2", "  "), ErrEmptyName)
	require.NoError(t, s.Join("p2", "bob"))

	place(t, s, Green)
	require.NoError(t, s.Leave("p1"))
	require.ErrorIs(t, s.Leave("p1"), ErrUnknownPlayer)

	snap := s.Snapshot()
	assert.Equal(t, []string{"bob"}, snap.Players)
	assert.Equal(t, map[string]int{"bob": 0}, snap.Scores)
	assert.Len(t, snap.Nodes, 1, "nodes outlive the player who placed them")

	last := rec.events[len(rec.events)-1]
	assert.Equal(t, EventRoster, last.Kind)
	assert.Equal(t, []string{"bob"}, last.Players)

	id, ok := s.PlayerByName("Bob")
	assert.True(t, ok)
	assert.Equal(t, "p2", id)
}

func TestSessionRejoinKeepsScore(t *testing.T) {
	s, _ := newTestSession(t, DefaultRules())
	ids := place(t, s, Green, Blue)
	_, err := s.Connect("p1", ids[0], ids[1])
	require.NoError(t, err)

	require.NoError(t, s.Join("p1", "alice2"))
	name, ok := s.PlayerName("p1")
	require.True(t, ok)
	assert.Equal(t, "alice2", name)
	assert.Equal(t, 25, score(t, s))
}

func TestSessionSubscribeCancel(t *testing.T) {
	s, err := NewSession(DefaultRules())
	require.NoError(t, err)

	rec := &recorder{}
	cancel := s.Subscribe(rec.listen)
	require.NoError(t, s.Join("p1", "alice"))
	seen := len(rec.events)
	require.NotZero(t, seen)

	cancel()
	s.Start()
	assert.Len(t, rec.events, seen)
}

func TestSessionSetRules(t *testing.T) {
	s, _ := newTestSession(t, DefaultRules())

	bad := DefaultRules()
	bad.WinConditionTime = 0
	require.Error(t, s.SetRules(bad))

	tuned := DefaultRules()
	tuned.NodeRadius = 30
	require.NoError(t, s.SetRules(tuned))
	assert.Equal(t, tuned, s.Rules())

	place(t, s, Green)
	_, err := s.CreateNode("p1", Position{X: 10}, Blue)
	require.ErrorIs(t, err, ErrDuplicatePosition)
}

func TestSessionRandomColor(t *testing.T) {
	s, rec := newTestSession(t, DefaultRules())

	_, err := s.CreateNode("p1", Position{}, 0)
	require.NoError(t, err)
	require.Len(t, rec.events, 1)
	assert.True(t, rec.events[0].Node.Color.Valid())
}

func TestSessionConcurrentIntents(t *testing.T) {
	s, err := NewSession(DefaultRules())
	require.NoError(t, err)
	s.Start()

	players := []string{"a", "b", "c", "d"}
	for _, p := range players {
		require.NoError(t, s.Join(p, p))
	}

	var wg sync.WaitGroup
	for i, p := range players {
		wg.Add(1)
		go func(p string, seed uint64) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(seed, seed))
			for j := 0; j < 200; j++ {
				switch rng.IntN(4) {
				case 0, 1:
					_, _ = s.CreateNode(p, Position{X: rng.Float64() * 800, Y: rng.Float64() * 600}, 0)
				case 2:
					_, _ = s.Connect(p, NodeID(rng.IntN(300)), NodeID(rng.IntN(300)))
				default:
					_, _ = s.RemoveNode(p, NodeID(rng.IntN(300)))
				}
				if j%20 == 0 {
					s.Tick()
				}
			}
		}(p, uint64(i+1))
	}
	wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	requireSymmetric(t, s.graph)
}
