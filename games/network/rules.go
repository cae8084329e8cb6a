package network

import (
	"errors"
	"fmt"
)

// Rules is the tunable scoring and timing table for a session. Durations are
// counted in clock ticks, which are one second in a live game.
type Rules struct {
	RedPenalty     int `yaml:"red_penalty" json:"red_penalty"`
	GreenBlueBonus int `yaml:"green_blue_bonus" json:"green_blue_bonus"`
	SameColorBonus int `yaml:"same_color_bonus" json:"same_color_bonus"`
	DefaultBonus   int `yaml:"default_bonus" json:"default_bonus"`

	ConnectBonus    int `yaml:"connect_bonus" json:"connect_bonus"`
	ComboThreshold  int `yaml:"combo_threshold" json:"combo_threshold"`
	ComboMultiplier int `yaml:"combo_multiplier" json:"combo_multiplier"`

	RemovalPenalty     int `yaml:"removal_penalty" json:"removal_penalty"`
	EdgeRemovalPenalty int `yaml:"edge_removal_penalty" json:"edge_removal_penalty"`
	InactivityPenalty  int `yaml:"inactivity_penalty" json:"inactivity_penalty"`
	InactivityWindow   int `yaml:"inactivity_window" json:"inactivity_window"`
	DecayPenalty       int `yaml:"decay_penalty" json:"decay_penalty"`
	DecayInterval      int `yaml:"decay_interval" json:"decay_interval"`
	DissolveDelay      int `yaml:"dissolve_delay" json:"dissolve_delay"`
	DissolveInterval   int `yaml:"dissolve_interval" json:"dissolve_interval"`

	MinNodeThreshold int `yaml:"min_node_threshold" json:"min_node_threshold"`
	WinConditionTime int `yaml:"win_condition_time" json:"win_condition_time"`

	MinCycleLength int     `yaml:"min_cycle_length" json:"min_cycle_length"`
	CycleBonus     int     `yaml:"cycle_bonus" json:"cycle_bonus"`
	NodeRadius     float64 `yaml:"node_radius" json:"node_radius"`
}

func DefaultRules() Rules {
	return Rules{
		RedPenalty:     10,
		GreenBlueBonus: 15,
		SameColorBonus: 5,
		DefaultBonus:   2,

		ConnectBonus:    10,
		ComboThreshold:  3,
		ComboMultiplier: 2,

		RemovalPenalty:     20,
		EdgeRemovalPenalty: 10,
		InactivityPenalty:  5,
		InactivityWindow:   10,
		DecayPenalty:       1,
		DecayInterval:      5,
		DissolveDelay:      60,
		DissolveInterval:   15,

		MinNodeThreshold: 5,
		WinConditionTime: 300,

		MinCycleLength: 5,
		CycleBonus:     200,
		NodeRadius:     0,
	}
}

// Validate reports the first setting that would make the clock or the
// detector misbehave. Penalties are magnitudes and may not be negative.
func (r Rules) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"combo_threshold", r.ComboThreshold},
		{"combo_multiplier", r.ComboMultiplier},
		{"inactivity_window", r.InactivityWindow},
		{"decay_interval", r.DecayInterval},
		{"dissolve_interval", r.DissolveInterval},
		{"min_node_threshold", r.MinNodeThreshold},
		{"win_condition_time", r.WinConditionTime},
	}
	for _, p := range positive {
		if p.value < 1 {
			return fmt.Errorf("invalid rules: %s must be at least 1, got %d", p.name, p.value)
		}
	}

	if r.MinCycleLength < 3 {
		return fmt.Errorf("invalid rules: min_cycle_length must be at least 3, got %d", r.MinCycleLength)
	}
	if r.DissolveDelay < 0 {
		return fmt.Errorf("invalid rules: dissolve_delay must not be negative, got %d", r.DissolveDelay)
	}
	if r.NodeRadius < 0 {
		return fmt.Errorf("invalid rules: node_radius must not be negative, got %v", r.NodeRadius)
	}

	penalties := []int{
		r.RedPenalty,
		r.RemovalPenalty,
		r.EdgeRemovalPenalty,
		r.InactivityPenalty,
		r.DecayPenalty,
	}
	for _, p := range penalties {
		if p < 0 {
			return errors.New("invalid rules: penalties are magnitudes and must not be negative")
		}
	}

	return nil
}

// Outcome is the result of connecting two nodes. Cascade lists nodes the
// caller must remove with Graph.RemoveNode.
type Outcome struct {
	Delta   int
	Cascade []NodeID
}

// ScoreForConnection applies the color interaction table. Any red endpoint
// costs the red penalty exactly once; two reds additionally cascade both
// endpoints out of the graph.
func ScoreForConnection(r Rules, a, b Node) Outcome {
	switch {
	case a.Color == Red && b.Color == Red:
		return Outcome{
			Delta:   -r.RedPenalty,
			Cascade: []NodeID{a.ID, b.ID},
		}
	case a.Color == Red || b.Color == Red:
		return Outcome{Delta: -r.RedPenalty}
	case (a.Color == Green && b.Color == Blue) || (a.Color == Blue && b.Color == Green):
		return Outcome{Delta: r.GreenBlueBonus}
	case a.Color == b.Color:
		return Outcome{Delta: r.SameColorBonus}
	default:
		return Outcome{Delta: r.DefaultBonus}
	}
}

// combo tracks consecutive successful connects for one player.
type combo struct {
	counter int
}

func (c *combo) hit() {
	c.counter++
}

func (c *combo) reset() {
	c.counter = 0
}

func (c combo) multiplier(r Rules) int {
	if c.counter >= r.ComboThreshold {
		return r.ComboMultiplier
	}
	return 1
}
