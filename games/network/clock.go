package network

type ClockState int

const (
	Inactive ClockState = iota
	Active
	Won
)

func (s ClockState) String() string {
	switch s {
	case Active:
		return "active"
	case Won:
		return "won"
	default:
		return "inactive"
	}
}

func (s ClockState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// TickResult describes what a single tick asks the caller to do.
type TickResult struct {
	Elapsed    int
	Resilience int
	Won        bool // true only on the tick that reached the win condition
	Decay      bool
	Dissolve   bool
}

// Clock is the resilience state machine. It counts whole ticks and knows
// nothing about wall time; the caller decides how long a tick is.
type Clock struct {
	rules      Rules
	state      ClockState
	elapsed    int
	resilience int
}

func NewClock(rules Rules) *Clock {
	return &Clock{rules: rules}
}

// Start moves an inactive clock to Active. It reports whether anything changed.
func (c *Clock) Start() bool {
	if c.state != Inactive {
		return false
	}
	c.state = Active
	return true
}

func (c *Clock) State() ClockState {
	return c.state
}

func (c *Clock) Elapsed() int {
	return c.elapsed
}

func (c *Clock) Resilience() int {
	return c.resilience
}

func (c *Clock) setRules(r Rules) {
	c.rules = r
}

// Tick advances the clock by one second given the current live node count.
// Inactive and won clocks do nothing.
func (c *Clock) Tick(size int) TickResult {
	if c.state != Active {
		return TickResult{Elapsed: c.elapsed, Resilience: c.resilience}
	}

	c.elapsed++

	if size >= c.rules.MinNodeThreshold {
		c.resilience++
	} else {
		c.resilience = 0
	}

	res := TickResult{
		Elapsed:    c.elapsed,
		Resilience: c.resilience,
	}

	if c.resilience >= c.rules.WinConditionTime {
		c.state = Won
		res.Won = true
		return res
	}

	res.Decay = c.elapsed%c.rules.DecayInterval == 0

	since := c.elapsed - c.rules.DissolveDelay
	res.Dissolve = since > 0 && since%c.rules.DissolveInterval == 0

	return res
}

// InactivityDue reports whether a full inactivity window has passed since
// mark, the later of a player's last interaction and their last inactivity
// penalty. Charging once per window keeps an idle player from being billed on
// every tick.
func (c *Clock) InactivityDue(mark int) bool {
	return c.state == Active && c.elapsed-mark >= c.rules.InactivityWindow
}
