package stage

import "github.com/bridgeval/engine/pkg/party"

// Collector implements the bookkeeping shared by every broadcast stage:
// accepting exactly one message per expected sender, and reporting which
// senders are still outstanding.
//
// Concrete stages embed a *Collector and read the stored contents in Finalize.
type Collector struct {
	number   Number
	expected party.IndexSlice
	received map[party.Index]Content
}

// NewCollector returns a Collector for stage number, awaiting one message from each of expected.
func NewCollector(number Number, expected party.IndexSlice) *Collector {
	return &Collector{
		number:   number,
		expected: expected.Copy(),
		received: make(map[party.Index]Content, len(expected)),
	}
}

// Number implements Stage.
func (c *Collector) Number() Number { return c.number }

// ShouldDelay implements Stage.
func (c *Collector) ShouldDelay(n Number) bool { return n > c.number }

// Process implements Stage.
func (c *Collector) Process(from party.Index, content Content) Status {
	if content == nil || content.StageNumber() != c.number {
		return Ignored
	}
	if !c.expected.Contains(from) {
		return Ignored
	}
	if _, ok := c.received[from]; ok {
		return Ignored
	}
	c.received[from] = content
	if c.Done() {
		return Complete
	}
	return Progress
}

// AwaitedParties implements Stage.
func (c *Collector) AwaitedParties() party.IndexSlice {
	awaited := make(party.IndexSlice, 0, len(c.expected)-len(c.received))
	for _, idx := range c.expected {
		if _, ok := c.received[idx]; !ok {
			awaited = append(awaited, idx)
		}
	}
	return awaited
}

// Done returns true once every expected sender has contributed.
func (c *Collector) Done() bool {
	return len(c.received) == len(c.expected)
}

// Expected returns the senders this stage waits for.
func (c *Collector) Expected() party.IndexSlice { return c.expected }

// Received returns the message of from, if any.
func (c *Collector) Received(from party.Index) (Content, bool) {
	content, ok := c.received[from]
	return content, ok
}
