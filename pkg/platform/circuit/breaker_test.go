package circuit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

var errSinkDown = errors.New("sink down")

type BreakerSuite struct {
	suite.Suite
	now time.Time
}

func TestBreakerSuite(t *testing.T) {
	suite.Run(t, new(BreakerSuite))
}

func (s *BreakerSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *BreakerSuite) breaker(opts ...Option) *Breaker {
	opts = append([]Option{
		WithCooldown(time.Minute),
		WithClock(func() time.Time { return s.now }),
	}, opts...)
	return New("sink:webhook", opts...)
}

// deliver mirrors one publisher delivery: skip when the breaker refuses,
// otherwise record the outcome. It reports whether the sink was called.
func deliver(b *Breaker, err error) (called bool, change StateChange) {
	if !b.Allow() {
		return false, StateChange{}
	}
	if err != nil {
		_, change = b.RecordFailure()
		return true, change
	}
	_, change = b.RecordSuccess()
	return true, change
}

// =============================================================================
// Sink delivery
// =============================================================================
// Justification: the publisher relies on Allow to skip a failing sink without
// blocking other sinks, and on the state change to log transitions once.

func (s *BreakerSuite) TestDelivery() {
	s.Run("healthy sink is always called", func() {
		s.SetupTest()
		b := s.breaker()
		for range 10 {
			called, change := deliver(b, nil)
			s.True(called)
			s.Equal(StateChange{}, change)
		}
		s.Equal(StateClosed, b.State())
		s.Equal("sink:webhook", b.Name())
	})

	s.Run("consecutive failures open the breaker once", func() {
		s.SetupTest()
		b := s.breaker(WithFailureThreshold(3))

		var opened int
		for range 3 {
			called, change := deliver(b, errSinkDown)
			s.True(called)
			if change.Opened {
				opened++
			}
		}
		s.Equal(1, opened)
		s.True(b.IsOpen())

		called, _ := deliver(b, nil)
		s.False(called, "open breaker skips the sink")
	})

	s.Run("an intermittent sink stays closed", func() {
		s.SetupTest()
		b := s.breaker(WithFailureThreshold(3))
		outcomes := []error{errSinkDown, errSinkDown, nil, errSinkDown, errSinkDown, nil}

		for _, err := range outcomes {
			called, _ := deliver(b, err)
			s.True(called)
		}
		s.Equal(StateClosed, b.State())
	})
}

func (s *BreakerSuite) TestRecovery() {
	s.Run("successful probe after cooldown closes the breaker", func() {
		s.SetupTest()
		b := s.breaker(WithFailureThreshold(1))
		deliver(b, errSinkDown)

		s.now = s.now.Add(59 * time.Second)
		called, _ := deliver(b, nil)
		s.False(called)

		s.now = s.now.Add(time.Second)
		called, change := deliver(b, nil)
		s.True(called)
		s.True(change.Closed)
		s.Equal(StateClosed, b.State())
	})

	s.Run("only one probe is in flight", func() {
		s.SetupTest()
		b := s.breaker(WithFailureThreshold(1))
		deliver(b, errSinkDown)
		s.now = s.now.Add(time.Minute)

		s.True(b.Allow())
		s.False(b.Allow())
	})

	s.Run("failed probe restarts the cooldown", func() {
		s.SetupTest()
		b := s.breaker(WithFailureThreshold(1))
		deliver(b, errSinkDown)

		s.now = s.now.Add(time.Minute)
		called, change := deliver(b, errSinkDown)
		s.True(called)
		s.False(change.Opened)
		s.True(b.IsOpen())

		s.now = s.now.Add(30 * time.Second)
		called, _ = deliver(b, nil)
		s.False(called)

		s.now = s.now.Add(30 * time.Second)
		called, _ = deliver(b, nil)
		s.True(called)
	})

	s.Run("success threshold needs that many good probes", func() {
		s.SetupTest()
		b := s.breaker(WithFailureThreshold(1), WithSuccessThreshold(2))
		deliver(b, errSinkDown)

		s.now = s.now.Add(time.Minute)
		_, change := deliver(b, nil)
		s.False(change.Closed)
		s.True(b.IsOpen())

		s.now = s.now.Add(time.Minute)
		_, change = deliver(b, nil)
		s.True(change.Closed)
		s.False(b.IsOpen())
	})

	s.Run("reset closes immediately", func() {
		s.SetupTest()
		b := s.breaker(WithFailureThreshold(1))
		deliver(b, errSinkDown)

		b.Reset()

		called, _ := deliver(b, nil)
		s.True(called)
		s.Equal(StateClosed, b.State())
	})
}
