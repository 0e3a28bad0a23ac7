package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"propertyvet/internal/screening/models"
	"propertyvet/internal/screening/publish/mocks"
	"propertyvet/pkg/platform/circuit"
	"propertyvet/pkg/platform/sentinel"
)

type PublisherSuite struct {
	suite.Suite
	ctrl *gomock.Controller
	ctx  context.Context
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.ctx = context.Background()
}

func (s *PublisherSuite) sink(name string) *mocks.MockSink {
	m := mocks.NewMockSink(s.ctrl)
	m.EXPECT().Name().Return(name).AnyTimes()
	return m
}

func report(id string) models.Report {
	return models.Report{RequestID: id, Tier: models.TierBasic, State: models.LifecycleCompleted}
}

func (s *PublisherSuite) close(p *Publisher) {
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()
	s.Require().NoError(p.Close(ctx))
}

func (s *PublisherSuite) TestFanOut() {
	file := s.sink("file")
	kafka := s.sink("kafka")
	file.EXPECT().Publish(gomock.Any(), report("chk-1")).Return(nil)
	file.EXPECT().Publish(gomock.Any(), report("chk-2")).Return(nil)
	kafka.EXPECT().Publish(gomock.Any(), report("chk-1")).Return(nil)
	kafka.EXPECT().Publish(gomock.Any(), report("chk-2")).Return(nil)

	p := NewPublisher([]Sink{file, kafka})
	s.Require().NoError(p.Publish(s.ctx, report("chk-1")))
	s.Require().NoError(p.Publish(s.ctx, report("chk-2")))

	s.close(p)
}

// =============================================================================
// Failure Isolation
// =============================================================================
// Justification: one failing destination must not stop delivery to the others,
// and an open breaker stops calls to the failing sink.

func (s *PublisherSuite) TestFailingSinkTripsBreaker() {
	webhook := s.sink("webhook")
	file := s.sink("file")
	webhook.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("connection refused")).Times(2)
	file.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(4)

	p := NewPublisher([]Sink{webhook, file}, WithBreakerOptions(
		circuit.WithFailureThreshold(2),
		circuit.WithCooldown(time.Hour),
	))
	for _, id := range []string{"a", "b", "c", "d"} {
		s.Require().NoError(p.Publish(s.ctx, report(id)))
	}
	s.close(p)

	s.Equal(circuit.StateOpen, p.SinkStates()["webhook"])
	s.Equal(circuit.StateClosed, p.SinkStates()["file"])
}

func (s *PublisherSuite) TestFullBufferDropsReport() {
	started := make(chan struct{})
	release := make(chan struct{})
	slow := s.sink("slow")
	slow.EXPECT().Publish(gomock.Any(), report("first")).DoAndReturn(
		func(context.Context, models.Report) error {
			close(started)
			<-release
			return nil
		})
	slow.EXPECT().Publish(gomock.Any(), report("second")).Return(nil)

	p := NewPublisher([]Sink{slow}, WithBuffer(1))
	s.Require().NoError(p.Publish(s.ctx, report("first")))
	<-started

	s.Require().NoError(p.Publish(s.ctx, report("second")))
	s.ErrorIs(p.Publish(s.ctx, report("third")), ErrBufferFull)

	close(release)
	s.close(p)
}

func (s *PublisherSuite) TestPublishAfterClose() {
	p := NewPublisher(nil)
	s.close(p)

	err := p.Publish(s.ctx, report("late"))
	s.ErrorIs(err, ErrClosed)
	s.ErrorIs(err, sentinel.ErrClosed)
	s.NoError(p.Close(s.ctx))
}
