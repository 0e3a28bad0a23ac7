package publish

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"propertyvet/internal/screening/models"
	"propertyvet/pkg/platform/audit"
	auditpublisher "propertyvet/pkg/platform/audit/publisher"
	auditmemory "propertyvet/pkg/platform/audit/store/memory"
)

func completedReport() models.Report {
	return models.Report{
		RequestID:  "chk-42",
		Tier:       models.TierStandard,
		SubjectRef: "sub_0123456789abcdef",
		State:      models.LifecycleCompleted,
		Result:     models.AggregatedResult{CompositeScore: 752, Coverage: 1},
		RiskLevel:  models.RiskLow,
		Recommendation: models.Recommendation{
			Decision: models.DecisionApprove,
			Reason:   "composite score 752.00 with full cross-validation",
		},
		SubmittedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		CompletedAt: time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC),
	}
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(filepath.Join(dir, "reports"))
	require.NoError(t, err)

	require.NoError(t, sink.Publish(context.Background(), completedReport()))

	data, err := os.ReadFile(filepath.Join(dir, "reports", "chk-42.json"))
	require.NoError(t, err)
	var got models.Report
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 752.0, got.Result.CompositeScore)

	entries, err := os.ReadDir(filepath.Join(dir, "reports"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	t.Run("request id cannot escape the directory", func(t *testing.T) {
		r := completedReport()
		r.RequestID = "../../escape"
		require.NoError(t, sink.Publish(context.Background(), r))

		_, err := os.Stat(filepath.Join(dir, "reports", "escape.json"))
		assert.NoError(t, err)
	})
}

func TestWebhookSink(t *testing.T) {
	type captured struct {
		event string
		body  []byte
	}
	var (
		mu     sync.Mutex
		status = http.StatusNoContent
	)
	got := make(chan captured, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- captured{event: r.Header.Get(EventHeader), body: body}
		mu.Lock()
		defer mu.Unlock()
		w.WriteHeader(status)
	}))
	defer server.Close()

	t.Run("posts to the request callback", func(t *testing.T) {
		sink := NewWebhookSink("", WithWebhookClient(server.Client()))
		r := completedReport()
		r.Callback = server.URL + "/hooks/screening"

		require.NoError(t, sink.Publish(context.Background(), r))

		c := <-got
		assert.Equal(t, "check.completed", c.event)
		var body map[string]any
		require.NoError(t, json.Unmarshal(c.body, &body))
		assert.Equal(t, "chk-42", body["request_id"])
		assert.NotContains(t, body, "callback")
	})

	t.Run("falls back to the configured url", func(t *testing.T) {
		sink := NewWebhookSink(server.URL, WithWebhookClient(server.Client()))
		r := completedReport()
		r.State = models.LifecycleFailed

		require.NoError(t, sink.Publish(context.Background(), r))
		assert.Equal(t, "check.failed", (<-got).event)
	})

	t.Run("skips when there is no target", func(t *testing.T) {
		sink := NewWebhookSink("", WithWebhookClient(server.Client()))
		assert.NoError(t, sink.Publish(context.Background(), completedReport()))
		assert.Empty(t, got)
	})

	t.Run("non-2xx is an error", func(t *testing.T) {
		mu.Lock()
		status = http.StatusBadGateway
		mu.Unlock()
		sink := NewWebhookSink(server.URL, WithWebhookClient(server.Client()))

		assert.Error(t, sink.Publish(context.Background(), completedReport()))
		<-got
	})
}

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (p *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	p.records = append(p.records, rs...)
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		results = append(results, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return results
}

func TestKafkaSink(t *testing.T) {
	producer := &fakeProducer{}
	sink := NewKafkaSink(producer, "")

	require.NoError(t, sink.Publish(context.Background(), completedReport()))

	require.Len(t, producer.records, 1)
	rec := producer.records[0]
	assert.Equal(t, DefaultTopic, rec.Topic)
	assert.Equal(t, "chk-42", string(rec.Key))
	assert.Equal(t, "check.completed", string(rec.Headers[0].Value))

	producer.err = kgo.ErrRecordTimeout
	assert.ErrorIs(t, sink.Publish(context.Background(), completedReport()), kgo.ErrRecordTimeout)
}

type fakeExecer struct {
	sql  string
	args []any
}

func (e *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	e.sql, e.args = sql, args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestPostgresSink(t *testing.T) {
	db := &fakeExecer{}
	sink := NewPostgresSink(db)

	require.NoError(t, sink.Publish(context.Background(), completedReport()))

	assert.Contains(t, db.sql, "ON CONFLICT (request_id) DO UPDATE")
	require.Len(t, db.args, 12)
	assert.Equal(t, "chk-42", db.args[0])
	assert.Equal(t, "approve", db.args[6])
	assert.Equal(t, 752.0, db.args[7])

	var doc models.Report
	require.NoError(t, json.Unmarshal(db.args[9].([]byte), &doc))
	assert.Equal(t, models.RiskLow, doc.RiskLevel)
}

func TestAuditSink(t *testing.T) {
	store := auditmemory.NewInMemoryStore()
	sink := NewAuditSink(auditpublisher.NewPublisher(store))

	require.NoError(t, sink.Publish(context.Background(), completedReport()))
	failed := completedReport()
	failed.RequestID = "chk-43"
	failed.State = models.LifecycleFailed
	failed.Failure = "internal fault"
	require.NoError(t, sink.Publish(context.Background(), failed))

	events, err := store.ListByCheck(context.Background(), "chk-42")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventCheckCompleted), events[0].Action)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	assert.Equal(t, "approve", events[0].Decision)

	events, err = store.ListByCheck(context.Background(), "chk-43")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventCheckFailed), events[0].Action)
	assert.Equal(t, "internal fault", events[0].Reason)
}
