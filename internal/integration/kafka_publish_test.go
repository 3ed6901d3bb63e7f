//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkatc "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/quake-globe/internal/adapter/kafka"
	"github.com/couchcryptid/quake-globe/internal/config"
	"github.com/couchcryptid/quake-globe/internal/domain"
	"github.com/couchcryptid/quake-globe/internal/observability"
	"github.com/couchcryptid/quake-globe/internal/pipeline"
	"github.com/couchcryptid/quake-globe/internal/scene"
	"github.com/couchcryptid/quake-globe/internal/viewer"
)

const testTopic = "test-earthquake-snapshots"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := kafkatc.Run(ctx, "confluentinc/confluent-local:7.5.0", kafkatc.WithClusterID("quake-globe-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     3,
		ReplicationFactor: 1,
	}))
}

type received struct {
	Event   domain.Event
	Key     string
	Headers map[string]string
}

func readEvent(ctx context.Context, t *testing.T, consumer *kafkago.Reader) received {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from snapshot topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var e domain.Event
	require.NoError(t, json.Unmarshal(msg.Value, &e), "unmarshal snapshot message")
	return received{Event: e, Key: string(msg.Key), Headers: headers}
}

func newConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

func sampleEvents() []domain.Event {
	depth := 35.0
	return []domain.Event{
		{ID: "us1", Magnitude: 6.2, Place: "Kermadec Islands", TimeMillis: 1_714_100_000_000, Longitude: -177.9, Latitude: -29.5, DepthKm: &depth},
		{ID: "ak2", Magnitude: 2.1, Place: "Central Alaska", TimeMillis: 1_714_100_500_000, Longitude: -149.9, Latitude: 61.2},
	}
}

// TestPublisher verifies every event of a snapshot arrives keyed by id with
// window and generation headers.
func TestPublisher(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic}
	pub := kafka.NewPublisher(cfg, discardLogger())
	t.Cleanup(func() { _ = pub.Close() })

	w, err := domain.Canned(domain.GranularityWeek)
	require.NoError(t, err)
	require.NoError(t, pub.PublishSnapshot(ctx, w, 7, sampleEvents()))

	consumer := newConsumer(t, broker)
	got := map[string]received{}
	for len(got) < 2 {
		r := readEvent(ctx, t, consumer)
		got[r.Key] = r
	}

	kermadec := got["us1"]
	assert.Equal(t, "week", kermadec.Headers[kafka.HeaderWindow])
	assert.Equal(t, "7", kermadec.Headers[kafka.HeaderGeneration])
	_, err = time.Parse(time.RFC3339, kermadec.Headers[kafka.HeaderPublishedAt])
	assert.NoError(t, err, "published_at should be valid RFC3339")
	assert.Equal(t, 6.2, kermadec.Event.Magnitude)
	require.NotNil(t, kermadec.Event.DepthKm)
	assert.Equal(t, 35.0, *kermadec.Event.DepthKm)

	assert.Nil(t, got["ak2"].Event.DepthKm)
}

type staticFeed struct{ set domain.EventSet }

func (f staticFeed) Fetch(context.Context, domain.Window) (domain.EventSet, error) { return f.set, nil }

// TestRefresherPublishesSnapshots wires controller, refresher and publisher
// against a real broker.
func TestRefresherPublishesSnapshots(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic}
	pub := kafka.NewPublisher(cfg, discardLogger())
	t.Cleanup(func() { _ = pub.Close() })

	metrics := observability.NewMetricsForTesting()
	ctrl := viewer.New(viewer.Deps{
		Feed:    staticFeed{set: domain.NewEventSet(sampleEvents())},
		Scene:   scene.NewGlobe(800, 600),
		Metrics: metrics,
		Logger:  discardLogger(),
	})
	t.Cleanup(ctrl.Close)

	day, err := domain.Canned(domain.GranularityDay)
	require.NoError(t, err)
	p := pipeline.New(ctrl, pub, day, time.Hour, discardLogger(), metrics)

	runCtx, runCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(runCtx) }()

	consumer := newConsumer(t, broker)
	first := readEvent(ctx, t, consumer)
	second := readEvent(ctx, t, consumer)

	runCancel()
	require.NoError(t, <-errCh)
	require.NoError(t, p.CheckReadiness(ctx))

	assert.ElementsMatch(t, []string{"us1", "ak2"}, []string{first.Key, second.Key})
	assert.Equal(t, "day", first.Headers[kafka.HeaderWindow])
	assert.Equal(t, "1", first.Headers[kafka.HeaderGeneration])
}
