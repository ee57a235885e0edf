package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/trafficsense/forecast/core/model"
	"github.com/trafficsense/forecast/infra/logger"
)

type fakeToken struct{ err error }

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t fakeToken) Error() error { return t.err }

type fakeClient struct {
	topics   []string
	payloads [][]byte
	failures int
}

func (f *fakeClient) IsConnected() bool       { return true }
func (f *fakeClient) Connect() paho.Token     { return fakeToken{} }
func (f *fakeClient) Disconnect(quiesce uint) {}
func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	if f.failures > 0 {
		f.failures--
		return fakeToken{err: errors.New("broker unavailable")}
	}
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload.([]byte))
	return fakeToken{}
}

func testSet() model.ForecastSet {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	return model.ForecastSet{
		LocationID:   "loc-42",
		GeneratedAt:  now,
		HourBucket:   now,
		ModelVersion: "v1",
		Points: []model.ForecastPoint{
			{TargetTime: now.Add(time.Hour), HorizonHours: 1, Congestion: 70, Level: 4, Confidence: 0.9},
		},
	}
}

func TestPublishForecastTopicAndPayload(t *testing.T) {
	cli := &fakeClient{}
	p := &PahoPublisher{cli: cli, topicPrefix: "traffic/forecast", maxRetries: 3, backoff: time.Millisecond, logger: logger.NopLogger{}}

	if err := p.PublishForecast(testSet()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(cli.topics) != 1 || cli.topics[0] != "traffic/forecast/loc-42" {
		t.Fatalf("unexpected topics %v", cli.topics)
	}
	var decoded model.ForecastSet
	if err := json.Unmarshal(cli.payloads[0], &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.LocationID != "loc-42" || len(decoded.Points) != 1 {
		t.Fatalf("unexpected payload %+v", decoded)
	}
}

func TestPublishForecastRetriesTransientFailure(t *testing.T) {
	cli := &fakeClient{failures: 2}
	p := &PahoPublisher{cli: cli, topicPrefix: "traffic/forecast", maxRetries: 3, backoff: time.Millisecond, logger: logger.NopLogger{}}

	if err := p.PublishForecast(testSet()); err != nil {
		t.Fatalf("publish should succeed after retries: %v", err)
	}
	if len(cli.topics) != 1 {
		t.Fatalf("expected one delivered message, got %d", len(cli.topics))
	}
}

func TestPublishForecastExhaustsRetries(t *testing.T) {
	cli := &fakeClient{failures: 10}
	p := &PahoPublisher{cli: cli, topicPrefix: "traffic/forecast", maxRetries: 2, backoff: time.Millisecond, logger: logger.NopLogger{}}

	if err := p.PublishForecast(testSet()); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Enabled: true}
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled config without broker must fail validation")
	}
	cfg.Broker = "tcp://localhost:1883"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
