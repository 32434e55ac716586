package brokertest

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"signaltap/events"
)

type fakeSink struct {
	name   string
	failAt int // 1-based publish count to fail on, 0 never
	got    []events.Event
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Publish(e events.Event) error {
	s.got = append(s.got, e)
	if s.failAt > 0 && len(s.got) == s.failAt {
		return errors.New("broker unavailable")
	}
	return nil
}

func TestRunner_Run(t *testing.T) {
	ok := &fakeSink{name: "mqtt"}
	bad := &fakeSink{name: "kafka", failAt: 3}

	results := NewRunner(TestConfig{Messages: 5, NumTags: 2, PLC: "10.0.0.1"}, ok, bad).Run()
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}

	if !results[0].Success || results[0].MessagesSent != 5 || results[0].Errors != 0 {
		t.Errorf("mqtt result = %+v", results[0])
	}
	if results[1].Success || results[1].MessagesSent != 4 || results[1].Errors != 1 || results[1].Error == nil {
		t.Errorf("kafka result = %+v", results[1])
	}

	if len(ok.got) != 5 {
		t.Fatalf("sink saw %d events", len(ok.got))
	}
	if ok.got[0].Tag != "SinkCheck_000" || ok.got[3].Tag != "SinkCheck_001" {
		t.Errorf("tags = %q, %q", ok.got[0].Tag, ok.got[3].Tag)
	}
	if ok.got[0].Type != events.TagRead || !ok.got[0].Success || ok.got[0].PLC != "10.0.0.1" {
		t.Errorf("event = %+v", ok.got[0])
	}
}

func TestNewRunner_Defaults(t *testing.T) {
	s := &fakeSink{name: "valkey"}
	NewRunner(TestConfig{}, s).Run()
	if len(s.got) != 1 {
		t.Errorf("zero config published %d events, want 1", len(s.got))
	}
}

func TestCalculateLatencyStats(t *testing.T) {
	if avg, _, _, _, max := calculateLatencyStats(nil); avg != 0 || max != 0 {
		t.Error("empty input should give zeros")
	}

	var in []time.Duration
	for i := 100; i >= 1; i-- {
		in = append(in, time.Duration(i)*time.Millisecond)
	}
	avg, p50, p95, p99, max := calculateLatencyStats(in)
	if avg != 50500*time.Microsecond {
		t.Errorf("avg = %v", avg)
	}
	if p50 != 50*time.Millisecond || p95 != 95*time.Millisecond || p99 != 99*time.Millisecond {
		t.Errorf("p50/p95/p99 = %v/%v/%v", p50, p95, p99)
	}
	if max != 100*time.Millisecond {
		t.Errorf("max = %v", max)
	}
	if in[0] != 100*time.Millisecond {
		t.Error("input was reordered")
	}
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	failed := Report(&buf, []TestResult{
		{Sink: "mqtt", MessagesSent: 10, Success: true, AvgLatency: time.Millisecond},
		{Sink: "kafka", Errors: 10, Error: errors.New("not connected")},
	})
	if failed != 1 {
		t.Errorf("failed = %d", failed)
	}
	out := buf.String()
	for _, want := range []string{"mqtt    PASS", "kafka   FAIL", "error: not connected", "1 passed, 1 failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if Report(&buf, nil) != 0 || !strings.Contains(buf.String(), "No sinks") {
		t.Errorf("empty report = %q", buf.String())
	}
}
