package events

import (
	"sync"
	"testing"
)

func TestSubscribeAndEmit(t *testing.T) {
	bus := NewBus(16)
	var received []Event

	bus.Subscribe(func(e Event) {
		received = append(received, e)
	})

	bus.Emit(Event{Type: TagRead, PLC: "10.0.0.5", Tag: "Speed", Value: int64(1500), Success: true})
	bus.Emit(Event{Type: TagWritten, PLC: "10.0.0.5", Tag: "Speed", Value: 1200, Success: true})
	bus.Close()

	if len(received) != 2 {
		t.Fatalf("expected 2 events, got %d", len(received))
	}
	if received[0].Type != TagRead {
		t.Errorf("expected TagRead, got %v", received[0].Type)
	}
	if received[1].Type != TagWritten {
		t.Errorf("expected TagWritten, got %v", received[1].Type)
	}
}

func TestEmitFillsIDAndTimestamp(t *testing.T) {
	bus := NewBus(4)
	var received []Event
	bus.Subscribe(func(e Event) { received = append(received, e) })

	bus.Emit(Event{Type: TagRead})
	bus.Emit(Event{Type: TagRead, ID: "fixed"})
	bus.Close()

	if len(received) != 2 {
		t.Fatalf("expected 2 events, got %d", len(received))
	}
	if received[0].ID == "" || len(received[0].ID) != 36 {
		t.Errorf("expected uuid, got %q", received[0].ID)
	}
	if received[1].ID != "fixed" {
		t.Errorf("preset id replaced: %q", received[1].ID)
	}
	if received[0].Timestamp.IsZero() {
		t.Error("expected non-zero timestamp")
	}
}

func TestSubscribeTypes(t *testing.T) {
	bus := NewBus(16)
	var received []Event

	bus.SubscribeTypes(func(e Event) {
		received = append(received, e)
	}, TagWritten)

	bus.Emit(Event{Type: TagRead, Tag: "A"})
	bus.Emit(Event{Type: TagWritten, Tag: "B"})
	bus.Emit(Event{Type: TagsScanned, Count: 4})
	bus.Close()

	if len(received) != 1 || received[0].Tag != "B" {
		t.Fatalf("expected only the write, got %+v", received)
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus(16)
	var mu sync.Mutex
	count := 0

	id := bus.Subscribe(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	bus.Unsubscribe(id)
	bus.Unsubscribe(999)

	bus.Emit(Event{Type: TagRead})
	bus.Close()

	if count != 0 {
		t.Errorf("expected 0 after unsubscribe, got %d", count)
	}
}

func TestEmitDropsWhenFull(t *testing.T) {
	bus := NewBus(1)
	block := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	bus.Subscribe(func(e Event) {
		once.Do(func() { close(started) })
		<-block
	})

	bus.Emit(Event{Type: TagRead})
	<-started // dispatcher now holds the first event
	if !bus.Emit(Event{Type: TagRead}) {
		t.Fatal("second event should fit in the queue")
	}
	if bus.Emit(Event{Type: TagRead}) {
		t.Error("third event should be dropped")
	}
	if bus.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", bus.Dropped())
	}

	close(block)
	bus.Close()
	if bus.Emit(Event{Type: TagRead}) {
		t.Error("Emit after Close accepted")
	}
	bus.Close()
}

func TestHandlerPanicDoesNotStopBus(t *testing.T) {
	bus := NewBus(4)
	var got []string
	bus.SubscribeTypes(func(e Event) { panic("boom") }, TagRead)
	bus.SubscribeTypes(func(e Event) { got = append(got, e.Tag) }, TagWritten)

	bus.Emit(Event{Type: TagRead, Tag: "A"})
	bus.Emit(Event{Type: TagWritten, Tag: "B"})
	bus.Close()

	if len(got) != 1 || got[0] != "B" {
		t.Errorf("got %v, want [B]", got)
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Name() string { return "recorder" }

func (s *recordingSink) Publish(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func TestAddSinkAndConcurrentEmit(t *testing.T) {
	bus := NewBus(200)
	sink := &recordingSink{}
	bus.AddSink(sink)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Emit(Event{Type: TagRead})
		}()
	}
	wg.Wait()
	bus.Close()

	if len(sink.events) != 100 {
		t.Errorf("expected 100, got %d", len(sink.events))
	}
}

func TestEventSourceAndTypeName(t *testing.T) {
	e := Event{Type: TagsScanned, PLC: "10.0.0.5", Slot: 2}
	if e.Source() != "10.0.0.5/2" {
		t.Errorf("Source() = %q", e.Source())
	}
	if e.Type.String() != "tags_scanned" {
		t.Errorf("String() = %q", e.Type.String())
	}
	if Type(42).String() != "type_42" {
		t.Errorf("unknown type = %q", Type(42).String())
	}
}
