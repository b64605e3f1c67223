package progress

import (
	"testing"
	"time"
)

func TestStagePercentInterpolatesWithinRange(t *testing.T) {
	if got := StagePercent(StageParsing, 0); got != 10 {
		t.Fatalf("expected 10 at stage start, got %v", got)
	}
	if got := StagePercent(StageParsing, 1); got != 30 {
		t.Fatalf("expected 30 at stage end, got %v", got)
	}
	if got := StagePercent(StageParsing, 0.5); got != 20 {
		t.Fatalf("expected 20 at stage midpoint, got %v", got)
	}
}

func TestStagePercentClampsOutOfRangeProgress(t *testing.T) {
	if got := StagePercent(StageEmbedding, -1); got != 60 {
		t.Fatalf("expected clamp to stage start, got %v", got)
	}
	if got := StagePercent(StageEmbedding, 2); got != 75 {
		t.Fatalf("expected clamp to stage end, got %v", got)
	}
}

func TestSubscribeDeliversConnectionEstablishedFirst(t *testing.T) {
	bus := NewBus(4, time.Minute, time.Minute)
	ch, unsubscribe, err := bus.Subscribe("doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer unsubscribe()

	ev := <-ch
	if ev.Type != EventConnectionEstablished {
		t.Fatalf("expected connection_established as first event, got %v", ev.Type)
	}
}

func TestSubscribeRejectsBeyondMaxSubscribers(t *testing.T) {
	bus := NewBus(1, time.Minute, time.Minute)
	_, unsubscribe, err := bus.Subscribe("doc-1")
	if err != nil {
		t.Fatalf("unexpected error on first subscribe: %v", err)
	}
	defer unsubscribe()

	_, _, err = bus.Subscribe("doc-1")
	if err == nil {
		t.Fatal("expected an error when exceeding the subscriber cap")
	}
}

func TestPublishDeliversProgressEventsToSubscriber(t *testing.T) {
	bus := NewBus(4, time.Minute, time.Minute)
	ch, unsubscribe, err := bus.Subscribe("doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer unsubscribe()
	<-ch // connection_established

	bus.Publish("doc-1", Event{Type: EventProgress, Stage: StageParsing, Percent: 20, Message: "parsing"})

	ev := <-ch
	if ev.Type != EventProgress || ev.Percent != 20 {
		t.Fatalf("expected progress event with percent 20, got %+v", ev)
	}
}

func TestPublishDiscardsTrackerOnSummaryComplete(t *testing.T) {
	bus := NewBus(4, time.Minute, time.Minute)
	ch, _, err := bus.Subscribe("doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-ch // connection_established

	bus.Publish("doc-1", Event{Type: EventSummaryComplete, SummaryPayload: "done"})

	ev, ok := <-ch
	if !ok {
		t.Fatal("expected the summary_complete event before the channel closes")
	}
	if ev.Type != EventSummaryComplete {
		t.Fatalf("expected summary_complete event, got %+v", ev)
	}
	if _, ok := <-ch; ok {
		t.Fatal("expected the subscriber channel to close after tracker discard")
	}
	if count := bus.SubscriberCount("doc-1"); count != 0 {
		t.Fatalf("expected tracker to be discarded, got subscriber count %d", count)
	}
}

func TestPublishDiscardsTrackerOnError(t *testing.T) {
	bus := NewBus(4, time.Minute, time.Minute)
	ch, _, err := bus.Subscribe("doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-ch // connection_established

	bus.Publish("doc-1", Event{Type: EventError, Code: "PARSE_FAILED", Message: "could not parse"})

	<-ch // the error event itself
	if count := bus.SubscriberCount("doc-1"); count != 0 {
		t.Fatalf("expected tracker to be discarded after an error event, got subscriber count %d", count)
	}
}

func TestPublishToUnknownDocumentIsANoop(t *testing.T) {
	bus := NewBus(4, time.Minute, time.Minute)
	bus.Publish("no-such-document", Event{Type: EventProgress})
}

func TestUnsubscribeRemovesSubscriberAndClosesChannel(t *testing.T) {
	bus := NewBus(4, time.Minute, time.Minute)
	ch, unsubscribe, err := bus.Subscribe("doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-ch // connection_established

	unsubscribe()

	if count := bus.SubscriberCount("doc-1"); count != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe, got %d", count)
	}
	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

func TestHeartbeatIsDeliveredOnInterval(t *testing.T) {
	bus := NewBus(4, time.Minute, 20*time.Millisecond)
	ch, unsubscribe, err := bus.Subscribe("doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer unsubscribe()
	<-ch // connection_established

	select {
	case ev := <-ch:
		if ev.Type != eventHeartbeat {
			t.Fatalf("expected heartbeat event, got %v", ev.Type)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected a heartbeat within the interval")
	}
}

func TestIdleSweepClosesSubscriberPastTimeout(t *testing.T) {
	bus := NewBus(4, 30*time.Millisecond, time.Hour)
	ch, _, err := bus.Subscribe("doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-ch // connection_established

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("expected the idle subscriber's channel to close")
		}
	}
}
