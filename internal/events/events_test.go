package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/mock/gomock"

	"carscout/internal/events"
	"carscout/internal/events/mocks"
)

func TestRecorderAndMulti(t *testing.T) {
	a := &events.Recorder{}
	b := &events.Recorder{}
	sink := events.Multi(a, nil, b)

	sink.Emit(events.Started, events.Payload{OperationID: "op"})
	sink.Emit(events.Completed, events.Payload{OperationID: "op"}.WithCount(3))

	for _, r := range []*events.Recorder{a, b} {
		names := r.Names()
		if len(names) != 2 || names[0] != events.Started || names[1] != events.Completed {
			t.Fatalf("unexpected names %v", names)
		}
		if r.Count(events.Completed) != 1 {
			t.Fatalf("expected one completed event")
		}
		last := r.Events()[1]
		if last.Payload.Count == nil || *last.Payload.Count != 3 {
			t.Fatalf("expected count 3, got %+v", last.Payload)
		}
	}
}

func TestChannelSinkDropsWhenFullButKeepsTerminal(t *testing.T) {
	sink := events.NewChannelSink(1)
	sink.TerminalWait = time.Second

	sink.Emit(events.Navigating, events.Payload{Page: 1})
	sink.Emit(events.Navigating, events.Payload{Page: 2}) // dropped, buffer full

	done := make(chan struct{})
	go func() {
		sink.Emit(events.Completed, events.Payload{}.WithCount(0))
		close(done)
	}()

	first := <-sink.Events()
	if first.Name != events.Navigating || first.Payload.Page != 1 {
		t.Fatalf("unexpected first event %+v", first)
	}
	second := <-sink.Events()
	if second.Name != events.Completed {
		t.Fatalf("expected terminal event to be delivered, got %+v", second)
	}
	<-done

	sink.Close()
	sink.Close()
	sink.Emit(events.Failed, events.Payload{}) // ignored after close
	if _, ok := <-sink.Events(); ok {
		t.Fatalf("expected closed channel")
	}
}

func TestTerminal(t *testing.T) {
	if !events.Terminal(events.Completed) || !events.Terminal(events.Failed) {
		t.Fatalf("expected completed and failed to be terminal")
	}
	if events.Terminal(events.Extracted) {
		t.Fatalf("extracted is not terminal")
	}
}

func TestKafkaSinkPublishesKeyedJSON(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	writer := mocks.NewMockMessageWriter(ctrl)
	sink := events.NewKafkaSinkWithWriter(writer, nil)

	writer.EXPECT().
		WriteMessages(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs ...kafka.Message) error {
			if len(msgs) != 1 {
				t.Fatalf("expected 1 message, got %d", len(msgs))
			}
			if string(msgs[0].Key) != "op-1" {
				t.Fatalf("unexpected key %q", msgs[0].Key)
			}
			var ev events.Event
			if err := json.Unmarshal(msgs[0].Value, &ev); err != nil {
				t.Fatalf("failed to decode message: %v", err)
			}
			if ev.Name != events.Extracted || ev.Payload.Page != 2 || ev.Payload.Count == nil || *ev.Payload.Count != 12 {
				t.Fatalf("unexpected event %+v", ev)
			}
			return nil
		})

	sink.Emit(events.Extracted, events.Payload{OperationID: "op-1", Page: 2}.WithCount(12))
}

func TestKafkaSinkSwallowsWriteErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	writer := mocks.NewMockMessageWriter(ctrl)
	writer.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))
	writer.EXPECT().Close().Return(nil)

	sink := events.NewKafkaSinkWithWriter(writer, nil)
	sink.Emit(events.Failed, events.Payload{OperationID: "op-2", Reason: "blocked"})
	if err := sink.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}
