package player_test

import (
	"testing"

	"github.com/edumarques81/neon-player-backend/internal/domain/player"
)

func TestBusFanOut(t *testing.T) {
	bus := player.NewBus()
	a, unsubA := bus.Subscribe(4)
	b, unsubB := bus.Subscribe(4)
	defer unsubB()

	bus.Publish(player.Event{Kind: player.EventState})

	for name, ch := range map[string]<-chan player.Event{"a": a, "b": b} {
		select {
		case ev := <-ch:
			if ev.Kind != player.EventState {
				t.Errorf("%s got %s", name, ev.Kind)
			}
		default:
			t.Errorf("%s received nothing", name)
		}
	}

	unsubA()
	unsubA()
	if _, ok := <-a; ok {
		t.Error("unsubscribed channel should be closed")
	}
}

func TestBusNeverBlocks(t *testing.T) {
	bus := player.NewBus()
	ch, unsubscribe := bus.Subscribe(1)
	defer unsubscribe()

	bus.Publish(player.Event{Kind: player.EventPosition})
	bus.Publish(player.Event{Kind: player.EventState})

	if ev := <-ch; ev.Kind != player.EventPosition {
		t.Errorf("first event = %s, want position", ev.Kind)
	}
	select {
	case ev := <-ch:
		t.Errorf("overflow event should be dropped, got %s", ev.Kind)
	default:
	}
}

func TestBusClose(t *testing.T) {
	bus := player.NewBus()
	ch, unsubscribe := bus.Subscribe(1)

	bus.Close()
	bus.Close()
	unsubscribe()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}

	late, _ := bus.Subscribe(1)
	if _, ok := <-late; ok {
		t.Error("subscribing to a closed bus should return a closed channel")
	}
	bus.Publish(player.Event{Kind: player.EventState})
}
