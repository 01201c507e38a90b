package api

import (
	"testing"
)

func TestHubNotifyReachesTeamSubscribers(t *testing.T) {
	h := newStreamHub()

	a, cancelA := h.Subscribe("tm-1")
	defer cancelA()
	b, cancelB := h.Subscribe("tm-1")
	defer cancelB()
	other, cancelOther := h.Subscribe("tm-2")
	defer cancelOther()

	h.Notify("tm-1", 42)

	if got := <-a; got != 42 {
		t.Errorf("subscriber a got %d", got)
	}
	if got := <-b; got != 42 {
		t.Errorf("subscriber b got %d", got)
	}
	select {
	case seq := <-other:
		t.Errorf("tm-2 subscriber received %d", seq)
	default:
	}
}

func TestHubCancelRemovesSubscriber(t *testing.T) {
	h := newStreamHub()

	ch, cancel := h.Subscribe("tm-1")
	if h.SubscriberCount() != 1 {
		t.Fatalf("count = %d", h.SubscriberCount())
	}
	cancel()
	if h.SubscriberCount() != 0 {
		t.Fatalf("count after cancel = %d", h.SubscriberCount())
	}

	h.Notify("tm-1", 7)
	select {
	case seq := <-ch:
		t.Errorf("cancelled subscriber received %d", seq)
	default:
	}
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	h := newStreamHub()

	_, cancel := h.Subscribe("tm-1")
	defer cancel()

	// Overflow the buffer; Notify must never block.
	for i := int64(0); i < 100; i++ {
		h.Notify("tm-1", i)
	}
}
