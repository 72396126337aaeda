package notecardtest

import (
	"context"
	"testing"

	"indoor-tracker/internal/notecard"
)

func TestRespondQueue(t *testing.T) {
	ctx := context.Background()
	card := New()
	card.Respond("card.motion", notecard.Response{"count": float64(1)}, notecard.Response{"count": float64(2)})

	tests := []struct {
		name string
		want int64
	}{
		{"first queued", 1},
		{"second queued", 2},
		{"last repeats", 2},
	}

	for _, tt := range tests {
		rsp, err := card.Transaction(ctx, notecard.NewRequest("card.motion"))
		if err != nil {
			t.Fatalf("%s: Transaction() error = %v", tt.name, err)
		}
		if got, _ := rsp.Int("count"); got != tt.want {
			t.Errorf("%s: count = %d, want %d", tt.name, got, tt.want)
		}
	}

	// Once the queue has drained, responding again replaces the repeated response
	card.Respond("card.motion", notecard.Response{"count": float64(7)})
	rsp, _ := card.Transaction(ctx, notecard.NewRequest("card.motion"))
	if got, _ := rsp.Int("count"); got != 7 {
		t.Errorf("count after re-respond = %d, want 7", got)
	}

	if card.Count("card.motion") != 4 {
		t.Errorf("Count() = %d, want 4", card.Count("card.motion"))
	}
}

func TestRespondBeforeUseAppends(t *testing.T) {
	ctx := context.Background()
	card := New()
	card.Respond("hub.status", notecard.Response{"connected": false})
	card.Respond("hub.status", notecard.Response{"connected": true})

	first, _ := card.Transaction(ctx, notecard.NewRequest("hub.status"))
	second, _ := card.Transaction(ctx, notecard.NewRequest("hub.status"))
	if first.Bool("connected") || !second.Bool("connected") {
		t.Errorf("responses = %v, %v, want disconnected then connected", first, second)
	}
}
