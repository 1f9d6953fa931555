package notify

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/haven/internal/types"
)

func sampleEvent() *types.CrisisEvent {
	return &types.CrisisEvent{
		ID:        types.NewCrisisEventID(),
		SessionID: types.NewSessionID(),
		UserID:    types.NewUserID(),
		At:        time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		Level:     types.RiskSevere,
		ImmediateActions: []string{
			"contact emergency services immediately",
		},
		Contacts: []types.ProfessionalContact{
			{Name: "Emergency Services", Role: "emergency", Phone: "112"},
		},
		FollowUps: []types.FollowUp{
			{Label: "immediate", Due: time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)},
		},
	}
}

func TestEscalateFansOut(t *testing.T) {
	r := NewRegistry()

	var mu sync.Mutex
	var got []string
	r.Register("a", func(subject, body string) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "a:"+subject)
		return nil
	})
	r.Register("b", func(subject, body string) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "b:"+subject)
		return nil
	})

	r.Escalate(sampleEvent())

	if len(got) != 2 {
		t.Fatalf("delivered to %d channels, want 2", len(got))
	}
	for _, s := range got {
		if !strings.Contains(s, "crisis escalation") || !strings.Contains(s, "severe") {
			t.Errorf("subject = %q", s)
		}
	}
}

func TestEscalateDeliveryErrorDoesNotStopOthers(t *testing.T) {
	r := NewRegistry()
	delivered := 0
	r.Register("broken", func(subject, body string) error {
		return errors.New("socket closed")
	})
	r.Register("working", func(subject, body string) error {
		delivered++
		return nil
	})

	r.Escalate(sampleEvent())
	if delivered != 1 {
		t.Errorf("working channel delivered %d times, want 1", delivered)
	}
}

func TestEscalateBodyContents(t *testing.T) {
	r := NewRegistry()
	var body string
	r.Register("capture", func(s, b string) error {
		body = b
		return nil
	})

	r.Escalate(sampleEvent())

	for _, want := range []string{
		"Risk level: severe",
		"contact emergency services immediately",
		"Emergency Services (emergency): 112",
		"Follow-up immediate",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestRemind(t *testing.T) {
	r := NewRegistry()
	var subject, body string
	r.Register("capture", func(s, b string) error {
		subject, body = s, b
		return nil
	})

	event := sampleEvent()
	r.Remind(event, event.FollowUps[0])

	if !strings.Contains(subject, "follow-up due (immediate)") {
		t.Errorf("subject = %q", subject)
	}
	if !strings.Contains(body, "severe-risk escalation") {
		t.Errorf("body = %q", body)
	}
}

func TestEmptyRegistryIsSafe(t *testing.T) {
	r := NewRegistry()
	r.Escalate(sampleEvent()) // must not panic
}

func TestHungChannelDoesNotBlockDispatch(t *testing.T) {
	old := deliveryTimeout
	deliveryTimeout = 50 * time.Millisecond
	defer func() { deliveryTimeout = old }()

	r := NewRegistry()
	release := make(chan struct{})
	defer close(release)
	r.Register("hung", func(subject, body string) error {
		<-release
		return nil
	})
	delivered := 0
	r.Register("working", func(subject, body string) error {
		delivered++
		return nil
	})

	done := make(chan struct{})
	go func() {
		r.Escalate(sampleEvent())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Escalate blocked on a hung channel")
	}
	if delivered != 1 {
		t.Errorf("working channel delivered %d times, want 1", delivered)
	}
}
