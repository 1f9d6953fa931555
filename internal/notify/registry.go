// internal/notify/registry.go
package notify

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/user/haven/internal/types"
)

// deliveryTimeout bounds each channel per dispatch. A deliverer that
// misses it is abandoned so a hung channel never stalls the turn that
// escalated.
var deliveryTimeout = 5 * time.Second

// Deliverer sends one formatted notice over a single channel.
type Deliverer func(subject, body string) error

// Registry fans crisis notices out to the registered delivery channels.
// The core hands events over and moves on: delivery errors are logged and
// never fail a turn.
type Registry struct {
	mu         sync.RWMutex
	deliverers map[string]Deliverer
}

// NewRegistry creates an empty notification registry.
func NewRegistry() *Registry {
	return &Registry{
		deliverers: make(map[string]Deliverer),
	}
}

// Register adds a named delivery channel.
func (r *Registry) Register(name string, d Deliverer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliverers[name] = d
}

// Escalate formats and dispatches a crisis event to every channel.
func (r *Registry) Escalate(event *types.CrisisEvent) {
	subject := fmt.Sprintf("crisis escalation: %s risk, session %s", event.Level, event.SessionID)
	r.dispatch(subject, formatEvent(event))
}

// Remind dispatches a due follow-up notice for a crisis event.
func (r *Registry) Remind(event *types.CrisisEvent, fu types.FollowUp) {
	subject := fmt.Sprintf("follow-up due (%s): user %s", fu.Label, event.UserID)
	body := fmt.Sprintf("Follow-up %q scheduled for %s after a %s-risk escalation on session %s.",
		fu.Label, fu.Due.Format("2006-01-02 15:04"), event.Level, event.SessionID)
	r.dispatch(subject, body)
}

func (r *Registry) dispatch(subject, body string) {
	r.mu.RLock()
	deliverers := make(map[string]Deliverer, len(r.deliverers))
	for name, d := range r.deliverers {
		deliverers[name] = d
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for name, deliver := range deliverers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errc := make(chan error, 1)
			go func() { errc <- deliver(subject, body) }()
			select {
			case err := <-errc:
				if err != nil {
					slog.Error("notification delivery failed", "channel", name, "error", err)
				}
			case <-time.After(deliveryTimeout):
				slog.Error("notification delivery timed out", "channel", name)
			}
		}()
	}
	wg.Wait()
}

func formatEvent(event *types.CrisisEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Risk level: %s\n", event.Level)
	if len(event.ImmediateActions) > 0 {
		b.WriteString("Immediate actions:\n")
		for _, a := range event.ImmediateActions {
			fmt.Fprintf(&b, "  - %s\n", a)
		}
	}
	if len(event.Contacts) > 0 {
		b.WriteString("Contacts:\n")
		for _, c := range event.Contacts {
			fmt.Fprintf(&b, "  - %s (%s): %s\n", c.Name, c.Role, c.Phone)
		}
	}
	for _, fu := range event.FollowUps {
		fmt.Fprintf(&b, "Follow-up %s: %s\n", fu.Label, fu.Due.Format("2006-01-02 15:04"))
	}
	return b.String()
}

// Console returns a Deliverer that writes notices to the structured log.
// It is registered by default so escalations are never invisible.
func Console() Deliverer {
	return func(subject, body string) error {
		slog.Warn("crisis notice", "subject", subject, "body", body)
		return nil
	}
}
