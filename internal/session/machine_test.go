package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/user/haven/internal/emotion"
	"github.com/user/haven/internal/generator"
	"github.com/user/haven/internal/lexicon"
	"github.com/user/haven/internal/risk"
	"github.com/user/haven/internal/types"
)

var turnTime = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// memArchive is an in-memory ArchiveStore.
type memArchive struct {
	saved    map[types.UserID][]*types.Session
	failSave bool
}

func newMemArchive() *memArchive {
	return &memArchive{saved: make(map[types.UserID][]*types.Session)}
}

func (a *memArchive) SaveSession(ctx context.Context, session *types.Session) error {
	if a.failSave {
		return errors.New("disk full")
	}
	a.saved[session.UserID] = append(a.saved[session.UserID], session)
	return nil
}

func (a *memArchive) ListByUser(ctx context.Context, userID types.UserID) ([]*types.Session, error) {
	return a.saved[userID], nil
}

func (a *memArchive) DeleteByUser(ctx context.Context, userID types.UserID) (int, error) {
	n := len(a.saved[userID])
	delete(a.saved, userID)
	return n, nil
}

// memCrises is an in-memory CrisisStore.
type memCrises struct {
	events []*types.CrisisEvent
}

func (c *memCrises) Append(ctx context.Context, event *types.CrisisEvent) error {
	c.events = append(c.events, event)
	return nil
}

func (c *memCrises) ListByUser(ctx context.Context, userID types.UserID) ([]*types.CrisisEvent, error) {
	var out []*types.CrisisEvent
	for _, e := range c.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (c *memCrises) ListDue(ctx context.Context, now time.Time) ([]types.DueFollowUp, error) {
	return nil, nil
}

func (c *memCrises) MarkDispatched(ctx context.Context, id types.CrisisEventID, label string) error {
	return nil
}

type recordingNotifier struct {
	events []*types.CrisisEvent
}

func (n *recordingNotifier) Escalate(event *types.CrisisEvent) {
	n.events = append(n.events, event)
}

type stubGenerator struct {
	resp generator.Response
	err  error
}

func (g *stubGenerator) Generate(ctx context.Context, req generator.Request) (generator.Response, error) {
	return g.resp, g.err
}

type fixture struct {
	machine  *Machine
	archive  *memArchive
	crises   *memCrises
	notifier *recordingNotifier
}

func newFixture(t *testing.T, gen generator.Generator) *fixture {
	t.Helper()
	table := lexicon.Default()
	f := &fixture{
		archive:  newMemArchive(),
		crises:   &memCrises{},
		notifier: &recordingNotifier{},
	}
	f.machine = NewMachine(
		NewRegistry(),
		emotion.New(table, time.Second),
		risk.NewScanner(table),
		f.archive,
		f.crises,
		gen,
		nil,
		f.notifier,
	)
	f.machine.now = func() time.Time { return turnTime }
	return f
}

func textTurn(message string) types.TurnInput {
	return types.TurnInput{Message: message}
}

func TestStartOnePerUser(t *testing.T) {
	f := newFixture(t, nil)
	userID := types.NewUserID()

	id, err := f.machine.Start(context.Background(), userID, types.ModalityText, StartOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if id == "" {
		t.Fatal("Start returned empty session ID")
	}

	_, err = f.machine.Start(context.Background(), userID, types.ModalityText, StartOptions{})
	if !errors.Is(err, types.ErrUserSessionExists) {
		t.Fatalf("second Start err = %v, want ErrUserSessionExists", err)
	}
}

func TestProcessTurnLowRisk(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	id, err := f.machine.Start(ctx, types.NewUserID(), types.ModalityText, StartOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	result, err := f.machine.ProcessTurn(ctx, id, textTurn("I feel a little stressed about my exams"))
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	if result.Crisis != nil {
		t.Errorf("low-risk turn produced a crisis event: %+v", result.Crisis)
	}
	if result.Assessment.Level.AtLeast(types.RiskModerate) {
		t.Errorf("level = %s, want below moderate", result.Assessment.Level)
	}
	if result.Directive.Strategy != types.StrategyCognitiveRestructuring {
		t.Errorf("strategy = %s, want cognitive_restructuring", result.Directive.Strategy)
	}
	if result.Reply == "" {
		t.Error("no reply from fallback path")
	}
	if len(f.crises.events) != 0 {
		t.Errorf("crisis store has %d events, want 0", len(f.crises.events))
	}
}

func TestProcessTurnSevereEscalates(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	userID := types.NewUserID()

	id, err := f.machine.Start(ctx, userID, types.ModalityText, StartOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	result, err := f.machine.ProcessTurn(ctx, id, textTurn("I want to kill myself, I have a plan for tonight"))
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	if result.Assessment.Level != types.RiskSevere {
		t.Fatalf("level = %s, want severe", result.Assessment.Level)
	}
	if result.Crisis == nil {
		t.Fatal("no crisis event on severe turn")
	}
	if result.Crisis.ImmediateActions[0] != "contact emergency services immediately" {
		t.Errorf("immediate actions = %v", result.Crisis.ImmediateActions)
	}
	if len(f.crises.events) != 1 {
		t.Fatalf("crisis store has %d events, want 1", len(f.crises.events))
	}
	if len(f.notifier.events) != 1 {
		t.Fatalf("notifier got %d events, want 1", len(f.notifier.events))
	}

	var immediate *types.FollowUp
	for i := range result.Crisis.FollowUps {
		if result.Crisis.FollowUps[i].Label == "immediate" {
			immediate = &result.Crisis.FollowUps[i]
		}
	}
	if immediate == nil {
		t.Fatal("severe event has no immediate follow-up")
	}
	if !immediate.Due.Equal(turnTime.Add(2 * time.Hour)) {
		t.Errorf("immediate due = %v, want %v", immediate.Due, turnTime.Add(2*time.Hour))
	}
}

func TestProcessTurnRejectsOverlap(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	id, err := f.machine.Start(ctx, types.NewUserID(), types.ModalityText, StartOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	mg, err := f.machine.registry.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !mg.beginTurn() {
		t.Fatal("beginTurn refused on idle session")
	}

	_, err = f.machine.ProcessTurn(ctx, id, textTurn("hello"))
	if !errors.Is(err, types.ErrTurnInProgress) {
		t.Fatalf("err = %v, want ErrTurnInProgress", err)
	}

	mg.endTurn()
	if _, err := f.machine.ProcessTurn(ctx, id, textTurn("hello")); err != nil {
		t.Fatalf("ProcessTurn after release: %v", err)
	}
}

func TestProcessTurnUnknownSession(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.machine.ProcessTurn(context.Background(), types.NewSessionID(), textTurn("hi"))
	if !errors.Is(err, types.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestJourneyStaysBounded(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	id, err := f.machine.Start(ctx, types.NewUserID(), types.ModalityText, StartOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < types.JourneyCap+10; i++ {
		if _, err := f.machine.ProcessTurn(ctx, id, textTurn("feeling a bit worried today")); err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}

	mg, err := f.machine.registry.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(mg.session.Journey) > types.JourneyCap {
		t.Errorf("journey = %d entries, cap is %d", len(mg.session.Journey), types.JourneyCap)
	}
}

func TestMetricsStayInRange(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	id, err := f.machine.Start(ctx, types.NewUserID(), types.ModalityText, StartOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 30; i++ {
		if _, err := f.machine.ProcessTurn(ctx, id, textTurn("I am coping with exercise and feel happy")); err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}

	mg, _ := f.machine.registry.Get(id)
	metrics := mg.session.Metrics
	for name, v := range map[string]float64{
		"engagement": metrics.EngagementLevel,
		"regulation": metrics.EmotionalRegulation,
		"coping":     metrics.CopingSkillsUsage,
		"alliance":   metrics.TherapeuticAlliance,
		"awareness":  metrics.SelfAwareness,
	} {
		if v < 0 || v > 1 {
			t.Errorf("%s = %f, out of [0,1]", name, v)
		}
	}
	if metrics.EngagementLevel != 1.0 {
		t.Errorf("engagement after 30 turns = %f, want saturated at 1.0", metrics.EngagementLevel)
	}
}

func TestGeneratorErrorFallsBack(t *testing.T) {
	gen := &stubGenerator{err: errors.New("upstream down")}
	f := newFixture(t, gen)
	ctx := context.Background()

	id, err := f.machine.Start(ctx, types.NewUserID(), types.ModalityText, StartOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	result, err := f.machine.ProcessTurn(ctx, id, textTurn("I feel anxious about everything"))
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	want := generator.Fallback(result.Directive).Reply
	if result.Reply != want {
		t.Errorf("reply = %q, want fallback %q", result.Reply, want)
	}
}

func TestGeneratorReplyUsed(t *testing.T) {
	gen := &stubGenerator{resp: generator.Response{Reply: "let's take a slow breath together"}}
	f := newFixture(t, gen)
	ctx := context.Background()

	id, err := f.machine.Start(ctx, types.NewUserID(), types.ModalityText, StartOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	result, err := f.machine.ProcessTurn(ctx, id, textTurn("I feel anxious"))
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if result.Reply != "let's take a slow breath together" {
		t.Errorf("reply = %q", result.Reply)
	}

	mg, _ := f.machine.registry.Get(id)
	if len(mg.session.Transcript) != 2 {
		t.Fatalf("transcript = %d utterances, want 2", len(mg.session.Transcript))
	}
	if mg.session.Transcript[0].Role != "user" || mg.session.Transcript[1].Role != "assistant" {
		t.Errorf("transcript roles = %s, %s", mg.session.Transcript[0].Role, mg.session.Transcript[1].Role)
	}
}

func TestEnd(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	userID := types.NewUserID()

	id, err := f.machine.Start(ctx, userID, types.ModalityText, StartOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.machine.ProcessTurn(ctx, id, textTurn("I am hopeless and feel alone")); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	report, err := f.machine.End(ctx, id)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if report.Turns != 1 {
		t.Errorf("turns = %d, want 1", report.Turns)
	}
	if report.PeakRisk == types.RiskNone {
		t.Errorf("peak risk = none for a hopeless, isolated turn")
	}
	if len(f.archive.saved[userID]) != 1 {
		t.Fatalf("archive has %d sessions, want 1", len(f.archive.saved[userID]))
	}
	if f.archive.saved[userID][0].State != types.StateClosed {
		t.Errorf("archived state = %s, want closed", f.archive.saved[userID][0].State)
	}
	if _, err := f.machine.ProcessTurn(ctx, id, textTurn("hi")); !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("turn after End err = %v, want ErrSessionNotFound", err)
	}
}

func TestEndRetriesAfterArchiveFailure(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	id, err := f.machine.Start(ctx, types.NewUserID(), types.ModalityText, StartOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.archive.failSave = true
	if _, err := f.machine.End(ctx, id); err == nil {
		t.Fatal("End succeeded with failing archive")
	}

	// Session is Closing: no more turns, but End can be retried.
	if _, err := f.machine.ProcessTurn(ctx, id, textTurn("hi")); !errors.Is(err, types.ErrSessionNotActive) {
		t.Fatalf("turn in Closing err = %v, want ErrSessionNotActive", err)
	}
	f.archive.failSave = false
	if _, err := f.machine.End(ctx, id); err != nil {
		t.Fatalf("retried End: %v", err)
	}
}

func TestRiskHistory(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	id, err := f.machine.Start(ctx, types.NewUserID(), types.ModalityText, StartOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := f.machine.ProcessTurn(ctx, id, textTurn("feeling worried")); err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}

	history, err := f.machine.RiskHistory(id)
	if err != nil {
		t.Fatalf("RiskHistory: %v", err)
	}
	if len(history) != 3 {
		t.Errorf("history = %d assessments, want 3", len(history))
	}
}

// Exercised with -race: history reads and exports must be safe while
// turns are mutating the same session.
func TestReadsSafeDuringTurns(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	userID := types.NewUserID()

	id, err := f.machine.Start(ctx, userID, types.ModalityText, StartOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			if _, err := f.machine.RiskHistory(id); err != nil {
				t.Errorf("RiskHistory: %v", err)
				return
			}
			if _, err := f.machine.ExportUserData(ctx, userID); err != nil {
				t.Errorf("ExportUserData: %v", err)
				return
			}
		}
	}()

	for i := 0; i < 50; i++ {
		if _, err := f.machine.ProcessTurn(ctx, id, textTurn("feeling a bit worried today")); err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}
	close(done)
	wg.Wait()
}

func TestExportIsSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	userID := types.NewUserID()

	id, err := f.machine.Start(ctx, userID, types.ModalityText, StartOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.machine.ProcessTurn(ctx, id, textTurn("feeling worried")); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	export, err := f.machine.ExportUserData(ctx, userID)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if _, err := f.machine.ProcessTurn(ctx, id, textTurn("still worried")); err != nil {
		t.Fatalf("second ProcessTurn: %v", err)
	}

	if got := len(export.Sessions[0].Assessments); got != 1 {
		t.Errorf("exported assessments = %d after a later turn, want 1", got)
	}
}

func TestDeleteUserDataRejectsDuringTurn(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	userID := types.NewUserID()

	id, err := f.machine.Start(ctx, userID, types.ModalityText, StartOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	mg, err := f.machine.registry.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !mg.beginTurn() {
		t.Fatal("beginTurn refused on idle session")
	}

	if err := f.machine.DeleteUserData(ctx, userID); !errors.Is(err, types.ErrTurnInProgress) {
		t.Fatalf("err = %v, want ErrTurnInProgress", err)
	}

	mg.endTurn()
	if err := f.machine.DeleteUserData(ctx, userID); err != nil {
		t.Fatalf("DeleteUserData after release: %v", err)
	}
	if _, err := f.machine.registry.Get(id); !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("Get after delete err = %v, want ErrSessionNotFound", err)
	}
}

func TestFacialFailureDegradesToTextAssessment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	id, err := f.machine.Start(ctx, types.NewUserID(), types.ModalityText, StartOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Frames of the wrong width fail the facial extractor; the turn must
	// still assess the text.
	result, err := f.machine.ProcessTurn(ctx, id, types.TurnInput{
		Message: "I am hopeless and feel alone",
		Facial:  &types.FacialPayload{Frames: [][]float64{{0.1, 0.9}}},
	})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	if result.Assessment == nil || result.Assessment.Level == types.RiskNone {
		t.Errorf("assessment did not reflect the text: %+v", result.Assessment)
	}
	var facial *types.EmotionSignal
	for i := range result.Signals {
		if result.Signals[i].Modality == types.ModalityFacial {
			facial = &result.Signals[i]
		}
	}
	if facial == nil {
		t.Fatal("no facial signal in result")
	}
	if facial.Confidence != 0 || facial.PrimaryEmotion != types.EmotionNeutral {
		t.Errorf("failed extractor signal = %+v, want neutral with confidence 0", facial)
	}
}

func TestExportAndDeleteRetainCrises(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	userID := types.NewUserID()

	id, err := f.machine.Start(ctx, userID, types.ModalityText, StartOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.machine.ProcessTurn(ctx, id, textTurn("I want to end my life")); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if _, err := f.machine.End(ctx, id); err != nil {
		t.Fatalf("End: %v", err)
	}

	export, err := f.machine.ExportUserData(ctx, userID)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(export.Sessions) != 1 {
		t.Errorf("export sessions = %d, want 1", len(export.Sessions))
	}
	if len(export.Crises) != 1 {
		t.Errorf("export crises = %d, want 1", len(export.Crises))
	}

	if err := f.machine.DeleteUserData(ctx, userID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	after, err := f.machine.ExportUserData(ctx, userID)
	if err != nil {
		t.Fatalf("Export after delete: %v", err)
	}
	if len(after.Sessions) != 0 {
		t.Errorf("sessions after delete = %d, want 0", len(after.Sessions))
	}
	if len(after.Crises) != 1 {
		t.Errorf("crisis audit entries after delete = %d, want 1", len(after.Crises))
	}
}
