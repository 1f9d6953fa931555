// internal/session/machine.go
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/haven/internal/crisis"
	"github.com/user/haven/internal/emotion"
	"github.com/user/haven/internal/generator"
	"github.com/user/haven/internal/plan"
	"github.com/user/haven/internal/risk"
	"github.com/user/haven/internal/types"
)

// Notifier receives crisis events for outreach. Delivery failures are the
// collaborator's problem; the turn never fails on them.
type Notifier interface {
	Escalate(event *types.CrisisEvent)
}

// StartOptions configure a new session.
type StartOptions struct {
	Culture types.CulturalContext
	Goals   []string
}

var defaultGoals = []string{
	"build emotional awareness",
	"practice one coping skill per session",
}

// Machine owns session lifecycle and the per-turn pipeline: extract
// signals, scan and aggregate risk, plan the intervention, nudge progress
// metrics, and escalate when risk crosses the moderate threshold.
type Machine struct {
	registry   *Registry
	extractors *emotion.Extractors
	scanner    *risk.Scanner
	planner    *plan.Planner
	controller *crisis.Controller
	gen        generator.Generator
	window     *generator.Window
	archive    types.ArchiveStore
	crises     types.CrisisStore
	notifier   Notifier

	now func() time.Time
}

// NewMachine wires a Machine from its collaborators. registry, archive,
// and crises are required; gen, window, and notifier may be nil (no reply
// generation, unbounded history window, no outreach).
func NewMachine(
	registry *Registry,
	extractors *emotion.Extractors,
	scanner *risk.Scanner,
	archive types.ArchiveStore,
	crises types.CrisisStore,
	gen generator.Generator,
	window *generator.Window,
	notifier Notifier,
) *Machine {
	return &Machine{
		registry:   registry,
		extractors: extractors,
		scanner:    scanner,
		planner:    plan.New(),
		controller: crisis.New(),
		gen:        gen,
		window:     window,
		archive:    archive,
		crises:     crises,
		notifier:   notifier,
		now:        time.Now,
	}
}

// Start creates a session for the user: Initializing -> Active. At most
// one active session per user; a second Start returns
// ErrUserSessionExists.
func (m *Machine) Start(ctx context.Context, userID types.UserID, modality types.Modality, opts StartOptions) (types.SessionID, error) {
	goals := opts.Goals
	if len(goals) == 0 {
		goals = append([]string(nil), defaultGoals...)
	}

	session := &types.Session{
		ID:        types.NewSessionID(),
		UserID:    userID,
		StartTime: m.now(),
		State:     types.StateInitializing,
		Modality:  modality,
		Culture:   opts.Culture,
		Goals:     goals,
	}
	session.State = types.StateActive

	if err := m.registry.Insert(session); err != nil {
		return "", err
	}
	slog.Info("session started", "session_id", string(session.ID), "user_id", string(userID))
	return session.ID, nil
}

// ProcessTurn runs the full pipeline for one user turn. It is legal only
// on an Active session and rejects overlapping calls for the same session
// with ErrTurnInProgress. Risk computation, state mutation, and crisis
// escalation run to completion before the generator is consulted, so a
// generator failure never loses a crisis directive.
func (m *Machine) ProcessTurn(ctx context.Context, id types.SessionID, input types.TurnInput) (*types.TurnResult, error) {
	mg, err := m.registry.Get(id)
	if err != nil {
		return nil, err
	}
	if !mg.beginTurn() {
		return nil, types.ErrTurnInProgress
	}
	defer mg.endTurn()

	session := mg.session
	if session.State != types.StateActive {
		return nil, fmt.Errorf("%w: %s", types.ErrSessionNotActive, session.State)
	}
	now := m.now()

	// 1. Modality extraction and scanning read only the input; no session
	// state is touched yet.
	signals := m.extractors.Run(ctx, input, now)
	dominant := plan.Dominant(signals)
	scan := m.scanner.Scan(input.Message)

	// 2. Commit the turn's risk state under the session lock so snapshot
	// readers never see a half-applied turn.
	mg.mu.Lock()
	for _, sig := range signals {
		session.AppendSignal(sig)
	}
	assessment := risk.Aggregate(scan, dominant, session.Assessments, now)
	assessment.ID = types.NewAssessmentID()
	assessment.SessionID = session.ID
	session.Assessments = append(session.Assessments, assessment)

	directive := m.planner.Plan(assessment, dominant, session.Culture)
	session.Adaptations = append(session.Adaptations, types.AdaptationRecord{
		Strategy: directive.Strategy,
		Level:    assessment.Level,
		At:       now,
	})

	m.nudgeMetrics(session, directive, dominant, scan)

	var event *types.CrisisEvent
	if m.controller.ShouldEscalate(assessment.Level) {
		event = m.controller.Escalate(session, assessment, now)
	}

	session.Transcript = append(session.Transcript, types.Utterance{Role: "user", Content: input.Message, At: now})
	history := append([]types.Utterance(nil), session.Transcript...)
	mg.mu.Unlock()

	// 3. Record and announce the crisis before anything can fail the turn
	// for other reasons.
	if event != nil {
		if err := m.crises.Append(ctx, event); err != nil {
			// Over-escalation bias: a crisis that cannot be recorded
			// fails the turn loudly instead of proceeding silently.
			return nil, fmt.Errorf("record crisis event: %w", err)
		}
		slog.Warn("crisis escalation",
			"session_id", string(session.ID),
			"level", string(assessment.Level),
			"actions", len(event.ImmediateActions))
		if m.notifier != nil {
			m.notifier.Escalate(event)
		}
	}

	// 4. Generate the reply last; risk state above is already committed.
	reply := m.generateReply(ctx, session, input.Message, directive, history)

	mg.mu.Lock()
	session.Transcript = append(session.Transcript, types.Utterance{Role: "assistant", Content: reply, At: m.now()})
	mg.mu.Unlock()

	return &types.TurnResult{
		Assessment: assessment,
		Directive:  directive,
		Signals:    signals,
		Reply:      reply,
		Crisis:     event,
	}, nil
}

// generateReply consults the external generator, substituting the
// templated fallback keyed by strategy when it is unavailable.
func (m *Machine) generateReply(ctx context.Context, session *types.Session, message string, directive types.Directive, history []types.Utterance) string {
	if m.gen == nil {
		return generator.Fallback(directive).Reply
	}

	if m.window != nil {
		history = m.window.Build(history)
	}

	resp, err := m.gen.Generate(ctx, generator.Request{
		Message:   message,
		Directive: directive,
		Culture:   session.Culture,
		History:   history,
	})
	if err != nil {
		slog.Warn("response generator unavailable, using fallback",
			"session_id", string(session.ID), "error", err)
		return generator.Fallback(directive).Reply
	}
	return resp.Reply
}

// nudgeMetrics applies the small bounded per-turn adjustments. Every
// field stays in [0,1].
func (m *Machine) nudgeMetrics(session *types.Session, directive types.Directive, dominant types.EmotionSignal, scan risk.ScanResult) {
	metrics := &session.Metrics

	metrics.EngagementLevel = clamp01(metrics.EngagementLevel + 0.1)
	metrics.TherapeuticAlliance = clamp01(metrics.TherapeuticAlliance + 0.02)

	if directive.Strategy == types.StrategyValidation && dominant.Valence > -0.3 {
		metrics.EmotionalRegulation = clamp01(metrics.EmotionalRegulation + 0.05)
	}
	if dominant.Confidence > 0 && dominant.PrimaryEmotion != types.EmotionNeutral {
		metrics.SelfAwareness = clamp01(metrics.SelfAwareness + 0.03)
	}
	for _, pf := range scan.Protective {
		if pf.Category == types.ProtectiveCopingSkills {
			metrics.CopingSkillsUsage = clamp01(metrics.CopingSkillsUsage + 0.05)
		}
	}
}

// End closes a session: Active -> Closing -> Closed. The final report is
// computed, the archive handed to the store, and the session evicted from
// the registry.
func (m *Machine) End(ctx context.Context, id types.SessionID) (*types.CloseReport, error) {
	mg, err := m.registry.Get(id)
	if err != nil {
		return nil, err
	}
	if !mg.beginTurn() {
		return nil, types.ErrTurnInProgress
	}
	defer mg.endTurn()

	session := mg.session
	// Closing is accepted so a failed archive write can be retried.
	if session.State != types.StateActive && session.State != types.StateClosing {
		return nil, fmt.Errorf("%w: %s", types.ErrSessionNotActive, session.State)
	}

	mg.mu.Lock()
	session.State = types.StateClosing
	end := m.now()
	session.EndTime = &end
	report := buildCloseReport(session)
	// Archive a copy in its terminal state; the live session only becomes
	// Closed once the write has succeeded.
	archived := session.Clone()
	archived.State = types.StateClosed
	mg.mu.Unlock()

	if err := m.archive.SaveSession(ctx, archived); err != nil {
		// Session stays in Closing; further turns are rejected but the
		// caller can retry End.
		return nil, fmt.Errorf("archive session: %w", err)
	}

	mg.mu.Lock()
	session.State = types.StateClosed
	mg.mu.Unlock()
	m.registry.Remove(id)
	slog.Info("session closed", "session_id", string(id), "turns", report.Turns, "peak_risk", string(report.PeakRisk))
	return report, nil
}

// RiskHistory returns the ordered assessment history of an active session.
func (m *Machine) RiskHistory(id types.SessionID) ([]*types.RiskAssessment, error) {
	mg, err := m.registry.Get(id)
	if err != nil {
		return nil, err
	}
	mg.mu.RLock()
	defer mg.mu.RUnlock()
	out := make([]*types.RiskAssessment, len(mg.session.Assessments))
	copy(out, mg.session.Assessments)
	return out, nil
}

// ExportUserData bundles the user's active and archived sessions plus
// their crisis audit entries.
func (m *Machine) ExportUserData(ctx context.Context, userID types.UserID) (*types.UserExport, error) {
	archived, err := m.archive.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list archived sessions: %w", err)
	}
	crises, err := m.crises.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list crisis events: %w", err)
	}

	sessions := m.registry.ByUser(userID)
	sessions = append(sessions, archived...)

	return &types.UserExport{
		UserID:      userID,
		GeneratedAt: m.now(),
		Sessions:    sessions,
		Crises:      crises,
	}, nil
}

// DeleteUserData removes the user's active and archived session state.
// Crisis events are audit entries under a separate retention policy and
// are not touched.
func (m *Machine) DeleteUserData(ctx context.Context, userID types.UserID) error {
	for _, mg := range m.registry.managedByUser(userID) {
		// Claim the turn marker so an in-flight turn is never evicted
		// mid-mutation.
		if !mg.beginTurn() {
			return types.ErrTurnInProgress
		}
		m.registry.Remove(mg.session.ID)
		mg.endTurn()
	}
	n, err := m.archive.DeleteByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("delete archived sessions: %w", err)
	}
	slog.Info("user data deleted", "user_id", string(userID), "archived_sessions", n)
	return nil
}

func buildCloseReport(session *types.Session) *types.CloseReport {
	peak := types.RiskNone
	for _, a := range session.Assessments {
		if a.Level.Rank() > peak.Rank() {
			peak = a.Level
		}
	}

	recommendations := []string{"continue regular check-ins"}
	switch {
	case peak.AtLeast(types.RiskHigh):
		recommendations = append(recommendations,
			"schedule a professional consultation",
			"keep crisis contacts accessible")
	case peak == types.RiskModerate:
		recommendations = append(recommendations, "practice the safety plan steps discussed")
	}
	if session.Metrics.CopingSkillsUsage < 0.3 {
		recommendations = append(recommendations, "try one new coping exercise this week")
	}

	summary := fmt.Sprintf("%d turns, peak risk %s, dominant strategy %s",
		len(session.Assessments), string(peak), string(dominantStrategy(session)))
	if last := session.LatestAssessment(); last != nil {
		summary += fmt.Sprintf(", closing level %s", string(last.Level))
	}

	return &types.CloseReport{
		SessionID:       session.ID,
		Summary:         summary,
		Progress:        session.Metrics,
		Recommendations: recommendations,
		Turns:           len(session.Assessments),
		PeakRisk:        peak,
	}
}

func dominantStrategy(session *types.Session) types.Strategy {
	counts := make(map[types.Strategy]int)
	for _, rec := range session.Adaptations {
		counts[rec.Strategy]++
	}
	best := types.StrategyValidation
	bestN := 0
	for _, rec := range session.Adaptations {
		if counts[rec.Strategy] > bestN {
			best = rec.Strategy
			bestN = counts[rec.Strategy]
		}
	}
	return best
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
