// Package orchestrator runs one tutoring turn: classify, route, analyze,
// invoke the routed agents, compose the reply, and hand the outcome to the
// interaction logger.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/mentor/internal/agent"
	"github.com/kalambet/mentor/internal/cognitive"
	"github.com/kalambet/mentor/internal/session"
	"github.com/kalambet/mentor/internal/socratic"
)

const defaultAgentTimeout = 20 * time.Second

// Classifier reads the latest utterance.
type Classifier interface {
	Classify(ctx context.Context, st session.State, utterance string) agent.Classification
}

// Analyzer produces the per-turn analysis every other agent reads.
type Analyzer interface {
	Analyze(ctx context.Context, st session.State, utterance string, c agent.Classification) agent.Analysis
}

// Responder is a routed agent.
type Responder interface {
	Respond(ctx context.Context, t agent.Turn) (agent.Response, error)
}

// SessionStore is the subset of the state store a turn mutates.
type SessionStore interface {
	Get(id string) (session.State, error)
	AppendMessage(id string, role session.Role, content string) (session.Message, error)
	SetBrief(id string, u session.BriefUpdate) error
}

// Recorder receives every completed turn.
type Recorder interface {
	Record(ctx context.Context, st session.State, res Result) error
}

// Agents are the collaborators a turn can invoke.
type Agents struct {
	Classifier Classifier
	Analysis   Analyzer
	Expert     Responder
	Socratic   Responder
	Cognitive  Responder
}

// Orchestrator owns the session state for the duration of a turn. Turns on
// the same session are serialized; different sessions run in parallel.
type Orchestrator struct {
	store    SessionStore
	agents   Agents
	recorder Recorder
	timeout  time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an Orchestrator. recorder may be nil.
func New(store SessionStore, agents Agents, recorder Recorder, agentTimeout time.Duration) *Orchestrator {
	if agentTimeout <= 0 {
		agentTimeout = defaultAgentTimeout
	}
	return &Orchestrator{
		store:    store,
		agents:   agents,
		recorder: recorder,
		timeout:  agentTimeout,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Metadata describes how a reply was produced.
type Metadata struct {
	AgentsUsed        []agent.Name             `json:"agents_used"`
	Sources           []agent.Source           `json:"sources"`
	ResponseType      string                   `json:"response_type"`
	Strategy          agent.Strategy           `json:"strategy,omitempty"`
	ScientificMetrics agent.EnhancementMetrics `json:"scientific_metrics"`
	CognitiveState    agent.CognitiveState     `json:"cognitive_state"`
	PhaseAnalysis     agent.PhaseAnalysis      `json:"phase_analysis"`
	CognitiveFlags    []agent.Flag             `json:"cognitive_flags"`
	Analysis          agent.Analysis           `json:"analysis"`
	Degraded          bool                     `json:"degraded"`
	DegradedAgents    []agent.Name             `json:"degraded_agents,omitempty"`
	Rerouted          bool                     `json:"rerouted,omitempty"`
	RoutedFrom        agent.RoutingPath        `json:"routed_from,omitempty"`
	ProcessingMs      int64                    `json:"processing_ms"`
}

// Result is the outcome of one turn.
type Result struct {
	SessionID        string               `json:"session_id"`
	Input            string               `json:"input"`
	Response         string               `json:"response"`
	RoutingPath      agent.RoutingPath    `json:"routing_path"`
	Classification   agent.Classification `json:"classification"`
	Metadata         Metadata             `json:"metadata"`
	UserMessage      session.Message      `json:"user_message"`
	AssistantMessage session.Message      `json:"assistant_message"`
}

// Turn processes one user utterance. It only fails when the session cannot
// be read or written; agent failures degrade to a fallback question.
func (o *Orchestrator) Turn(ctx context.Context, sessionID, utterance string, milestone *agent.MilestoneContext) (Result, error) {
	start := time.Now()
	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	userMsg, err := o.store.AppendMessage(sessionID, session.RoleUser, utterance)
	if err != nil {
		return Result{}, fmt.Errorf("appending user message: %w", err)
	}
	st, err := o.store.Get(sessionID)
	if err != nil {
		return Result{}, fmt.Errorf("loading session: %w", err)
	}

	c := o.classify(ctx, st, utterance)
	path := agent.Route(c)

	t := agent.Turn{
		State:          st,
		Utterance:      utterance,
		Classification: c,
		Milestone:      milestone,
		Path:           path,
	}
	t.Analysis = o.analyze(ctx, st, utterance, c)
	if t.Analysis.Skill.Updated {
		o.updateSkill(sessionID, st.Profile, t.Analysis.Skill.Level)
	}

	run := o.runPath(ctx, &t)
	meta := run.metadata(t)
	text := compose(run.ordered(agent.PrimaryAgent(t.Path)))

	strategy := meta.Strategy
	meta.ScientificMetrics = cognitive.Measure(cognitive.MeasureInput{Turn: t, Text: text, Strategy: strategy, Sources: meta.Sources})
	if r, ok := run.responses[agent.CognitiveAgent]; ok && r.CognitiveState != nil {
		meta.CognitiveState = *r.CognitiveState
	} else {
		meta.CognitiveState = cognitive.EstimateState(t)
	}
	meta.PhaseAnalysis = agent.SynthesizePhase(conversationText(st), st.UserTurns(), time.Since(st.CreatedAt))

	assistantMsg, err := o.store.AppendMessage(sessionID, session.RoleAssistant, text)
	if err != nil {
		return Result{}, fmt.Errorf("appending assistant message: %w", err)
	}
	meta.ProcessingMs = time.Since(start).Milliseconds()

	res := Result{
		SessionID:        sessionID,
		Input:            utterance,
		Response:         text,
		RoutingPath:      t.Path,
		Classification:   c,
		Metadata:         meta,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
	}

	slog.Debug("turn complete",
		"session", sessionID,
		"path", t.Path,
		"agents", meta.AgentsUsed,
		"degraded", meta.Degraded,
		"ms", meta.ProcessingMs,
	)

	if o.recorder != nil {
		final, err := o.store.Get(sessionID)
		if err != nil {
			final = st
		}
		if err := o.recorder.Record(ctx, final, res); err != nil {
			slog.Error("recording interaction failed", "session", sessionID, "error", err)
		}
	}
	return res, nil
}

func (o *Orchestrator) sessionLock(id string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[id]
	if !ok {
		l = &sync.Mutex{}
		o.locks[id] = l
	}
	return l
}

func (o *Orchestrator) classify(ctx context.Context, st session.State, utterance string) agent.Classification {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	return o.agents.Classifier.Classify(ctx, st, utterance)
}

func (o *Orchestrator) analyze(ctx context.Context, st session.State, utterance string, c agent.Classification) agent.Analysis {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	return o.agents.Analysis.Analyze(ctx, st, utterance, c)
}

func (o *Orchestrator) updateSkill(id string, p session.Profile, level session.SkillLevel) {
	p.SkillLevel = level
	p.DetectedLevel = level
	if err := o.store.SetBrief(id, session.BriefUpdate{Profile: &p}); err != nil {
		slog.Warn("updating skill level failed", "session", id, "error", err)
		return
	}
	slog.Info("skill level updated", "session", id, "level", level)
}

func (o *Orchestrator) responder(name agent.Name) Responder {
	switch name {
	case agent.DomainExpert:
		return o.agents.Expert
	case agent.SocraticTutor:
		return o.agents.Socratic
	case agent.CognitiveAgent:
		return o.agents.Cognitive
	}
	return nil
}

// pathRun collects the responses of one routed path.
type pathRun struct {
	mu        sync.Mutex
	order     []agent.Name
	responses map[agent.Name]agent.Response
	degraded  []agent.Name
	rerouted  bool
	from      agent.RoutingPath
}

func (r *pathRun) add(resp agent.Response, degraded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, resp.Agent)
	r.responses[resp.Agent] = resp
	if degraded || resp.Degraded {
		r.degraded = append(r.degraded, resp.Agent)
	}
}

// runPath invokes the agents of t.Path stage by stage. Agents within a stage
// run concurrently. A surrendering domain expert reroutes to Socratic focus.
func (o *Orchestrator) runPath(ctx context.Context, t *agent.Turn) *pathRun {
	run := &pathRun{responses: make(map[agent.Name]agent.Response)}
	stages := agent.PathAgents(t.Path)

	for i := 0; i < len(stages); i++ {
		stage := stages[i]
		surrendered := false
		var smu sync.Mutex

		g, gctx := errgroup.WithContext(ctx)
		for _, name := range stage {
			turn := *t
			g.Go(func() error {
				resp, err := o.call(gctx, name, turn)
				switch {
				case err == nil:
					run.add(resp, false)
				case name == agent.DomainExpert && errors.Is(err, agent.ErrInsufficientKnowledge):
					smu.Lock()
					surrendered = true
					smu.Unlock()
				default:
					slog.Warn("agent failed, substituting fallback", "agent", name, "error", err)
					run.add(fallbackResponse(name, turn), true)
				}
				return nil
			})
		}
		_ = g.Wait()

		if surrendered {
			run.rerouted = true
			run.from = t.Path
			slog.Info("domain expert lacks knowledge, rerouting", "from", t.Path)
			if t.Path != agent.PathMultiAgent {
				t.Path = agent.PathSocraticFocus
			}
			if !pathHas(stages[i+1:], agent.SocraticTutor) {
				stages = append(stages[:len(stages):len(stages)], []agent.Name{agent.SocraticTutor})
			}
		}
		if r, ok := run.responses[agent.DomainExpert]; ok && len(t.Examples) == 0 {
			t.Examples = r.Sources
			t.ExpertText = r.Text
		}
	}

	if len(run.responses) == 0 {
		run.add(fallbackResponse(agent.SocraticTutor, *t), true)
	}
	return run
}

// call runs one agent under the per-agent wall-clock budget, even when the
// agent ignores its context.
func (o *Orchestrator) call(ctx context.Context, name agent.Name, t agent.Turn) (agent.Response, error) {
	r := o.responder(name)
	if r == nil {
		if name == agent.DomainExpert {
			return agent.Response{}, agent.ErrInsufficientKnowledge
		}
		return agent.Response{}, fmt.Errorf("agent %s not configured", name)
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	type result struct {
		resp agent.Response
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := r.Respond(ctx, t)
		ch <- result{resp, err}
	}()

	select {
	case res := <-ch:
		if res.err == nil && res.resp.Agent == "" {
			res.resp.Agent = name
		}
		return res.resp, res.err
	case <-ctx.Done():
		return agent.Response{}, fmt.Errorf("agent %s: %w", name, ctx.Err())
	}
}

// fallbackResponse is the deterministic Socratic default used when an agent
// fails or times out.
func fallbackResponse(name agent.Name, t agent.Turn) agent.Response {
	topic := agent.Topic(t.Utterance, "your design")
	return agent.Response{
		Agent:        name,
		Text:         socratic.Question(agent.AdaptiveQuestion, topic, t.Analysis),
		ResponseType: "fallback_question",
		Strategy:     agent.AdaptiveQuestion,
		Flags:        []agent.Flag{agent.FlagEngagementMaintained},
		Degraded:     true,
	}
}

func pathHas(stages [][]agent.Name, name agent.Name) bool {
	for _, s := range stages {
		for _, n := range s {
			if n == name {
				return true
			}
		}
	}
	return false
}

// ordered returns responses with the primary agent first, then in arrival order.
func (r *pathRun) ordered(primary agent.Name) []agent.Response {
	out := make([]agent.Response, 0, len(r.responses))
	if resp, ok := r.responses[primary]; ok {
		out = append(out, resp)
	}
	for _, name := range r.order {
		if name != primary {
			out = append(out, r.responses[name])
		}
	}
	return out
}

func (r *pathRun) metadata(t agent.Turn) Metadata {
	ordered := r.ordered(agent.PrimaryAgent(t.Path))
	meta := Metadata{
		Analysis:       t.Analysis,
		Degraded:       len(r.degraded) > 0 || t.Analysis.Degraded,
		DegradedAgents: r.degraded,
		Rerouted:       r.rerouted,
		RoutedFrom:     r.from,
		AgentsUsed:     []agent.Name{agent.ContextAgent, agent.AnalysisAgent},
	}
	flags := [][]agent.Flag{t.Classification.CognitiveFlags, t.Analysis.CognitiveFlags}
	for i, resp := range ordered {
		if i == 0 {
			meta.ResponseType = resp.ResponseType
		}
		meta.AgentsUsed = append(meta.AgentsUsed, resp.Agent)
		meta.Sources = append(meta.Sources, resp.Sources...)
		flags = append(flags, resp.Flags)
	}
	meta.CognitiveFlags = agent.MergeFlags(flags...)
	if resp, ok := r.responses[agent.SocraticTutor]; ok && resp.Strategy != "" {
		meta.Strategy = resp.Strategy
	} else if len(ordered) > 0 {
		meta.Strategy = ordered[0].Strategy
	}
	return meta
}

func conversationText(st session.State) string {
	var sb strings.Builder
	sb.WriteString(st.Brief)
	for _, m := range st.Messages {
		sb.WriteByte('\n')
		sb.WriteString(m.Content)
	}
	return sb.String()
}
