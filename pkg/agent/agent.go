package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Protocol-Lattice/meeting-agent/pkg/memory"
)

// State is a phase of the turn state machine.
type State string

const (
	StateAwaitingInput State = "AWAITING_INPUT"
	StatePlanning      State = "PLANNING"
	StateToolCall      State = "TOOL_CALL"
	StateResponding    State = "RESPONDING"
)

const defaultMaxIterations = 8

var tracer = otel.Tracer("github.com/Protocol-Lattice/meeting-agent/pkg/agent")

// Observer receives turn and tool outcomes.
type Observer interface {
	ToolInvoked(tool, outcome string, elapsed time.Duration)
	TurnCompleted(outcome string, elapsed time.Duration)
}

// TurnHook is called after a turn has been committed to memory.
type TurnHook func(ctx context.Context, turn memory.Turn)

// Agent runs the plan / call / respond loop for one session.
type Agent struct {
	planner       Planner
	registry      *Registry
	memory        *memory.ConversationState
	systemPrompt  string
	sessionID     string
	userID        string
	maxIterations int
	turnTimeout   time.Duration
	logger        *slog.Logger
	observer      Observer
	onTurn        TurnHook

	turnMu  sync.Mutex
	stateMu sync.RWMutex
	state   State
}

// Options configure a new Agent.
type Options struct {
	Planner       Planner
	Registry      *Registry
	Memory        *memory.ConversationState
	SystemPrompt  string
	SessionID     string
	UserID        string
	MaxIterations int
	TurnTimeout   time.Duration
	Logger        *slog.Logger
	Observer      Observer
	OnTurn        TurnHook
}

// New creates an Agent with the provided options.
func New(opts Options) (*Agent, error) {
	if opts.Planner == nil {
		return nil, errors.New("agent requires a planner")
	}
	if opts.Registry == nil {
		return nil, errors.New("agent requires a capability registry")
	}
	if opts.Memory == nil {
		return nil, errors.New("agent requires conversation memory")
	}

	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}

	systemPrompt := opts.SystemPrompt
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Agent{
		planner:       opts.Planner,
		registry:      opts.Registry,
		memory:        opts.Memory,
		systemPrompt:  systemPrompt,
		sessionID:     opts.SessionID,
		userID:        opts.UserID,
		maxIterations: maxIter,
		turnTimeout:   opts.TurnTimeout,
		logger:        logger.With("session_id", opts.SessionID),
		observer:      opts.Observer,
		onTurn:        opts.OnTurn,
		state:         StateAwaitingInput,
	}, nil
}

type turn struct {
	transcript []memory.Message
	calls      []memory.ToolCall
}

// Respond resolves one user turn. Turns on the same agent are serialized. The
// conversation memory receives the user message and the final answer only when
// the turn completes; failed or timed-out turns leave it untouched.
func (a *Agent) Respond(ctx context.Context, userInput string) (string, error) {
	input := strings.TrimSpace(userInput)
	if input == "" {
		return "", &ValidationError{Field: "query", Reason: "must not be empty"}
	}

	a.turnMu.Lock()
	defer a.turnMu.Unlock()

	if a.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.turnTimeout)
		defer cancel()
	}
	ctx, span := tracer.Start(ctx, "agent.turn", trace.WithAttributes(attribute.String("session.id", a.sessionID)))
	defer span.End()

	started := time.Now()
	t := &turn{transcript: append(a.memory.Messages(), memory.UserMessage(input))}
	answer, err := a.run(ctx, t)
	a.setState(StateAwaitingInput)
	elapsed := time.Since(started)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrTurnTimeout, elapsed.Round(time.Millisecond))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.turnObserved(turnOutcome(err), elapsed)
		a.logger.Warn("turn failed", "tool_calls", len(t.calls), "elapsed", elapsed, "error", err)
		return "", err
	}

	a.memory.Append(memory.UserMessage(input), memory.AssistantMessage(answer))
	a.turnObserved("ok", elapsed)
	a.logger.Debug("turn completed", "tool_calls", len(t.calls), "elapsed", elapsed)

	if a.onTurn != nil {
		a.onTurn(ctx, memory.Turn{
			UserID:    a.userID,
			SessionID: a.sessionID,
			User:      input,
			Assistant: answer,
			ToolCalls: t.calls,
			Duration:  elapsed,
			CreatedAt: started.UTC(),
		})
	}
	return answer, nil
}

func (a *Agent) run(ctx context.Context, t *turn) (string, error) {
	specs := a.registry.Specs()
	for step := 1; step <= a.maxIterations; step++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		a.setState(StatePlanning)
		decision, err := a.planner.Plan(ctx, PlanRequest{
			SessionID:    a.sessionID,
			SystemPrompt: a.systemPrompt,
			Messages:     t.transcript,
			Tools:        specs,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", Upstream("planning", err)
		}

		if decision.IsFinal() {
			a.setState(StateResponding)
			final := strings.TrimSpace(decision.Final)
			if final == "" {
				return "", Upstream("planning", errors.New("planner returned an empty answer"))
			}
			return final, nil
		}

		a.setState(StateToolCall)
		call := *decision.ToolCall
		if call.ID == "" {
			call.ID = fmt.Sprintf("call_%d", step)
		}
		t.transcript = append(t.transcript, memory.Message{Role: memory.RoleAssistant, ToolCalls: []memory.ToolCall{call}})

		result, err := a.invoke(ctx, call)
		if err != nil {
			return "", err
		}
		t.calls = append(t.calls, call)
		t.transcript = append(t.transcript, memory.ToolResultMessage(call, result))
	}
	return "", fmt.Errorf("%w of %d", ErrIterationLimit, a.maxIterations)
}

// invoke runs one capability. Recoverable failures come back as result text for
// the planner; only upstream model failures and context errors are returned.
func (a *Agent) invoke(ctx context.Context, call memory.ToolCall) (string, error) {
	ctx, span := tracer.Start(ctx, "agent.tool", trace.WithAttributes(attribute.String("tool.name", call.Name)))
	defer span.End()
	started := time.Now()

	tool, spec, ok := a.registry.Lookup(call.Name)
	if !ok {
		a.toolObserved(call.Name, "unknown_tool", time.Since(started))
		a.logger.Warn("planner selected an unknown capability", "tool", call.Name)
		return fmt.Sprintf("Error: unknown capability %q. Available capabilities: %s.", call.Name, strings.Join(a.toolNames(), ", ")), nil
	}

	args, err := ValidateArguments(spec, call.Arguments)
	if err != nil {
		a.toolObserved(spec.Name, "invalid_arguments", time.Since(started))
		a.logger.Warn("planner supplied invalid arguments", "tool", spec.Name, "error", err)
		return "Error: " + err.Error(), nil
	}

	a.logger.Debug("invoking capability", "tool", spec.Name, "arguments", args)
	resp, err := tool.Invoke(ctx, ToolRequest{SessionID: a.sessionID, Arguments: args})
	elapsed := time.Since(started)
	if err != nil {
		span.RecordError(err)
		var up *UpstreamModelError
		if errors.As(err, &up) {
			a.toolObserved(spec.Name, "upstream_error", elapsed)
			return "", err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			a.toolObserved(spec.Name, "cancelled", elapsed)
			return "", ctxErr
		}
		toolErr := &ToolExecutionError{Tool: spec.Name, Err: err}
		a.toolObserved(spec.Name, "error", elapsed)
		a.logger.Warn("capability failed", "tool", spec.Name, "error", err)
		return "Error: " + toolErr.Error(), nil
	}

	a.toolObserved(spec.Name, "ok", elapsed)
	a.logger.Info("capability invoked", "tool", spec.Name, "elapsed", elapsed)
	return resp.Content, nil
}

func (a *Agent) toolNames() []string {
	specs := a.registry.Specs()
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	return names
}

func (a *Agent) toolObserved(tool, outcome string, elapsed time.Duration) {
	if a.observer != nil {
		a.observer.ToolInvoked(tool, outcome, elapsed)
	}
}

func (a *Agent) turnObserved(outcome string, elapsed time.Duration) {
	if a.observer != nil {
		a.observer.TurnCompleted(outcome, elapsed)
	}
}

func turnOutcome(err error) string {
	var up *UpstreamModelError
	switch {
	case errors.Is(err, ErrTurnTimeout):
		return "timeout"
	case errors.Is(err, ErrIterationLimit):
		return "iteration_limit"
	case errors.As(err, &up):
		return "upstream_error"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}
	return "error"
}

func (a *Agent) setState(s State) {
	a.stateMu.Lock()
	prev := a.state
	a.state = s
	a.stateMu.Unlock()
	if prev != s {
		a.logger.Debug("agent state", "from", prev, "to", s)
	}
}

// State returns the current phase of the state machine.
func (a *Agent) State() State {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.state
}

// SessionID returns the session the agent belongs to.
func (a *Agent) SessionID() string { return a.sessionID }

// History returns the committed conversation.
func (a *Agent) History() []memory.Message { return a.memory.Messages() }

// Registry returns the capabilities available to the planner.
func (a *Agent) Registry() *Registry { return a.registry }

// ToolSpecs returns the capability descriptors in registration order.
func (a *Agent) ToolSpecs() []ToolSpec { return a.registry.Specs() }
