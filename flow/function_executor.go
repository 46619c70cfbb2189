package flow

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/meshgate/core"
	"github.com/hupe1980/meshgate/tool"
)

// FunctionExecutor executes the function calls of one model turn and emits
// one function response event per call. Implementations must:
//   - Respect runCtx.Context cancellation
//   - Never panic (recover internally and emit error responses)
//   - Emit responses in call order
type FunctionExecutor interface {
	Execute(runCtx *core.RunContext, tools map[string]tool.Tool, fnCalls []core.FunctionCall, emit func(core.Event) error) error
}

// FunctionExecutorConfig configures the sequential executor.
type FunctionExecutorConfig struct {
	LogStartEvents bool // log a start line per function
}

// sequentialFunctionExecutor runs calls one after another. Each delegation
// result must be visible before the next call starts.
type sequentialFunctionExecutor struct {
	cfg FunctionExecutorConfig
}

// NewSequentialFunctionExecutor constructs the default executor.
func NewSequentialFunctionExecutor(cfg FunctionExecutorConfig) FunctionExecutor {
	return &sequentialFunctionExecutor{cfg: cfg}
}

func (e *sequentialFunctionExecutor) Execute(
	runCtx *core.RunContext,
	tools map[string]tool.Tool,
	fnCalls []core.FunctionCall,
	emit func(core.Event) error,
) error {
	batchStart := time.Now()

	for _, fc := range fnCalls {
		if err := runCtx.Err(); err != nil {
			return err
		}

		respEv := e.executeSingle(runCtx, tools, fc)
		if err := emit(respEv); err != nil {
			runCtx.LogError("agent.function.emit.error", "function", fc.Name, "error", err.Error())
			return err
		}
	}

	runCtx.LogDebug(
		"agent.functions.batch.complete",
		"agent", runCtx.AgentName,
		"count", len(fnCalls),
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return nil
}

func (e *sequentialFunctionExecutor) executeSingle(
	runCtx *core.RunContext,
	tools map[string]tool.Tool,
	fc core.FunctionCall,
) core.Event {
	toolCtx := core.NewToolContext(runCtx, fc.ID)
	if e.cfg.LogStartEvents {
		runCtx.LogInfo("agent.function.start", "agent", runCtx.AgentName, "function", fc.Name, "function_call_id", fc.ID)
	}

	start := time.Now()

	var (
		result any
		err    error
	)

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
				runCtx.LogError("agent.function.panic", "agent", runCtx.AgentName, "function", fc.Name, "recover", r)
			}
		}()
		result, err = executeTool(tools, toolCtx, fc.Name, fc.Arguments)
	}()

	runCtx.LogInfo(
		"agent.function.executed",
		"agent", runCtx.AgentName,
		"function", fc.Name,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	return core.NewFunctionResponseEvent(runCtx.RunID, runCtx.AgentName, fc.ID, fc.Name, result, err)
}

// panicError converts a recovered panic value to an error carrying the stack.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }

// Stack returns the goroutine stack captured at recovery.
func (p *panicErr) Stack() []byte { return p.stack }

// executeTool centralizes tool lookup, argument decoding and execution.
func executeTool(tools map[string]tool.Tool, toolCtx *core.ToolContext, toolName, args string) (any, error) {
	impl, ok := tools[toolName]
	if !ok {
		return nil, tool.NewToolError(toolName, fmt.Sprintf("tool %s not found", toolName), tool.CodeNotFound)
	}

	var argMap map[string]any
	if args == "" {
		argMap = map[string]any{}
	} else if err := json.Unmarshal([]byte(args), &argMap); err != nil {
		return nil, tool.NewToolError(toolName, fmt.Sprintf("failed to unmarshal args: %v", err), tool.CodeValidation)
	}

	return impl.Call(toolCtx, argMap)
}
