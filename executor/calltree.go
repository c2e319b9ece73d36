package executor

import (
	"os"
	"strings"
	"sync"
)

// callTreeSuffix is appended to the configured prefix to form the
// ancestry variable name (<PREFIX>_CALL_TREE).
const callTreeSuffix = "_CALL_TREE"

// invocationStack tracks the names of tool invocations currently on
// the call stack of this process. It is process-global because nested
// tool calls within one process must all see the same ancestry.
type invocationStack struct {
	mu    sync.Mutex
	names []string
}

var callStack invocationStack

// PushInvocation records a tool invocation. Every push must be paired
// with a PopInvocation, including on error paths; prefer
// WithInvocation which enforces that.
func PushInvocation(name string) {
	callStack.mu.Lock()
	defer callStack.mu.Unlock()
	callStack.names = append(callStack.names, name)
}

// PopInvocation removes the most recent invocation.
func PopInvocation() {
	callStack.mu.Lock()
	defer callStack.mu.Unlock()
	if n := len(callStack.names); n > 0 {
		callStack.names = callStack.names[:n-1]
	}
}

// WithInvocation runs fn with name on the invocation stack. The pop
// happens on every path so a failing nested call cannot corrupt the
// ancestry seen by sibling invocations.
func WithInvocation(name string, fn func() error) error {
	PushInvocation(name)
	defer PopInvocation()
	return fn()
}

// currentInvocations returns a snapshot of the stack.
func currentInvocations() []string {
	callStack.mu.Lock()
	defer callStack.mu.Unlock()
	return append([]string(nil), callStack.names...)
}

// resetInvocations clears the stack. Test use only.
func resetInvocations() {
	callStack.mu.Lock()
	defer callStack.mu.Unlock()
	callStack.names = nil
}

// callTreeValue builds the colon-joined ancestry for a child process:
// the chain inherited from our own parent, the invocations active in
// this process, and the child's own name.
func callTreeValue(inherited string, name string) string {
	var parts []string
	if inherited != "" {
		parts = append(parts, strings.Split(inherited, ":")...)
	}
	parts = append(parts, currentInvocations()...)
	if name != "" {
		parts = append(parts, name)
	}
	return strings.Join(parts, ":")
}

// injectContextEnv adds the runtime-context variables and the extended
// call tree to the child environment. An empty chain stays absent.
func (e *Engine) injectContextEnv(env map[string]string, invocation string) {
	if e.rctx == nil {
		return
	}
	prefix := e.cfg.Exec.EnvPrefix
	for k, v := range e.rctx.EnvVars() {
		env[prefix+"_"+k] = v
	}
	if chain := callTreeValue(e.rctx.CallTree(), invocation); chain != "" {
		env[prefix+callTreeSuffix] = chain
	}
}

// InheritedCallTree reads the ancestry handed to this process by its
// parent, using the given prefix.
func InheritedCallTree(prefix string) string {
	return os.Getenv(prefix + callTreeSuffix)
}
