package executor

import "os"

// RuntimeContext supplies the environment the engine propagates to
// children: the detection of agent mode, interactivity, CI and
// environment name lives outside the engine; this interface is its
// boundary.
type RuntimeContext interface {
	// EnvVars returns unprefixed variable names (AGENT_MODE,
	// INTERACTIVE, CI, ENV) mapped to the values to propagate.
	EnvVars() map[string]string

	// CallTree returns the invocation chain inherited from the parent
	// process, or "" at the root.
	CallTree() string
}

// ambientContext is the default RuntimeContext: it propagates whatever
// the parent process handed us, verbatim.
type ambientContext struct {
	prefix string
}

// NewAmbientContext builds a RuntimeContext that reads the prefixed
// variables from this process's own environment.
func NewAmbientContext(prefix string) RuntimeContext {
	return &ambientContext{prefix: prefix}
}

func (c *ambientContext) EnvVars() map[string]string {
	vars := make(map[string]string)
	for _, key := range []string{"AGENT_MODE", "INTERACTIVE", "CI", "ENV"} {
		if v, ok := os.LookupEnv(c.prefix + "_" + key); ok {
			vars[key] = v
		}
	}
	return vars
}

func (c *ambientContext) CallTree() string {
	return InheritedCallTree(c.prefix)
}
