package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hupe1980/meshgate/tool"
)

// Validate checks every setting needed to serve WhatsApp traffic and reports
// all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Twilio.AccountSID == "" {
		errs = append(errs, fmt.Errorf("%w: TWILIO_ACCOUNT_SID", ErrMissingRequired))
	}

	if c.Twilio.AuthToken == "" {
		errs = append(errs, fmt.Errorf("%w: TWILIO_AUTH_TOKEN", ErrMissingRequired))
	}

	if c.Twilio.FromNumber == "" {
		errs = append(errs, fmt.Errorf("%w: FROM_WHATSAPP_NUMBER", ErrMissingRequired))
	}

	if err := c.ValidateRuntime(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ValidateRuntime checks everything except channel credentials.
func (c *Config) ValidateRuntime() error {
	var errs []error

	switch c.Memory.Driver {
	case MemorySQLite:
		if c.Memory.Path == "" {
			errs = append(errs, fmt.Errorf("%w: MESHGATE_MEMORY_PATH", ErrMissingRequired))
		}
	case MemoryInProc, MemoryNone:
	default:
		errs = append(errs, fmt.Errorf("memory driver %q is not one of %s, %s, %s", c.Memory.Driver, MemorySQLite, MemoryInProc, MemoryNone))
	}

	if c.Runtime.MaxTurns <= 0 {
		errs = append(errs, fmt.Errorf("max turns must be positive, got %d", c.Runtime.MaxTurns))
	}

	if c.Runtime.MaxDepth < 0 {
		errs = append(errs, fmt.Errorf("max depth must not be negative, got %d", c.Runtime.MaxDepth))
	}

	if c.Runtime.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("request timeout must not be negative, got %s", c.Runtime.RequestTimeout))
	}

	if c.Server.Addr == "" {
		errs = append(errs, fmt.Errorf("%w: MESHGATE_ADDR", ErrMissingRequired))
	}

	if err := c.validateAgents(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (c *Config) validateAgents() error {
	var errs []error

	if c.MainAgent == "" {
		errs = append(errs, fmt.Errorf("%w: main_agent", ErrMissingRequired))
	}

	declared := make(map[string]AgentConfig, len(c.Agents))

	for i, a := range c.Agents {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("agents[%d]: %w: name", i, ErrMissingRequired))
			continue
		}

		if _, dup := declared[name]; dup {
			errs = append(errs, fmt.Errorf("agents[%d]: duplicate agent name %q", i, name))
			continue
		}

		declared[name] = a

		for _, t := range a.Tools {
			if _, ok := tool.Builtin(t); !ok {
				errs = append(errs, fmt.Errorf("agent %q: unknown tool %q (available: %s)", name, t, strings.Join(tool.BuiltinNames(), ", ")))
			}
		}

		seen := make(map[string]bool, len(a.SubAgents))
		for _, sub := range a.SubAgents {
			if sub == name {
				errs = append(errs, fmt.Errorf("agent %q lists itself as a sub-agent", name))
			}

			if seen[sub] {
				errs = append(errs, fmt.Errorf("agent %q lists sub-agent %q twice", name, sub))
			}

			seen[sub] = true
		}
	}

	if c.MainAgent != "" {
		if _, ok := declared[c.MainAgent]; !ok {
			errs = append(errs, fmt.Errorf("main agent %q is not declared", c.MainAgent))
		}
	}

	for _, a := range c.Agents {
		for _, sub := range a.SubAgents {
			if _, ok := declared[sub]; !ok && c.Runtime.Strict {
				errs = append(errs, fmt.Errorf("agent %q: sub-agent %q is not declared", a.Name, sub))
			}
		}
	}

	if cycle := findCycle(c.Agents, declared); cycle != nil {
		errs = append(errs, fmt.Errorf("sub-agent cycle: %s", strings.Join(cycle, " -> ")))
	}

	return errors.Join(errs...)
}

// findCycle returns the first sub-agent cycle among declared agents, walking
// agents in declaration order.
func findCycle(agents []AgentConfig, declared map[string]AgentConfig) []string {
	const (
		unvisited = iota
		visiting
		done
	)

	state := make(map[string]int, len(declared))

	var path []string

	var visit func(name string) []string
	visit = func(name string) []string {
		switch state[name] {
		case visiting:
			start := slices.Index(path, name)
			return append(slices.Clone(path[start:]), name)
		case done:
			return nil
		}

		state[name] = visiting
		path = append(path, name)

		for _, sub := range declared[name].SubAgents {
			if _, ok := declared[sub]; !ok || sub == name {
				continue
			}

			if cycle := visit(sub); cycle != nil {
				return cycle
			}
		}

		path = path[:len(path)-1]
		state[name] = done

		return nil
	}

	for _, a := range agents {
		if state[a.Name] == unvisited {
			if cycle := visit(a.Name); cycle != nil {
				return cycle
			}
		}
	}

	return nil
}

// Agent returns the declaration called name.
func (c *Config) Agent(name string) (AgentConfig, bool) {
	for _, a := range c.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return AgentConfig{}, false
}
