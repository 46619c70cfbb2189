package tool

import (
	"fmt"
	"sort"
	"time"
	_ "time/tzdata" // zone lookups must work in minimal containers

	"github.com/hupe1980/meshgate/core"
)

// CurrentTimeToolName is the registered name of the clock tool.
const CurrentTimeToolName = "current_time"

// currentTimeArgs drives the clock tool's schema.
type currentTimeArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA time zone such as Europe/Berlin (defaults to local time)"`
}

// ClockOptions configures the clock tool.
type ClockOptions struct {
	// Now returns the current instant; defaults to time.Now.
	Now func() time.Time
	// Layout formats the returned time.
	Layout string
}

// NewCurrentTimeTool returns a tool reporting the current date and time.
func NewCurrentTimeTool(optFns ...func(o *ClockOptions)) *FunctionTool {
	opts := ClockOptions{
		Now:    time.Now,
		Layout: "2006-01-02 15:04:05 MST",
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return NewFunctionToolFromStruct(
		CurrentTimeToolName,
		"Get the current date and time, optionally in a given time zone",
		currentTimeArgs{},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			now := opts.Now()

			if tz, _ := args["timezone"].(string); tz != "" {
				loc, err := time.LoadLocation(tz)
				if err != nil {
					return nil, fmt.Errorf("unknown time zone %q", tz)
				}
				now = now.In(loc)
			}

			return map[string]any{
				"current_time": now.Format(opts.Layout),
				"weekday":      now.Weekday().String(),
				"timezone":     now.Location().String(),
			}, nil
		},
	)
}

var builtins = map[string]func() Tool{
	CurrentTimeToolName: func() Tool { return NewCurrentTimeTool() },
}

// Builtin returns a fresh instance of the named built-in tool.
func Builtin(name string) (Tool, bool) {
	factory, ok := builtins[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// BuiltinNames lists the registered built-in tools, sorted.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
