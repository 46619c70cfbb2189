package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/meshgate/core"
	"github.com/hupe1980/meshgate/logging"
	"github.com/hupe1980/meshgate/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// DelegationToolName is the function name the delegation tool is exposed under.
const DelegationToolName = "send_message"

const delegationDescription = "Use this to send a message to one of your sub-agents"

// Recipient is one agent a delegation tool may address.
type Recipient struct {
	Name        string
	Description string
}

// DelegationSchema is the ordered, immutable set of recipients a delegation
// tool accepts. It produces the tool's parameter schema and validates calls.
type DelegationSchema struct {
	recipients []Recipient
	index      map[string]struct{}
}

// NewDelegationSchema builds a schema from recipients in the given order.
// Empty and duplicate names are rejected.
func NewDelegationSchema(recipients ...Recipient) (*DelegationSchema, error) {
	if len(recipients) == 0 {
		return nil, errors.New("delegation schema needs at least one recipient")
	}

	s := &DelegationSchema{
		recipients: make([]Recipient, 0, len(recipients)),
		index:      make(map[string]struct{}, len(recipients)),
	}

	for _, r := range recipients {
		if strings.TrimSpace(r.Name) == "" {
			return nil, errors.New("delegation recipient name must not be empty")
		}
		if _, dup := s.index[r.Name]; dup {
			return nil, fmt.Errorf("duplicate delegation recipient %q", r.Name)
		}
		s.index[r.Name] = struct{}{}
		s.recipients = append(s.recipients, r)
	}

	return s, nil
}

// Names returns recipient names in declaration order.
func (s *DelegationSchema) Names() []string {
	names := make([]string, len(s.recipients))
	for i, r := range s.recipients {
		names[i] = r.Name
	}
	return names
}

// Recipients returns a copy of the recipients.
func (s *DelegationSchema) Recipients() []Recipient {
	out := make([]Recipient, len(s.recipients))
	copy(out, s.recipients)
	return out
}

// Allows reports whether name is a declared recipient.
func (s *DelegationSchema) Allows(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Validate checks a call's arguments. It does not check membership; see Allows.
func (s *DelegationSchema) Validate(recipient, message string) error {
	var errs []error
	if strings.TrimSpace(recipient) == "" {
		errs = append(errs, &ValidationError{Field: "recipient", Message: "must not be empty"})
	}
	if strings.TrimSpace(message) == "" {
		errs = append(errs, &ValidationError{Field: "message", Message: "must not be empty"})
	}
	return errors.Join(errs...)
}

// Parameters returns the JSON schema advertised to the model.
func (s *DelegationSchema) Parameters() map[string]any {
	lines := make([]string, len(s.recipients))
	for i, r := range s.recipients {
		lines[i] = fmt.Sprintf("%s: %s", r.Name, r.Description)
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"recipient": map[string]any{
				"type":        "string",
				"enum":        s.Names(),
				"description": strings.Join(lines, "\n"),
			},
			"message": map[string]any{
				"type":        "string",
				"description": "Message to send to sub-agent.",
			},
		},
		"required": []string{"recipient", "message"},
	}
}

// DelegationOptions configures a Delegation tool.
type DelegationOptions struct {
	// MaxDepth bounds nested delegation; 0 disables the check.
	MaxDepth int
	Logger   logging.Logger
}

// Delegation lets the owning agent's model relay a message to one of its
// direct sub-agents and read the reply. Every outcome, including failures,
// is returned as a string result so the caller's reasoning turn continues.
type Delegation struct {
	owner    string
	schema   *DelegationSchema
	registry core.Registry
	opts     DelegationOptions
}

var _ Tool = (*Delegation)(nil)

// NewDelegation creates the delegation tool for owner. The registry is
// shared with the orchestrator and must not change after construction.
func NewDelegation(owner string, schema *DelegationSchema, registry core.Registry, optFns ...func(o *DelegationOptions)) *Delegation {
	opts := DelegationOptions{
		MaxDepth: 5,
		Logger:   logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Delegation{
		owner:    owner,
		schema:   schema,
		registry: registry,
		opts:     opts,
	}
}

// Name implements Tool.
func (d *Delegation) Name() string { return DelegationToolName }

// Description implements Tool.
func (d *Delegation) Description() string { return delegationDescription }

// Parameters implements Tool.
func (d *Delegation) Parameters() map[string]any { return d.schema.Parameters() }

// Owner returns the name of the agent the tool belongs to.
func (d *Delegation) Owner() string { return d.owner }

// Schema returns the recipient schema.
func (d *Delegation) Schema() *DelegationSchema { return d.schema }

// Call implements Tool. It never returns a Go error.
func (d *Delegation) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	recipient, _ := args["recipient"].(string)
	message, _ := args["message"].(string)

	return d.Send(toolCtx, recipient, message), nil
}

// Send relays message to recipient and describes the outcome.
func (d *Delegation) Send(toolCtx *core.ToolContext, recipient, message string) string {
	logger := toolCtx.Logger()
	cfg := toolCtx.Config()

	ctx, span := tracing.Start(toolCtx.Context(), "delegation.send",
		attribute.String("delegation.owner", d.owner),
		attribute.String("delegation.recipient", recipient),
		attribute.Int("delegation.depth", cfg.Depth),
	)
	defer span.End()

	if err := d.schema.Validate(recipient, message); err != nil {
		logger.Warn("delegation.invalid_arguments", "owner", d.owner, "error", err.Error())
		tracing.RecordError(span, err)

		return fmt.Sprintf("Error while sending message to %s: %v", recipient, err)
	}

	target, ok := d.registry.Lookup(recipient)
	if !ok {
		logger.Warn("delegation.recipient_missing", "owner", d.owner, "recipient", recipient)

		return fmt.Sprintf("Message sent to mock agent '%s'. The message was: '%s'.", recipient, message)
	}

	if !d.schema.Allows(recipient) {
		logger.Warn("delegation.recipient_rejected", "owner", d.owner, "recipient", recipient)

		return fmt.Sprintf("Error while sending message to %s: not a sub-agent of %s (valid recipients: %s)",
			recipient, d.owner, strings.Join(d.schema.Names(), ", "))
	}

	nested := cfg.Nested()
	if d.opts.MaxDepth > 0 && nested.Depth > d.opts.MaxDepth {
		err := fmt.Errorf("delegation depth %d exceeds limit %d", nested.Depth, d.opts.MaxDepth)
		logger.Warn("delegation.depth_exceeded", "owner", d.owner, "recipient", recipient, "depth", nested.Depth)
		tracing.RecordError(span, err)

		return fmt.Sprintf("Error while sending message to %s: %v", recipient, err)
	}

	logger.Info("delegation.send.start", "owner", d.owner, "recipient", recipient, "depth", nested.Depth)

	reply, err := invokeSafely(ctx, target, core.NewEnvelope(message), nested)
	if err != nil {
		logger.Error("delegation.send.error", "owner", d.owner, "recipient", recipient, "error", err.Error())
		tracing.RecordError(span, err)

		return fmt.Sprintf("Error while sending message to %s: %v", recipient, err)
	}

	logger.Info("delegation.send.success", "owner", d.owner, "recipient", recipient)
	tracing.SetOK(span)

	return fmt.Sprintf("Successfully relayed message to %s. Response: %s", recipient, reply.LastContent())
}

// invokeSafely calls target and converts panics into errors.
func invokeSafely(ctx context.Context, target core.Invoker, env core.Envelope, cfg core.RunConfig) (out core.Envelope, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in agent %s: %v", target.Name(), r)
		}
	}()

	out, err = target.Invoke(ctx, env, cfg)
	if err != nil {
		return nil, err
	}

	if _, ok := out.Last(); !ok {
		return nil, core.ErrNoReply
	}

	return out, nil
}
