package security

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/cel-go/cel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"almacen/internal/core/apperror"
)

var tracer = otel.Tracer("almacen/security")

// Operation names a guarded state change or read.
type Operation string

const (
	OpRequestCreate         Operation = "pedido.crear"
	OpRequestEdit           Operation = "pedido.modificar"
	OpRequestDisperse       Operation = "pedido.dispersar"
	OpRequestApprove        Operation = "pedido.aprobar"
	OpRequestReject         Operation = "pedido.rechazar"
	OpRequestMarkReady      Operation = "pedido.marcar_listo"
	OpRequestReceive        Operation = "pedido.recibir"
	OpRequestRejectDelivery Operation = "pedido.rechazar_entrega"
	OpRequestAnnul          Operation = "pedido.anular"
	OpRequisitionCancel     Operation = "solicitud.cancelar"
	OpOrderCreate           Operation = "orden.crear"
	OpOrderSend             Operation = "orden.enviar"
	OpOrderUpdateState      Operation = "orden.actualizar_estado"
	OpOrderReceive          Operation = "orden.recibir"
	OpOrderAnnul            Operation = "orden.anular"
	OpTraceView             Operation = "traza.ver"
)

// Resource carries the entity attributes rules may look at.
// Every attribute is always present in the evaluation (empty when unknown).
type Resource struct {
	Kind                 string
	Type                 string
	State                string
	OwnerID              string
	SupervisorID         string
	AssignedSupervisorID string
}

func (r Resource) attributes() map[string]string {
	return map[string]string{
		"kind":                   r.Kind,
		"type":                   r.Type,
		"state":                  r.State,
		"owner_id":               r.OwnerID,
		"supervisor_id":          r.SupervisorID,
		"assigned_supervisor_id": r.AssignedSupervisorID,
	}
}

var defaultRules = map[Operation]string{
	OpRequestCreate: `(resource.type == "equipo" && actor.role == "almacen") ||
		(resource.type == "proyecto" && actor.role in ["disenador", "admin"])`,
	OpRequestEdit:           `actor.role == "admin" || actor.id == resource.owner_id`,
	OpRequestDisperse:       `actor.role in ["almacen", "admin"]`,
	OpRequestApprove:        `actor.role == "admin" || (resource.supervisor_id != "" && actor.id == resource.supervisor_id)`,
	OpRequestReject:         `actor.role == "admin" || (resource.supervisor_id != "" && actor.id == resource.supervisor_id)`,
	OpRequestMarkReady:      `actor.role in ["almacen", "admin"]`,
	OpRequestReceive:        `resource.assigned_supervisor_id != "" && actor.id == resource.assigned_supervisor_id`,
	OpRequestRejectDelivery: `resource.assigned_supervisor_id != "" && actor.id == resource.assigned_supervisor_id`,
	OpRequestAnnul:          `actor.role in ["supervisor", "admin"]`,
	OpRequisitionCancel:     `actor.role in ["compras", "almacen", "admin"]`,
	OpOrderCreate:           `actor.role in ["compras", "admin"]`,
	OpOrderSend:             `actor.role in ["compras", "admin"]`,
	OpOrderUpdateState:      `actor.role in ["compras", "admin"]`,
	OpOrderReceive:          `actor.role in ["compras", "almacen", "admin"]`,
	OpOrderAnnul:            `actor.role in ["compras", "almacen", "admin"]`,
	OpTraceView:             `actor.id != ""`,
}

// DefaultRules returns a copy of the built-in authorization matrix.
func DefaultRules() map[Operation]string {
	out := make(map[Operation]string, len(defaultRules))
	for op, expr := range defaultRules {
		out[op] = expr
	}
	return out
}

// Policy evaluates compiled CEL rules keyed by operation.
type Policy struct {
	rules    map[Operation]string
	programs map[Operation]cel.Program
}

// NewPolicy compiles the default matrix with overrides applied on top.
// Override keys must name a known operation.
func NewPolicy(overrides map[string]string) (*Policy, error) {
	env, err := cel.NewEnv(
		cel.Variable("actor", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("resource", cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	rules := DefaultRules()
	for name, expr := range overrides {
		op := Operation(name)
		if _, ok := rules[op]; !ok {
			return nil, fmt.Errorf("policy override for unknown operation %q", name)
		}
		rules[op] = expr
	}

	p := &Policy{rules: rules, programs: make(map[Operation]cel.Program, len(rules))}
	for op, expr := range rules {
		ast, iss := env.Compile(expr)
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("compile rule %s: %w", op, iss.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("rule %s must evaluate to bool, got %v", op, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("program rule %s: %w", op, err)
		}
		p.programs[op] = prg
	}
	return p, nil
}

// MustPolicy is NewPolicy without overrides, panicking on error.
func MustPolicy() *Policy {
	p, err := NewPolicy(nil)
	if err != nil {
		panic(err)
	}
	return p
}

// Operations lists the operations the policy knows, sorted.
func (p *Policy) Operations() []Operation {
	ops := make([]Operation, 0, len(p.rules))
	for op := range p.rules {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// Authorize returns nil when actor may run op on res.
// Unknown roles yield a validation error, denials a forbidden error.
func (p *Policy) Authorize(ctx context.Context, actor Actor, op Operation, res Resource) error {
	_, span := tracer.Start(ctx, "policy.authorize", trace.WithAttributes(
		attribute.String("policy.operation", string(op)),
		attribute.String("policy.role", string(actor.Role)),
	))
	defer span.End()

	if err := actor.Validate(); err != nil {
		return err
	}

	prg, ok := p.programs[op]
	if !ok {
		return apperror.NewForbidden("operation is not permitted").
			WithDetail("operation", string(op))
	}

	out, _, err := prg.Eval(map[string]any{
		"actor":    map[string]string{"id": actor.UserID, "role": string(actor.Role)},
		"resource": res.attributes(),
	})
	if err != nil {
		return apperror.NewForbidden("operation is not permitted").
			WithDetail("operation", string(op)).
			WithCause(err)
	}

	if allowed, ok := out.Value().(bool); !ok || !allowed {
		return apperror.NewForbidden(fmt.Sprintf("role %s may not perform %s", actor.Role, op)).
			WithDetail("operation", string(op)).
			WithDetail("role", string(actor.Role))
	}
	return nil
}

// Can is Authorize reduced to a boolean.
func (p *Policy) Can(ctx context.Context, actor Actor, op Operation, res Resource) bool {
	return p.Authorize(ctx, actor, op, res) == nil
}
