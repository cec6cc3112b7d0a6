package policy

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/tamshai/gateway/internal/domain/identity"
	"github.com/tamshai/gateway/internal/domain/tool"
)

// maxConditionLength bounds grant conditions against pathological expressions.
const maxConditionLength = 1024

// celCostBudget is the CEL runtime cost limit per evaluation.
const celCostBudget = 100_000

// compiledGrant pairs a grant with its pre-compiled condition program.
type compiledGrant struct {
	grant   Grant
	program cel.Program // nil when the grant has no condition
}

// Table is the access policy table: loaded once at process start, immutable
// per process lifetime. A role absent from the table grants nothing
// (default-deny); permission is the union across the caller's role set.
type Table struct {
	// exact indexes grants with exact tool names: role|domain|tool|class.
	exact map[string][]compiledGrant
	// prefix holds glob grants per role|domain|class, checked after exact.
	prefix map[string][]compiledGrant
	// byTool indexes every grant by domain|tool|class for role suggestions.
	byTool map[string][]Grant

	logger *slog.Logger
}

// NewTable compiles the grants into an immutable policy table.
// Compilation fails on unknown classes, empty fields, and invalid CEL.
func NewTable(grants []Grant, logger *slog.Logger) (*Table, error) {
	env, err := newConditionEnv()
	if err != nil {
		return nil, fmt.Errorf("policy condition environment: %w", err)
	}

	t := &Table{
		exact:  make(map[string][]compiledGrant),
		prefix: make(map[string][]compiledGrant),
		byTool: make(map[string][]Grant),
		logger: logger,
	}

	for _, g := range grants {
		if g.Role == "" || g.Domain == "" || g.Tool == "" {
			return nil, fmt.Errorf("grant missing role, domain, or tool: %+v", g)
		}
		if !g.Class.IsValid() {
			return nil, fmt.Errorf("grant %s -> %s/%s: invalid class %q", g.Role, g.Domain, g.Tool, g.Class)
		}

		cg := compiledGrant{grant: g}
		if g.Condition != "" {
			if len(g.Condition) > maxConditionLength {
				return nil, fmt.Errorf("grant %s -> %s/%s: condition too long (%d chars)", g.Role, g.Domain, g.Tool, len(g.Condition))
			}
			prg, err := compileCondition(env, g.Condition)
			if err != nil {
				return nil, fmt.Errorf("grant %s -> %s/%s: %w", g.Role, g.Domain, g.Tool, err)
			}
			cg.program = prg
		}

		if strings.HasSuffix(g.Tool, "*") {
			key := grantKey(g.Role, g.Domain, "", g.Class)
			t.prefix[key] = append(t.prefix[key], cg)
		} else {
			key := grantKey(g.Role, g.Domain, g.Tool, g.Class)
			t.exact[key] = append(t.exact[key], cg)
			toolKey := grantKey("", g.Domain, g.Tool, g.Class)
			t.byTool[toolKey] = append(t.byTool[toolKey], g)
		}
	}
	return t, nil
}

// newConditionEnv builds the CEL environment grant conditions compile against.
func newConditionEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("subject", cel.StringType),
		cel.Variable("department", cel.StringType),
		cel.Variable("roles", cel.ListType(cel.StringType)),
		cel.Variable("params", cel.MapType(cel.StringType, cel.DynType)),
	)
}

// compileCondition parses, type-checks, and programs a grant condition.
func compileCondition(env *cel.Env, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("condition compilation failed: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("condition must evaluate to bool, got %s", ast.OutputType())
	}
	prg, err := env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(celCostBudget),
	)
	if err != nil {
		return nil, fmt.Errorf("condition program creation failed: %w", err)
	}
	return prg, nil
}

func grantKey(role, domain, toolName string, class tool.Class) string {
	return role + "|" + domain + "|" + toolName + "|" + string(class)
}

// Check evaluates whether the caller's role set permits (domain, tool, class).
// Exact-name grants are consulted before glob grants. The policy table never
// touches a backend; a denial here means no backend is contacted at all.
func (t *Table) Check(uc identity.UserContext, domain, toolName string, class tool.Class, params map[string]any) Decision {
	sawCondition := false
	for _, role := range uc.Roles {
		d, matched, evaluated := t.checkGrants(t.exact[grantKey(role, domain, toolName, class)], uc, params, role)
		if matched {
			return d
		}
		sawCondition = sawCondition || evaluated
	}
	for _, role := range uc.Roles {
		key := grantKey(role, domain, "", class)
		for _, cg := range t.prefix[key] {
			if !globMatch(cg.grant.Tool, toolName) {
				continue
			}
			d, matched, evaluated := t.checkGrants([]compiledGrant{cg}, uc, params, role)
			if matched {
				return d
			}
			sawCondition = sawCondition || evaluated
		}
	}
	// A denial that involved evaluating any condition depended on params and
	// must not be cached under a params-free key.
	return Decision{Allowed: false, Cacheable: !sawCondition}
}

// checkGrants evaluates candidate grants; the first whose condition holds wins.
// Returns matched=false when every candidate had a failing condition, so a
// later role's unconditional grant can still allow the call. evaluated reports
// whether any condition ran, failing or not.
func (t *Table) checkGrants(grants []compiledGrant, uc identity.UserContext, params map[string]any, role string) (d Decision, matched, evaluated bool) {
	for _, cg := range grants {
		if cg.program == nil {
			return Decision{Allowed: true, Role: role, Cacheable: true}, true, evaluated
		}
		evaluated = true
		if t.evalCondition(cg, uc, params) {
			return Decision{Allowed: true, Role: role, Cacheable: false}, true, true
		}
	}
	return Decision{}, false, evaluated
}

// evalCondition runs a compiled condition. Evaluation errors deny (fail closed).
func (t *Table) evalCondition(cg compiledGrant, uc identity.UserContext, params map[string]any) bool {
	if params == nil {
		params = map[string]any{}
	}
	out, _, err := cg.program.Eval(map[string]any{
		"subject":    uc.Subject,
		"department": uc.Department,
		"roles":      uc.Roles,
		"params":     params,
	})
	if err != nil {
		t.logger.Warn("policy condition evaluation failed, denying",
			"role", cg.grant.Role,
			"domain", cg.grant.Domain,
			"tool", cg.grant.Tool,
			"error", err,
		)
		return false
	}
	allowed, ok := out.Value().(bool)
	return ok && allowed
}

// MissingRoles returns the roles that would grant (domain, tool, class),
// sorted, for the INSUFFICIENT_PERMISSIONS suggestion. Glob grants are not
// suggested; naming a role that grants everything under a star teaches the
// caller less than naming the specific one.
func (t *Table) MissingRoles(domain, toolName string, class tool.Class) []string {
	seen := make(map[string]struct{})
	for _, g := range t.byTool[grantKey("", domain, toolName, class)] {
		seen[g.Role] = struct{}{}
	}
	roles := make([]string, 0, len(seen))
	for r := range seen {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles
}

// globMatch matches a trailing-star pattern against a tool name.
func globMatch(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == name
}
