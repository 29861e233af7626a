// Package rules provides the CEL-Go based insight rule engine.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/contas/internal/domain"
	"github.com/opensource-finance/contas/internal/summary"
)

// Engine evaluates insight rules against monthly figures.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    *domain.InsightRule
	Program cel.Program
}

// NewEngine creates a new rule evaluation engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("income", cel.IntType),
		cel.Variable("expenses", cel.IntType),
		cel.Variable("surplus", cel.IntType),
		cel.Variable("ratio", cel.DoubleType),
		cel.Variable("year", cel.IntType),
		cel.Variable("month", cel.IntType),
		cel.Variable("status", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles a rule without touching the loaded set.
func (e *Engine) ValidateRule(rule *domain.InsightRule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(rule)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(rule *domain.InsightRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}

	e.compiledRules[ruleKey(rule)] = compiled
	return nil
}

// ruleKey scopes rule IDs by tenant; tenants may reuse an ID.
func ruleKey(rule *domain.InsightRule) string {
	return rule.TenantID + "/" + rule.ID
}

// LoadRules compiles and loads every enabled rule.
func (e *Engine) LoadRules(rules []*domain.InsightRule) error {
	for _, r := range rules {
		if r.Enabled {
			if err := e.LoadRule(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// Activation returns the CEL variables for a month.
func Activation(f domain.MonthlyFigure) map[string]any {
	ratio, _ := summary.Ratio(f.SurplusCents(), f.IncomeCents).Float64()
	return map[string]any{
		"income":   f.IncomeCents,
		"expenses": f.ExpensesCents,
		"surplus":  f.SurplusCents(),
		"ratio":    ratio,
		"year":     int64(f.Year),
		"month":    int64(f.Month),
		"status":   string(summary.Classify(f.SurplusCents(), f.IncomeCents)),
	}
}

// EvaluateAll evaluates the tenant's rules, and rules without a tenant, in parallel.
// Global rules come first, then the tenant's, each ordered by rule ID.
func (e *Engine) EvaluateAll(ctx context.Context, tenantID string, figure domain.MonthlyFigure) ([]domain.RuleResult, error) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		if rule.Rule.TenantID == "" || rule.Rule.TenantID == tenantID {
			rules = append(rules, rule)
		}
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}
	sort.Slice(rules, func(i, j int) bool { return ruleKey(rules[i].Rule) < ruleKey(rules[j].Rule) })

	activation := Activation(figure)
	period := figure.Period()

	results := make([]domain.RuleResult, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[idx] = domain.RuleResult{
					RuleID:  r.Rule.ID,
					Period:  period,
					Outcome: domain.RuleOutcomeError,
					Reason:  ctx.Err().Error(),
				}
				return
			}
			defer func() { <-sem }()

			results[idx] = evaluateRule(r, activation, period)
		}(i, rule)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func evaluateRule(rule *CompiledRule, activation map[string]any, period string) domain.RuleResult {
	start := time.Now()

	result := domain.RuleResult{
		RuleID: rule.Rule.ID,
		Period: period,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		result.Outcome = domain.RuleOutcomeError
		result.Reason = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	result.Score = toScore(out)
	result.Outcome, result.Reason = matchBand(result.Score, rule.Rule.Bands)
	result.ProcessMs = time.Since(start).Milliseconds()

	return result
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// matchBand finds the matching band for a score.
// Bands are evaluated in order: lower inclusive, upper exclusive,
// a nil upper meaning unbounded.
func matchBand(score float64, bands []domain.RuleBand) (string, string) {
	for _, band := range bands {
		if band.LowerLimit != nil && score < *band.LowerLimit {
			continue
		}
		if band.UpperLimit != nil && score >= *band.UpperLimit {
			continue
		}
		return band.Outcome, band.Reason
	}

	return domain.RuleOutcomePass, "no matching band"
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules replaces the loaded set. On a compile error the old set is kept.
func (e *Engine) ReloadRules(rules []*domain.InsightRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, r := range rules {
		if !r.Enabled {
			continue
		}

		compiled, err := e.compileRule(r)
		if err != nil {
			return err
		}
		newRules[ruleKey(r)] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// ReloadTenantRules replaces the rules of one tenant and keeps every other
// tenant's rules. On a compile error nothing changes.
func (e *Engine) ReloadTenantRules(tenantID string, rules []*domain.InsightRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule, len(e.compiledRules))
	for key, compiled := range e.compiledRules {
		if compiled.Rule.TenantID != tenantID {
			newRules[key] = compiled
		}
	}

	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		if r.TenantID != tenantID {
			return fmt.Errorf("rule %s belongs to tenant %q, not %q", r.ID, r.TenantID, tenantID)
		}

		compiled, err := e.compileRule(r)
		if err != nil {
			return err
		}
		newRules[ruleKey(r)] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// GetLoadedRules returns the currently loaded rules ordered by tenant and ID.
func (e *Engine) GetLoadedRules() []*domain.InsightRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.InsightRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Rule)
	}
	sort.Slice(rules, func(i, j int) bool { return ruleKey(rules[i]) < ruleKey(rules[j]) })
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(rule *domain.InsightRule) (*CompiledRule, error) {
	if rule.ID == "" {
		return nil, fmt.Errorf("rule ID is required")
	}

	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", rule.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{
		Rule:    rule,
		Program: program,
	}, nil
}
