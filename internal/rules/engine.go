// Package rules provides the CEL-Go based advisory rule engine.
//
// Advisory rules run after the scoring engine has produced a
// recommendation. They never change the ranking; a triggered rule only
// appends its message to the recommendation warnings.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/smartwallet/internal/domain"
)

// Engine is the CEL-based advisory rule engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.AdvisoryRule
	Program cel.Program
}

// NewEngine creates a new advisory rule engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		// Transaction
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("category", cel.StringType),
		cel.Variable("merchant", cel.StringType),
		cel.Variable("merchant_app", cel.StringType),
		cel.Variable("location", cel.StringType),
		cel.Variable("gps_unavailable", cel.BoolType),
		cel.Variable("using_other_app", cel.BoolType),
		cel.Variable("platform", cel.StringType),
		// Recommendation
		cel.Variable("prioritize_mandatory", cel.BoolType),
		cel.Variable("warnings_count", cel.IntType),
		cel.Variable("has_top_choice", cel.BoolType),
		cel.Variable("has_fallback", cel.BoolType),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("fallback_score", cel.DoubleType),
		// Top card
		cel.Variable("card_id", cel.StringType),
		cel.Variable("card_name", cel.StringType),
		cel.Variable("card_network", cel.StringType),
		cel.Variable("card_rate", cel.DoubleType),
		cel.Variable("card_utilization", cel.DoubleType),
		cel.Variable("card_limit", cel.DoubleType),
		cel.Variable("mandatory_transactions_left", cel.IntType),
		cel.Variable("statement_due_in_days", cel.IntType),
		cel.Variable("apr_sensitive", cel.BoolType),
		cel.Variable("foreign_tx_fee", cel.BoolType),
		cel.Variable("requires_tap_to_pay", cel.BoolType),
		cel.Variable("supported_wallets", cel.ListType(cel.StringType)),
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

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.AdvisoryRule) error {
	if cfg == nil {
		return fmt.Errorf("%w: advisory rule is required", domain.ErrInvalidInput)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine. Disabled rules are
// removed.
func (e *Engine) LoadRule(cfg *domain.AdvisoryRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !cfg.Enabled {
		delete(e.compiledRules, cfg.ID)
		return nil
	}

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled
	return nil
}

// ReloadRules replaces every loaded rule. On error the previous set stays active.
func (e *Engine) ReloadRules(configs []*domain.AdvisoryRule) error {
	newRules := make(map[string]*CompiledRule)

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// Evaluate runs every loaded rule against a recommendation in parallel.
// Results are ordered by rule id.
func (e *Engine) Evaluate(ctx context.Context, rec *domain.Recommendation) []domain.AdvisoryResult {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	sort.Slice(rules, func(i, j int) bool {
		return rules[i].Config.ID < rules[j].Config.ID
	})

	activation := Activation(rec)

	results := make([]domain.AdvisoryResult, len(rules))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = e.evaluateRule(ctx, r, activation)
		}(i, rule)
	}

	wg.Wait()

	return results
}

// Warnings returns the messages of triggered results, in order.
func Warnings(results []domain.AdvisoryResult) []string {
	var warnings []string
	for _, r := range results {
		if r.Triggered && r.Message != "" {
			warnings = append(warnings, r.Message)
		}
	}
	return warnings
}

func (e *Engine) evaluateRule(ctx context.Context, rule *CompiledRule, activation map[string]any) domain.AdvisoryResult {
	start := time.Now()

	result := domain.AdvisoryResult{
		RuleID: rule.Config.ID,
	}

	out, _, err := rule.Program.ContextEval(ctx, activation)
	if err != nil {
		result.Error = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	if triggered, ok := out.(types.Bool); ok && bool(triggered) {
		result.Triggered = true
		result.Message = rule.Config.Message
	}
	result.ProcessMs = time.Since(start).Milliseconds()

	return result
}

// Activation builds the CEL variables for a recommendation. Card variables
// describe the top choice and are zero when there is none.
func Activation(rec *domain.Recommendation) map[string]any {
	in := rec.Input
	activation := map[string]any{
		"amount":               in.Amount,
		"category":             in.Category,
		"merchant":             in.Merchant,
		"merchant_app":         in.MerchantApp,
		"location":             in.Location,
		"gps_unavailable":      in.GPSUnavailable,
		"using_other_app":      in.UsingOtherApp,
		"platform":             in.Platform,
		"prioritize_mandatory": rec.PrioritizeMandatory,
		"warnings_count":       int64(len(rec.Warnings)),
		"has_top_choice":       rec.TopChoice != nil,
		"has_fallback":         rec.Fallback != nil,
		"score":                0.0,
		"fallback_score":       0.0,

		"card_id":                     "",
		"card_name":                   "",
		"card_network":                "",
		"card_rate":                   0.0,
		"card_utilization":            0.0,
		"card_limit":                  0.0,
		"mandatory_transactions_left": int64(0),
		"statement_due_in_days":       int64(0),
		"apr_sensitive":               false,
		"foreign_tx_fee":              false,
		"requires_tap_to_pay":         false,
		"supported_wallets":           []string{},
	}

	if rec.Fallback != nil {
		activation["fallback_score"] = rec.Fallback.Score
	}

	if top := rec.TopChoice; top != nil && top.Card != nil {
		card := top.Card
		wallets := card.SupportedWallets
		if wallets == nil {
			wallets = []string{}
		}

		activation["score"] = top.Score
		activation["card_id"] = card.ID
		activation["card_name"] = card.Name
		activation["card_network"] = card.Network
		activation["card_rate"] = top.Metadata.Rate
		activation["card_utilization"] = card.Utilization
		activation["card_limit"] = card.Limit
		activation["mandatory_transactions_left"] = int64(card.MandatoryTransactionsLeft)
		activation["statement_due_in_days"] = int64(card.StatementDueInDays)
		activation["apr_sensitive"] = card.APRSensitive
		activation["foreign_tx_fee"] = card.ForeignTxFee
		activation["requires_tap_to_pay"] = card.RequiresTapToPay
		activation["supported_wallets"] = wallets
	}

	return activation
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the currently loaded rule configurations ordered by id.
func (e *Engine) GetLoadedRules() []*domain.AdvisoryRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.AdvisoryRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].ID < rules[j].ID
	})
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.AdvisoryRule) (*CompiledRule, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("%w: advisory rule id is required", domain.ErrInvalidInput)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: failed to compile rule %s: %v", domain.ErrInvalidInput, cfg.ID, issues.Err())
	}

	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%w: rule %s: expression must return bool, got %s", domain.ErrInvalidInput, cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast, cel.InterruptCheckFrequency(100))
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
