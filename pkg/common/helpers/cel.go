package helpers

import (
	"context"
	"fmt"
	"math"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"
	celconfig "k8s.io/apiserver/pkg/apis/cel"
	"k8s.io/klog/v2"

	ocmcelcommon "open-cluster-management.io/sdk-go/pkg/cel/common"
	ocmcellibrary "open-cluster-management.io/sdk-go/pkg/cel/library"
)

// RuntimeCostBudget is the total cost all expressions evaluated against one object may use.
var RuntimeCostBudget = int64(celconfig.RuntimeCELCostBudget)

// NewClusterEnv creates a CEL environment exposing the managedCluster variable.
// Placement scores are not available outside of the hub controllers.
func NewClusterEnv() (*cel.Env, error) {
	envOpts := append([]cel.EnvOption{
		ocmcellibrary.ManagedClusterLib(nil),
		ocmcellibrary.JsonLib(),
	}, ocmcelcommon.BaseEnvOpts...)
	return cel.NewEnv(envOpts...)
}

// CompileExpressions compiles every expression into a program with cost tracking enabled.
func CompileExpressions(env *cel.Env, expressions []string) ([]cel.Program, error) {
	programs := make([]cel.Program, 0, len(expressions))
	for _, expr := range expressions {
		ast, issues := env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("compilation of %q failed: %w", expr, issues.Err())
		}
		if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
			return nil, fmt.Errorf("expression %q must evaluate to bool, got %v", expr, out)
		}
		prg, err := env.Program(ast,
			cel.CostLimit(celconfig.PerCallLimit),
			cel.CostTracking(&ocmcellibrary.CostEstimator{}),
			cel.InterruptCheckFrequency(celconfig.CheckFrequency),
		)
		if err != nil {
			return nil, fmt.Errorf("instantiation of %q failed: %w", expr, err)
		}
		programs = append(programs, prg)
	}
	return programs, nil
}

// EvaluateSingleExpression evaluates one CEL expression and handles its cost accounting.
// Returns (evalResult, newBudget) if evaluation succeeds, otherwise (nil, -1 or remaining budget).
func EvaluateSingleExpression(
	ctx context.Context,
	program cel.Program,
	budget int64,
	expression string,
	input any,
) (ref.Val, int64) {
	logger := klog.FromContext(ctx)

	evalResult, evalDetails, err := program.ContextEval(ctx, input)

	ok, rtCost := CostCalculation(ctx, evalDetails, budget, expression)
	if !ok {
		return nil, -1
	}

	remainingBudget := budget - rtCost
	if err != nil {
		logger.Info("Expression evaluation failed", "rule", expression, "err", err)
		return nil, remainingBudget
	}

	return evalResult, remainingBudget
}

// CostCalculation processes the cost details of an evaluation
func CostCalculation(ctx context.Context, evalDetails *cel.EvalDetails, budget int64, expression string) (bool, int64) {
	logger := klog.FromContext(ctx)

	if evalDetails == nil {
		logger.Info("Runtime cost calculation failed: no evaluation details",
			"rule", expression)
		return false, -1
	}

	rtCost := evalDetails.ActualCost()
	if rtCost == nil {
		logger.Info("Runtime cost calculation failed: no cost information",
			"rule", expression)
		return false, -1
	}

	if *rtCost > math.MaxInt64 || int64(*rtCost) > budget {
		logger.Info("Cost budget exceeded",
			"rule", expression,
			"cost", *rtCost,
			"budget", budget)
		return false, -1
	}

	return true, int64(*rtCost) //nolint:gosec
}
