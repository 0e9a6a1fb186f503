package helpers

import (
	"context"
	"testing"
)

func TestCompileAndEvaluate(t *testing.T) {
	env, err := NewClusterEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cluster := map[string]interface{}{
		"metadata": map[string]interface{}{
			"name":   "cluster1",
			"labels": map[string]interface{}{"cloud": "Amazon", "env": "dev"},
		},
		"status": map[string]interface{}{
			"version": map[string]interface{}{"kubernetes": "v1.30.2"},
		},
	}

	cases := []struct {
		name          string
		expression    string
		expected      bool
		expectedError bool
	}{
		{
			name:       "label match",
			expression: `managedCluster.metadata.labels["cloud"] == "Amazon"`,
			expected:   true,
		},
		{
			name:       "label mismatch",
			expression: `managedCluster.metadata.labels["env"] == "prod"`,
		},
		{
			name:       "string library",
			expression: `managedCluster.status.version.kubernetes.startsWith("v1.30")`,
			expected:   true,
		},
		{
			name:          "syntax error",
			expression:    `managedCluster.metadata.labels[`,
			expectedError: true,
		},
		{
			name:          "not a boolean",
			expression:    `"abc"`,
			expectedError: true,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			programs, err := CompileExpressions(env, []string{c.expression})
			if c.expectedError {
				if err == nil {
					t.Errorf("expected compile error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			result, budget := EvaluateSingleExpression(context.TODO(), programs[0], RuntimeCostBudget, c.expression,
				map[string]interface{}{"managedCluster": cluster})
			if result == nil {
				t.Fatalf("expected a result")
			}
			if budget < 0 || budget > RuntimeCostBudget {
				t.Errorf("unexpected remaining budget %d", budget)
			}
			if actual, ok := result.Value().(bool); !ok || actual != c.expected {
				t.Errorf("expected %v, got %v", c.expected, result.Value())
			}
		})
	}
}
