package verification

import (
	"context"
	"fmt"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/xkilldash9x/tandem/api/schemas"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func verdictJSON(actionSucceeded, taskCompleted bool, confidence float64) string {
	return fmt.Sprintf(`{"action_succeeded": %t, "task_completed": %t, "confidence": %v, "reason": "model says so"}`,
		actionSucceeded, taskCompleted, confidence)
}

func testOptions() Options {
	o := DefaultOptions()
	o.Tier2Timeout = time.Second
	o.Tier3Timeout = time.Second
	o.DOMExcerptChars = 200
	return o
}

// newRecorder returns a span recorder whose provider is shut down with t.
func newRecorder(t *testing.T) (*tracetest.SpanRecorder, Option) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return recorder, WithTracer(provider.Tracer("test"))
}

// lastStep is a finished SIMPLE navigation that Tier 1 cannot decide.
func lastStep(complexity schemas.TaskComplexity, actionType schemas.VerificationActionType) schemas.VerificationRequest {
	return schemas.VerificationRequest{
		Action:     "click(9)",
		ActionType: actionType,
		UserGoal:   "create an account",
		Complexity: complexity,
		IsLastStep: true,
	}
}
