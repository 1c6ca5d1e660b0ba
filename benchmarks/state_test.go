package benchmarks

import (
	"context"
	"testing"

	"github.com/randalmurphal/eventflow/pkg/eventflow/scope"
	"github.com/randalmurphal/eventflow/pkg/eventflow/state"
)

func newController(b *testing.B) *state.Controller[int, state.Base[int], struct{}] {
	b.Helper()
	s := scope.New("Bench")
	b.Cleanup(s.Cancel)
	ctrl, err := state.New[int](s, struct{}{}, state.Base[int]{Key: 0}, state.Base[int]{Key: 1})
	if err != nil {
		b.Fatal(err)
	}
	if err := ctrl.Init(context.Background()); err != nil {
		b.Fatal(err)
	}
	return ctrl
}

// BenchmarkTransition_NoCallbacks measures a bare transition.
func BenchmarkTransition_NoCallbacks(b *testing.B) {
	ctrl := newController(b)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ctrl.Transition(ctx, i%2)
	}
}

// BenchmarkTransition_Interceptors_5 runs five interceptors per transition.
func BenchmarkTransition_Interceptors_5(b *testing.B) {
	ctrl := newController(b)
	for range 5 {
		ctrl.Intercept(state.BeforeUpdate, func(context.Context, struct{}) bool { return false })
	}
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ctrl.Transition(ctx, i%2)
	}
}

// BenchmarkTransition_Vetoed measures a transition stopped by an interceptor.
func BenchmarkTransition_Vetoed(b *testing.B) {
	ctrl := newController(b)
	ctrl.Intercept(state.BeforeUpdate, func(context.Context, struct{}) bool { return true })
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ctrl.Transition(ctx, 1)
	}
}
