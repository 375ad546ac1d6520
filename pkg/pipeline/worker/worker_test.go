package worker_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/shpitdev/conference-icp-scout/pkg/pipeline/core"
	"github.com/shpitdev/conference-icp-scout/pkg/pipeline/worker"
)

func fastOpts(maxRetries int, policy worker.FailurePolicy) worker.Options {
	return worker.Options{
		MaxRetries:        maxRetries,
		FailurePolicy:     policy,
		RequestTimeout:    1 * time.Second,
		BackoffInitial:    1 * time.Millisecond,
		BackoffMax:        2 * time.Millisecond,
		BackoffJitterFrac: 0,
	}
}

func TestProcessAll_RetriesTransient(t *testing.T) {
	t.Parallel()

	calls := 0
	fn := func(_ context.Context, _ string) (string, error) {
		calls++
		if calls <= 2 {
			return "", &core.TransientError{Err: errors.New("try again")}
		}
		return "ok", nil
	}

	out, err := worker.ProcessAll(context.Background(), []string{"Acme Corp"}, core.ProcessFunc[string, string](fn), fastOpts(3, worker.FailurePolicyPartialOutput))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 output, got %d", len(out))
	}
	if out[0].Err != nil || out[0].Output != "ok" {
		t.Fatalf("unexpected output: %#v", out[0])
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestProcessAll_DoesNotRetryPermanent(t *testing.T) {
	t.Parallel()

	calls := 0
	fn := func(_ context.Context, _ string) (string, error) {
		calls++
		return "", errors.New("permanent")
	}

	out, err := worker.ProcessAll(context.Background(), []string{"Acme Corp"}, core.ProcessFunc[string, string](fn), fastOpts(10, worker.FailurePolicyPartialOutput))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 output, got %d", len(out))
	}
	if out[0].Err == nil || out[0].Err.Error() != "permanent" {
		t.Fatalf("unexpected output: %#v", out[0])
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestProcessAll_RespectsPerErrorRetryCap(t *testing.T) {
	t.Parallel()

	calls := 0
	fn := func(_ context.Context, _ string) (string, error) {
		calls++
		return "", &core.LimitedTransientError{
			Err:          errors.New("cancelled"),
			ExtraRetries: 1,
		}
	}

	out, err := worker.ProcessAll(context.Background(), []string{"Acme Corp"}, core.ProcessFunc[string, string](fn), fastOpts(10, worker.FailurePolicyPartialOutput))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].Err == nil {
		t.Fatalf("expected error output, got %#v", out)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls (1 initial + 1 retry), got %d", calls)
	}
}

func TestProcessAll_FailFastStops(t *testing.T) {
	t.Parallel()

	calls := 0
	fn := func(_ context.Context, name string) (string, error) {
		calls++
		if name == "bad" {
			return "", errors.New("boom")
		}
		t.Fatalf("unexpected call for %q", name)
		return "", nil
	}

	out, err := worker.ProcessAll(context.Background(), []string{"bad", "good"}, core.ProcessFunc[string, string](fn), fastOpts(0, worker.FailurePolicyFailFast))
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom error, got %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil output on fail-fast, got %#v", out)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestProcessAll_PartialOutputContinues(t *testing.T) {
	t.Parallel()

	fn := func(_ context.Context, name string) (string, error) {
		if name == "bad" {
			return "", errors.New("boom")
		}
		return "ok", nil
	}

	out, err := worker.ProcessAll(context.Background(), []string{"bad", "good"}, core.ProcessFunc[string, string](fn), fastOpts(0, worker.FailurePolicyPartialOutput))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(out))
	}
	if out[0].Err == nil || out[0].Err.Error() != "boom" {
		t.Fatalf("unexpected out[0]: %#v", out[0])
	}
	if out[1].Err != nil || out[1].Output != "ok" {
		t.Fatalf("unexpected out[1]: %#v", out[1])
	}
}

func TestProcessAllWithCallback_RunsInInputOrder(t *testing.T) {
	t.Parallel()

	var calls []string
	var seen []string
	fn := func(_ context.Context, name string) (string, error) {
		calls = append(calls, name)
		if name == "slow" {
			time.Sleep(5 * time.Millisecond)
		}
		return name, nil
	}

	out, err := worker.ProcessAllWithCallback(
		context.Background(),
		[]string{"slow", "fast", "last"},
		core.ProcessFunc[string, string](fn),
		func(res worker.Result[string, string]) error {
			// The previous item must be finished before the next one starts.
			if len(calls) != len(seen)+1 {
				t.Errorf("callback for %q saw %d calls, want %d", res.Input, len(calls), len(seen)+1)
			}
			seen = append(seen, res.Input)
			return nil
		},
		fastOpts(0, worker.FailurePolicyPartialOutput),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"slow", "fast", "last"}
	if !slices.Equal(seen, want) {
		t.Fatalf("unexpected callback order: %v", seen)
	}
	for i, res := range out {
		if res.Input != want[i] || res.Output != want[i] {
			t.Fatalf("out[%d]=%#v", i, res)
		}
	}
}

func TestProcessAllWithCallback_CallbackErrorStopsRun(t *testing.T) {
	t.Parallel()

	callbackErr := errors.New("callback failed")
	calls := 0
	_, err := worker.ProcessAllWithCallback(
		context.Background(),
		[]string{"a", "b"},
		core.ProcessFunc[string, string](func(_ context.Context, name string) (string, error) {
			calls++
			return name, nil
		}),
		func(worker.Result[string, string]) error {
			return callbackErr
		},
		fastOpts(0, worker.FailurePolicyPartialOutput),
	)
	if !errors.Is(err, callbackErr) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected run to stop after first item, got %d calls", calls)
	}
}

func TestProcessAll_RequestTimeoutIsTransient(t *testing.T) {
	t.Parallel()

	calls := 0
	fn := func(ctx context.Context, _ string) (string, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "ok", nil
	}

	opts := fastOpts(1, worker.FailurePolicyPartialOutput)
	opts.RequestTimeout = 5 * time.Millisecond
	out, err := worker.ProcessAll(context.Background(), []string{"x"}, core.ProcessFunc[string, string](fn), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].Err != nil || out[0].Output != "ok" || calls != 2 {
		t.Fatalf("expected retry after deadline, got %#v after %d calls", out[0], calls)
	}
}

func TestProcessAll_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := worker.ProcessAll(ctx, []string{"x"}, core.ProcessFunc[string, string](func(context.Context, string) (string, error) {
		t.Fatal("processor must not run")
		return "", nil
	}), fastOpts(0, worker.FailurePolicyPartialOutput))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// upper is a stateful Processor; it counts the items it has seen.
type upper struct {
	seen int
}

func (u *upper) Process(_ context.Context, in string) (string, error) {
	u.seen++
	return strings.ToUpper(in), nil
}

func TestProcessAll_AcceptsProcessor(t *testing.T) {
	t.Parallel()

	p := &upper{}
	out, err := worker.ProcessAll[string, string](context.Background(), []string{"acme", "globex"}, p, fastOpts(0, worker.FailurePolicyFailFast))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 || out[0].Output != "ACME" || out[1].Output != "GLOBEX" {
		t.Fatalf("unexpected output: %#v", out)
	}
	if p.seen != 2 {
		t.Fatalf("expected 2 items seen, got %d", p.seen)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want bool
	}{
		{name: "nil", in: nil, want: false},
		{name: "plain", in: errors.New("x"), want: false},
		{name: "transient", in: &core.TransientError{Err: errors.New("x")}, want: true},
		{name: "limited", in: &core.LimitedTransientError{Err: errors.New("x")}, want: true},
		{name: "deadline", in: context.DeadlineExceeded, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := worker.IsTransient(tt.in); got != tt.want {
				t.Fatalf("IsTransient(%v)=%v want=%v", tt.in, got, tt.want)
			}
		})
	}
}
