package monitor

import (
	"context"
	"errors"
	"testing"
)

func TestDefaultFaultPolicy_NeverFaults(t *testing.T) {
	if f := DefaultFaultPolicy(context.Background(), "h1", errors.New("boom")); f != nil {
		t.Fatalf("DefaultFaultPolicy returned %+v, want nil", f)
	}
}

type faultyHandler struct {
	fakeHandler
	fault *Fault
}

func (h *faultyHandler) ResumeOrDie(ctx context.Context, err error) *Fault {
	return h.fault
}

func TestResumeOrDie_PrefersHandlerPolicy(t *testing.T) {
	want := &Fault{HandlerID: "h1", Err: errors.New("fatal")}
	h := &faultyHandler{fakeHandler: fakeHandler{id: "h1"}, fault: want}

	got := resumeOrDie(context.Background(), h, errors.New("boom"), DefaultFaultPolicy)
	if got != want {
		t.Fatalf("resumeOrDie = %+v, want the handler's own fault %+v", got, want)
	}
}

func TestResumeOrDie_FallsBackToMonitorPolicy(t *testing.T) {
	h := &fakeHandler{id: "h1"}
	called := false
	policy := func(ctx context.Context, id string, err error) *Fault {
		called = true
		if id != "h1" {
			t.Fatalf("policy called with id %q, want h1", id)
		}
		return &Fault{HandlerID: id, Err: err}
	}

	got := resumeOrDie(context.Background(), h, errors.New("boom"), policy)
	if !called {
		t.Fatal("expected the monitor's policy to be consulted")
	}
	if got == nil {
		t.Fatal("expected a non-nil fault from the custom policy")
	}
}
