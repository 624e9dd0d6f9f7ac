package monitor

import (
	"context"
	"testing"
)

// batchFakeHandler is a BatchAware/BatchHandler double used to verify that
// handlers of the same concrete type share one BatchContext per cycle.
type batchFakeHandler struct {
	fakeHandler
	attached *BatchContext
}

func (h *batchFakeHandler) AsBatchHandler() (BatchHandler, bool) { return h, true }

func (h *batchFakeHandler) Batch(ctx *BatchContext) { h.attached = ctx }

func TestAttachBatches_GroupsByConcreteType(t *testing.T) {
	a := &batchFakeHandler{fakeHandler: fakeHandler{id: "a"}}
	b := &batchFakeHandler{fakeHandler: fakeHandler{id: "b"}}
	plain := &fakeHandler{id: "plain"}

	attachBatches(context.Background(), []TaskHandler{a, b, plain})

	if a.attached == nil || b.attached == nil {
		t.Fatal("expected both batch-aware handlers to receive a BatchContext")
	}
	if a.attached != b.attached {
		t.Fatal("expected handlers of the same concrete type to share one BatchContext")
	}
	if len(a.attached.Participants()) != 2 {
		t.Fatalf("participants = %d, want 2", len(a.attached.Participants()))
	}
}

// otherBatchHandler is a second concrete batch-aware type, distinct from
// batchFakeHandler, used to confirm batching groups by concrete type.
type otherBatchHandler struct {
	fakeHandler
	attached *BatchContext
}

func (h *otherBatchHandler) AsBatchHandler() (BatchHandler, bool) { return h, true }

func (h *otherBatchHandler) Batch(ctx *BatchContext) { h.attached = ctx }

func TestAttachBatches_DistinctTypesGetDistinctContexts(t *testing.T) {
	a := &batchFakeHandler{fakeHandler: fakeHandler{id: "a"}}
	c := &otherBatchHandler{fakeHandler: fakeHandler{id: "c"}}

	attachBatches(context.Background(), []TaskHandler{a, c})

	if a.attached == c.attached {
		t.Fatal("expected distinct concrete types to get distinct BatchContexts")
	}
}
