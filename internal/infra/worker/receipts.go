package worker

import (
	"context"

	"finkargo-billing/internal/domain/model"
	"finkargo-billing/internal/domain/ports/adapter"
	"finkargo-billing/internal/infra/logging"
)

const receiptJob = "receipt_email"

var _ adapter.ReceiptSender = (*QueuedReceipts)(nil)

// QueuedReceipts moves receipt delivery off the request path.
type QueuedReceipts struct {
	pool *Pool
	next adapter.ReceiptSender
}

func NewQueuedReceipts(pool *Pool, next adapter.ReceiptSender) *QueuedReceipts {
	return &QueuedReceipts{pool: pool, next: next}
}

// SendReceipt copies p and s so later mutations by the caller do not race the task.
// The task runs on the pool context; only the trace id is carried over.
func (q *QueuedReceipts) SendReceipt(ctx context.Context, p *model.Payment, s *model.Subscription) error {
	pc := *p
	var sc *model.Subscription
	if s != nil {
		cp := *s
		sc = &cp
	}
	traceID := logging.TraceIDFrom(ctx)
	return q.pool.Submit(receiptJob, func(taskCtx context.Context) error {
		if traceID != "" {
			taskCtx = logging.WithTraceID(taskCtx, traceID)
		}
		taskCtx = logging.WithReference(taskCtx, pc.Reference)
		return q.next.SendReceipt(taskCtx, &pc, sc)
	})
}
