package executor

import (
	"context"

	"github.com/entrhq/pilot/pkg/workflow"
)

// ExecuteBatch runs wf once per row, strictly in order. The cancel flag and ctx are
// checked before each row; rows after a cancellation are never attempted.
// onRowComplete, when non-nil, is called after every row with its index.
func (e *Executor) ExecuteBatch(ctx context.Context, wf *workflow.Workflow, rows []workflow.Row, sink Sink, onRowComplete func(int, *ExecutionResult)) *BatchResult {
	batch := &BatchResult{Total: len(rows)}

	for i, row := range rows {
		if err := e.checkCancelled(ctx); err != nil {
			e.logger.Infof("batch %s: cancelled before row %d of %d", wf.Name, i+1, len(rows))
			batch.Cancelled = true
			break
		}

		result := e.Execute(ctx, wf, row, sink)
		batch.Results = append(batch.Results, result)
		if result.Success {
			batch.SuccessCount++
		} else {
			batch.FailureCount++
		}
		if onRowComplete != nil {
			onRowComplete(i, result)
		}
		if result.Status == StatusCancelled {
			batch.Cancelled = true
			break
		}
	}

	e.logger.Infof("batch %s: %d/%d succeeded, %d failed", wf.Name, batch.SuccessCount, batch.Total, batch.FailureCount)
	return batch
}
