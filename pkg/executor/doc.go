// Package executor runs workflows against one live page.
//
// A run moves through INIT, RUNNING and ends in SUCCESS, FAILED or CANCELLED:
//
//	 INIT ──► RUNNING ──┬──► SUCCESS    every selected step succeeded (or failed
//	                    │               with continue-on-error)
//	                    ├──► FAILED     a fatal step failure, a strict branch miss,
//	                    │               or a recovered panic
//	                    └──► CANCELLED  Cancel or context end, seen between steps
//
// Each step binds its value, resolves its locator and performs its action inside a
// bounded retry loop. Configuration errors are never retried. Progress is reported
// synchronously through a Sink; a run-done event always closes the stream.
//
// Fill steps carrying an Allocation go through the Allocator, which tries candidate
// identifiers until the page accepts one and only then commits the counter.
//
// Example:
//
//	exec := executor.New(session.Page(), def.LocatorSet(),
//	    executor.WithCounters(counter.NewFile("counters.json")),
//	    executor.WithLogger(logger),
//	)
//	result := exec.Execute(ctx, wf, workflow.Row{"SERIAL": "SN-1001"}, nil)
//	if !result.Success {
//	    log.Printf("run failed: %s", result.Message)
//	}
//
// An Executor drives one page and is not safe for concurrent runs. Cancel may be
// called from any goroutine.
package executor
