// Package progress lets a long-running computation report its progress to
// any number of observers without knowing whether anyone is watching.
//
// # Architecture
//
// The package pairs a producer with any number of consumers, similar to
// the handler/writer split of log/slog:
//
//   - Updater: owned by the work function, publishes snapshots
//   - Stream: one observer's lazy sequence of snapshots
//   - Task: the unit of work, its eventual result and the channel joining the two
//
// Publishing never blocks. Each Stream buffers a bounded number of
// snapshots and drops the oldest when its consumer lags, but the terminal
// snapshot (Completed or Cancelled) is always delivered and is always the
// last one.
//
// # Usage
//
//	task := progress.Track(100, func(ctx context.Context, u *progress.Updater) (int, error) {
//		for i := uint64(1); i <= 100; i++ {
//			if err := doStep(ctx, i); err != nil {
//				return 0, err
//			}
//			u.UpdateWithMessage(i, fmt.Sprintf("step %d", i))
//		}
//		return 42, nil
//	})
//
//	result, err := progress.Observe(ctx, task, func(u progress.Update) {
//		logger.Info("progress", "update", u)
//	})
//
// # Termination
//
// Every Stream ends with exactly one terminal update:
//
//   - Completed, with Current == Total, when the work returns a nil error
//     or reports Current >= Total
//   - Cancelled when the work calls Updater.Cancel, returns an error,
//     panics, or its context ends before it returns
//
// A Stream opened after the task finished yields just the terminal update.
//
// # Zero totals
//
// A task with Total == 0 is trivially complete: CompletedFraction returns
// 1.0 and Remaining returns 0.
package progress
