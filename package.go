// Package await provides cooperative futures, tasks and composition
// operators over a single-threaded event loop. It is designed for
// coroutine-like scheduling where suspension, resumption and
// cancellation are explicit and deterministic.
//
// Key components:
//
//   - Future: A single-assignment result cell with an ordered list of
//     done callbacks. A Future is decided exactly once and its
//     callbacks are always scheduled on the loop, never invoked
//     inline.
//
//   - Coro: A resumable computation. The body suspends by awaiting
//     other awaitables and finishes by returning a value or an error.
//
//   - Task: The driver that advances one Coro step by step until it
//     finishes, fails or is cancelled. A Task is itself a Future and
//     can be awaited, composed and cancelled like one.
//
//   - Loop: The scheduling domain. It owns the ready queue, the timer
//     heap, the current-task registry and the thread-safe submission
//     channel. Each Loop is single-threaded; run independent loops on
//     independent goroutines for parallelism.
//
//   - Combinators: Gather, Wait, WaitFor, Shield and AsCompleted
//     compose futures and tasks using only the public Future
//     operations.
//
//   - Synchronization primitives: Lock, Event and Semaphore for
//     serializing cooperative tasks within one loop.
package await
