// Package engine implements the frame-parallel annotation pipeline.
//
// The pipeline takes a sequential stream of frames, annotates them on a fixed
// pool of workers, and writes the results to a sink in the exact order the
// frames arrived, even though workers finish out of order.
//
// ARCHITECTURE:
//
// Stages (one goroutine each, except the worker pool):
//
//	FrameSource -> distributor -> {worker 0 .. worker N-1} -> Reassembler -> FrameSink
//
// 1. The distributor reads the source, stamps each frame with a zero-based
// index from the Sequencer and routes it to a bounded input queue.
// 2. Each worker owns one Annotator. It dequeues a frame, annotates it and
// sends a SequencedResult on the shared result channel. A failed annotation
// produces a placeholder result for the same index, never a gap.
// 3. The Reassembler is the single consumer of the result channel. It emits
// the next expected index immediately, buffers anything ahead of it, and
// cascades through the buffer whenever the gap closes.
// 4. Pipeline owns the lifecycle: it starts every stage under one errgroup,
// moves through Idle -> Running -> Draining -> Completed | Failed, and closes
// the sink once the reassembler has returned.
//
// ROUTING:
//
// RoutingRoundRobin sends frame i to worker i mod N and, by default, limits the
// number of dispatched but not yet emitted frames to N through the reorder
// window. The pending buffer therefore never holds more than N-1 results.
// RoutingShared lets any idle worker take the next frame from one queue; the
// reorder window is unbounded unless configured.
//
// TERMINATION:
//
// End of stream is an explicit signal: the distributor records the total and
// closes every input queue. A worker exits only when its queue reports
// "drained" (closed and empty, checked under one lock). Poll timeouts exist
// only so waiting workers re-check cancellation; they never mean "done".
package engine
