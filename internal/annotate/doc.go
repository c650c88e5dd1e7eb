// Package annotate provides the annotate capabilities a pipeline worker runs
// on each frame.
//
// HTTPAnnotator sends every frame to a pose-estimation service and draws the
// returned skeletons onto a copy of the image. Synthetic produces
// deterministic poses with scripted per-index delays and failures, which is
// what simulations, scenarios and tests run against.
//
// Annotators are not safe for concurrent use. A pipeline creates one per
// worker through a Factory.
package annotate
