// Package source opens the frame streams a pipeline reads from.
//
// Two kinds of identifier are understood:
//
//	/path/to/frames                     a directory of PNG or JPEG images, read in name order
//	synthetic://N?width=W&height=H&fps=F generated frames, paced to F frames per second
//
// A directory is claimed with a lock file for the lifetime of the source, so
// two pipelines cannot read the same capture at once.
package source
