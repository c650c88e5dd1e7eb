// Package sink persists annotated frames in the order the pipeline emits
// them.
//
// Archive is the on-disk output: a tar stream, compressed with zstd (or gzip
// for .tar.gz paths), holding one PNG per frame and a manifest.json written
// on Close. Memory keeps results in memory for dry runs and tests.
package sink
