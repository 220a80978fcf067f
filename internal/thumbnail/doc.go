// Package thumbnail derives bounded JPEG previews for registered images.
//
// A Deriver turns one source image into one artifact: decoded with EXIF
// auto-orientation, fit into a 300x300 box without upscaling, flattened
// onto white, and written atomically as a quality-85 JPEG. The Generator
// drives a Deriver over every registry row still missing a thumbnail and
// attaches the artifact path once it exists on disk.
//
// An artifact that is already on disk is never regenerated; it is simply
// attached. A source file that disappeared since the catalog run is skipped
// and its row left pending.
package thumbnail
