// Package vips provides a libvips-backed thumbnail.Deriver.
//
// libvips shrinks JPEGs during decode, so very large sources are processed
// with a fraction of the memory the pure-Go decoder needs. It requires the
// libvips shared library at build and run time and is only linked by the
// command, never by the core packages.
package vips
