// Package fingerprint computes the content hash used as the registry's
// deduplication key.
//
// Files are streamed through SHA-256 in 8 KiB chunks, so memory use does
// not depend on file size (multi-gigabyte RAW/DNG files included). A read
// failure always returns an error and an empty digest; callers treat that
// as "skip this file", never as a record with an empty fingerprint.
package fingerprint
