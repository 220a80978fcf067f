// Package watcher turns filesystem notifications under the search roots
// into debounced re-run triggers.
//
// Every directory under each root is watched, minus excluded names and
// paths. Image creations and writes are collected until the tree has been
// quiet for the debounce window, then handed to the handler as one
// deduplicated batch. The handler runs on the watcher goroutine, so runs
// never overlap; events arriving meanwhile are coalesced into the next
// batch.
package watcher
