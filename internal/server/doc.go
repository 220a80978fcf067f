// Package server exposes photo-vault's operator HTTP surface: Prometheus
// metrics, health probes, and JSON views of the running pass and the
// registry totals.
package server
