// Package metrics exports mediator, channel, audit, lineage and policy
// counters to Prometheus. Values are read from the components on each scrape
// rather than mirrored into separate counters.
package metrics
