// Package metrics defines Prometheus collectors for the media catalog.
//
// Collectors are registered with the default registry via promauto at init
// time; embedding applications expose them however they expose the rest of
// their metrics.
package metrics
