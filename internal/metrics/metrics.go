// Package metrics exposes the node's internal counters and gauges. It is
// deliberately not a /metrics HTTP endpoint: operational telemetry serving
// is an external collaborator for this module (see SPEC_FULL.md §1). What's
// here exists so the components below can record what happened without
// reaching for fmt.Println, and so an embedder can wire a real scrape
// endpoint on top of the default VictoriaMetrics registry if it wants one.
package metrics

import "github.com/VictoriaMetrics/metrics"

var (
	syncSuccessTotal = metrics.NewCounter(`creatornode_sync_success_total`)
	syncFailureTotal = metrics.NewCounter(`creatornode_sync_failure_total`)

	probeLatencySeconds = metrics.NewHistogram(`creatornode_probe_latency_seconds`)

	unhealthySecondaries = metrics.NewCounter(`creatornode_snapback_unhealthy_secondaries_total`)
	reconfigsProposed    = metrics.NewCounter(`creatornode_snapback_reconfigs_proposed_total`)

	skippedFilesRecovered = metrics.NewCounter(`creatornode_skipped_files_recovered_total`)
)

// RecordSyncOutcome increments the success or failure counter for a
// completed sync job.
func RecordSyncOutcome(success bool) {
	if success {
		syncSuccessTotal.Inc()
	} else {
		syncFailureTotal.Inc()
	}
}

// ObserveProbeLatency records how long a secondary clock probe took, in
// seconds.
func ObserveProbeLatency(seconds float64) {
	probeLatencySeconds.Update(seconds)
}

// RecordUnhealthySecondary increments the unhealthy-secondary counter, once
// per probe failure that advances the health state machine.
func RecordUnhealthySecondary() {
	unhealthySecondaries.Inc()
}

// RecordReconfigProposed increments the replica-set-reconfiguration counter.
func RecordReconfigProposed() {
	reconfigsProposed.Inc()
}

// RecordSkippedFileRecovered increments the counter of files whose skipped
// flag was cleared by the retry loop.
func RecordSkippedFileRecovered() {
	skippedFilesRecovered.Inc()
}
