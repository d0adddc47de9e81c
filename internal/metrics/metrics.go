// Package metrics renders process counters and gauges in Prometheus text
// exposition format for the /metrics endpoint.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type instanceKey struct {
	instance string
}

type bindingKey struct {
	instance string
	service  string
}

type bindingStatusKey struct {
	instance string
	service  string
	status   string
}

// Metrics keeps in-memory counters/gauges exposed via /metrics. It is
// intentionally lightweight and does not depend on external telemetry libs.
type Metrics struct {
	mu sync.RWMutex

	createTotal       uint64
	createErrorsTotal uint64
	updateTotal       uint64
	updateErrorsTotal uint64
	deleteTotal       uint64
	deleteErrorsTotal uint64

	jobsPublishedTotal  map[string]uint64
	jobsReemittedTotal  uint64
	statusReportsTotal  uint64
	statusReportErrors  uint64
	instanceStatus      map[instanceKey]float64
	bindingStatus       map[bindingStatusKey]float64
	lastReportTimestamp map[bindingKey]float64
}

// New constructs an empty Metrics.
func New() *Metrics {
	return &Metrics{
		jobsPublishedTotal:  make(map[string]uint64),
		instanceStatus:      make(map[instanceKey]float64),
		bindingStatus:       make(map[bindingStatusKey]float64),
		lastReportTimestamp: make(map[bindingKey]float64),
	}
}

// RecordCreate records the outcome of a Create call.
func (m *Metrics) RecordCreate(failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createTotal++
	if failed {
		m.createErrorsTotal++
	}
}

// RecordUpdate records the outcome of an Update call.
func (m *Metrics) RecordUpdate(failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateTotal++
	if failed {
		m.updateErrorsTotal++
	}
}

// RecordDelete records the outcome of a Delete call.
func (m *Metrics) RecordDelete(failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteTotal++
	if failed {
		m.deleteErrorsTotal++
	}
}

// RecordJobPublished increments the published-job counter for the given
// job action ("create", "update", "delete").
func (m *Metrics) RecordJobPublished(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobsPublishedTotal[action]++
}

// RecordJobReemitted increments the watchdog re-emission counter.
func (m *Metrics) RecordJobReemitted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobsReemittedTotal++
}

// RecordStatusReport records an inbound agent status report.
func (m *Metrics) RecordStatusReport(instance, service string, failed bool, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusReportsTotal++
	if failed {
		m.statusReportErrors++
	}
	m.lastReportTimestamp[bindingKey{instance: instance, service: service}] = float64(t.UTC().Unix())
}

// SetInstanceSnapshot replaces the instance- and binding-status gauges in
// one shot, keyed by current roll-up status, so deleted instances and
// services stop reporting stale series.
func (m *Metrics) SetInstanceSnapshot(instanceStatuses map[string]string, bindingStatuses map[string]map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.instanceStatus = make(map[instanceKey]float64, len(instanceStatuses))
	for name := range instanceStatuses {
		m.instanceStatus[instanceKey{instance: name}] = 1
	}

	m.bindingStatus = make(map[bindingStatusKey]float64)
	for instance, services := range bindingStatuses {
		for service, status := range services {
			m.bindingStatus[bindingStatusKey{instance: instance, service: service, status: status}] = 1
		}
	}
}

// Render returns the current state in Prometheus text exposition format.
func (m *Metrics) Render() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var b strings.Builder

	writeHelpType(&b, "stackl_controlplane_create_total", "Total number of Create calls.", "counter")
	fmt.Fprintf(&b, "stackl_controlplane_create_total %d\n", m.createTotal)

	writeHelpType(&b, "stackl_controlplane_create_errors_total", "Total number of failed Create calls.", "counter")
	fmt.Fprintf(&b, "stackl_controlplane_create_errors_total %d\n", m.createErrorsTotal)

	writeHelpType(&b, "stackl_controlplane_update_total", "Total number of Update calls.", "counter")
	fmt.Fprintf(&b, "stackl_controlplane_update_total %d\n", m.updateTotal)

	writeHelpType(&b, "stackl_controlplane_update_errors_total", "Total number of failed Update calls.", "counter")
	fmt.Fprintf(&b, "stackl_controlplane_update_errors_total %d\n", m.updateErrorsTotal)

	writeHelpType(&b, "stackl_controlplane_delete_total", "Total number of Delete calls.", "counter")
	fmt.Fprintf(&b, "stackl_controlplane_delete_total %d\n", m.deleteTotal)

	writeHelpType(&b, "stackl_controlplane_delete_errors_total", "Total number of failed Delete calls.", "counter")
	fmt.Fprintf(&b, "stackl_controlplane_delete_errors_total %d\n", m.deleteErrorsTotal)

	writeHelpType(&b, "stackl_dispatcher_jobs_published_total", "Total jobs published, by action.", "counter")
	for _, action := range sortedMapStringKeys(m.jobsPublishedTotal) {
		fmt.Fprintf(&b, "stackl_dispatcher_jobs_published_total{action=%q} %d\n", action, m.jobsPublishedTotal[action])
	}

	writeHelpType(&b, "stackl_dispatcher_jobs_reemitted_total", "Total jobs re-emitted after the inactivity window elapsed.", "counter")
	fmt.Fprintf(&b, "stackl_dispatcher_jobs_reemitted_total %d\n", m.jobsReemittedTotal)

	writeHelpType(&b, "stackl_dispatcher_status_reports_total", "Total inbound agent status reports handled.", "counter")
	fmt.Fprintf(&b, "stackl_dispatcher_status_reports_total %d\n", m.statusReportsTotal)

	writeHelpType(&b, "stackl_dispatcher_status_report_errors_total", "Total inbound agent status reports that reported failure.", "counter")
	fmt.Fprintf(&b, "stackl_dispatcher_status_report_errors_total %d\n", m.statusReportErrors)

	writeHelpType(&b, "stackl_controlplane_instance_status", "Gauge of 1 for each currently known stack instance.", "gauge")
	for _, k := range sortedInstanceKeys(m.instanceStatus) {
		fmt.Fprintf(&b, "stackl_controlplane_instance_status{instance=%q} %.0f\n", k.instance, m.instanceStatus[k])
	}

	writeHelpType(&b, "stackl_controlplane_binding_status", "Gauge of 1 for each service binding's current roll-up status.", "gauge")
	for _, k := range sortedBindingStatusKeys(m.bindingStatus) {
		fmt.Fprintf(&b,
			"stackl_controlplane_binding_status{instance=%q,service=%q,status=%q} %.0f\n",
			k.instance, k.service, k.status, m.bindingStatus[k],
		)
	}

	writeHelpType(&b, "stackl_dispatcher_last_status_report_timestamp_seconds", "Unix timestamp of the last status report per service binding.", "gauge")
	for _, k := range sortedBindingKeys(m.lastReportTimestamp) {
		fmt.Fprintf(&b,
			"stackl_dispatcher_last_status_report_timestamp_seconds{instance=%q,service=%q} %.0f\n",
			k.instance, k.service, m.lastReportTimestamp[k],
		)
	}

	return b.String()
}

func writeHelpType(b *strings.Builder, metric, help, typ string) {
	fmt.Fprintf(b, "# HELP %s %s\n", metric, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", metric, typ)
}

func sortedMapStringKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedInstanceKeys(m map[instanceKey]float64) []instanceKey {
	keys := make([]instanceKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].instance < keys[j].instance })
	return keys
}

func sortedBindingKeys(m map[bindingKey]float64) []bindingKey {
	keys := make([]bindingKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].instance == keys[j].instance {
			return keys[i].service < keys[j].service
		}
		return keys[i].instance < keys[j].instance
	})
	return keys
}

func sortedBindingStatusKeys(m map[bindingStatusKey]float64) []bindingStatusKey {
	keys := make([]bindingStatusKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].instance != keys[j].instance {
			return keys[i].instance < keys[j].instance
		}
		if keys[i].service != keys[j].service {
			return keys[i].service < keys[j].service
		}
		return keys[i].status < keys[j].status
	})
	return keys
}
