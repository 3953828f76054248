// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ferry Contributors

package transform

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ferrybridge/ferry/pkg/errutil"
)

// Direction constants for conversion metrics.
const (
	DirectionToResource = "to_resource"
	DirectionToRecord   = "to_record"
)

// StatusSuccess labels conversions that completed. Failed conversions are
// labeled with the lowercased error code.
const StatusSuccess = "success"

// Conversions is the counter for record/resource conversions.
// Use RegisterMetrics to register this with a Prometheus registry.
var Conversions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ferry_conversions_total",
		Help: "Total number of record/resource conversions",
	},
	[]string{"direction", "status"},
)

// ConversionDuration is the histogram for conversion duration.
// Use RegisterMetrics to register this with a Prometheus registry.
var ConversionDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "ferry_conversion_duration_seconds",
		Help:    "Record/resource conversion duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"direction"},
)

// RegisterMetrics registers transform package metrics with the given
// Prometheus registry. This must be called at startup to make metrics
// available on /metrics. Panics if registration fails (following
// prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Conversions)
	reg.MustRegister(ConversionDuration)
}

// observeConversion records one conversion attempt.
func observeConversion(direction string, start time.Time, err error) {
	Conversions.WithLabelValues(direction, conversionStatus(err)).Inc()
	ConversionDuration.WithLabelValues(direction).Observe(time.Since(start).Seconds())
}

// conversionStatus maps an error to its metric status label.
func conversionStatus(err error) string {
	if err == nil {
		return StatusSuccess
	}
	if code := errutil.CodeOf(err); code != "" {
		return strings.ToLower(code)
	}
	return "error"
}
