// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// successfailurecounter records the outcome of one operation into a pair of
// atomic counters, such as the decode counters of the debug info provider.
//
// A SuccessFailureCounter belongs to a single operation and must not be shared
// between goroutines. The counters it points to may be shared.
package successfailurecounter // import "go.opentelemetry.io/ilstack/successfailurecounter"

import (
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// SuccessFailureCounter increments either the success or the failure counter exactly once.
type SuccessFailureCounter struct {
	success, fail *atomic.Uint64
	sealed        bool
}

// New returns a SuccessFailureCounter that can be incremented exactly once.
func New(success, fail *atomic.Uint64) SuccessFailureCounter {
	return SuccessFailureCounter{success: success, fail: fail}
}

func (sfc *SuccessFailureCounter) seal() bool {
	if sfc.sealed {
		log.Errorf("Attempted to report success/failure status more than once.")
		return false
	}
	sfc.sealed = true
	return true
}

// ReportSuccess increments the success counter or logs an error otherwise.
func (sfc *SuccessFailureCounter) ReportSuccess() {
	if sfc.seal() {
		sfc.success.Add(1)
	}
}

// ReportFailure increments the failure counter or logs an error otherwise.
func (sfc *SuccessFailureCounter) ReportFailure() {
	if sfc.seal() {
		sfc.fail.Add(1)
	}
}

// ReportError counts a nil error as success and anything else as failure.
// The error is passed through.
func (sfc *SuccessFailureCounter) ReportError(err error) error {
	if err != nil {
		sfc.ReportFailure()
	} else {
		sfc.ReportSuccess()
	}
	return err
}

// DefaultToFailure increments the failure counter if no counter was updated before.
func (sfc *SuccessFailureCounter) DefaultToFailure() {
	if !sfc.sealed {
		sfc.fail.Add(1)
		sfc.sealed = true
	}
}
