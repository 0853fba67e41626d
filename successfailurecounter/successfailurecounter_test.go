// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package successfailurecounter

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuccessFailureCounter(t *testing.T) {
	errDecode := errors.New("decode")

	tests := map[string]struct {
		run             func(sfc *SuccessFailureCounter)
		expectedSuccess uint64
		expectedFailure uint64
	}{
		"no report": {
			run:             func(*SuccessFailureCounter) {},
			expectedFailure: 1,
		},
		"success": {
			run:             func(sfc *SuccessFailureCounter) { sfc.ReportSuccess() },
			expectedSuccess: 1,
		},
		"failure": {
			run:             func(sfc *SuccessFailureCounter) { sfc.ReportFailure() },
			expectedFailure: 1,
		},
		"nil error": {
			run: func(sfc *SuccessFailureCounter) {
				assert.NoError(t, sfc.ReportError(nil))
			},
			expectedSuccess: 1,
		},
		"error": {
			run: func(sfc *SuccessFailureCounter) {
				assert.ErrorIs(t, sfc.ReportError(errDecode), errDecode)
			},
			expectedFailure: 1,
		},
		"reported twice": {
			run: func(sfc *SuccessFailureCounter) {
				sfc.ReportSuccess()
				sfc.ReportFailure()
			},
			expectedSuccess: 1,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var success, failure atomic.Uint64
			func() {
				sfc := New(&success, &failure)
				defer sfc.DefaultToFailure()
				test.run(&sfc)
			}()
			assert.Equal(t, test.expectedSuccess, success.Load())
			assert.Equal(t, test.expectedFailure, failure.Load())
		})
	}
}
