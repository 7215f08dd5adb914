package resilience

import (
	"errors"
	"net"
	"net/http"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

var (
	noRetryNoRecord = ErrorClassification{Retryable: false, RecordFailure: false}
	retryAndRecord  = ErrorClassification{Retryable: true, RecordFailure: true}
	failFast        = ErrorClassification{Retryable: false, RecordFailure: true}
)

// IsRetryableHTTPStatus reports the statuses worth another attempt.
func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

var retryableAWSCodes = map[string]struct{}{
	"ThrottlingException":                    {},
	"Throttling":                             {},
	"TooManyRequestsException":               {},
	"ProvisionedThroughputExceededException": {},
	"RequestLimitExceeded":                   {},
	"ServiceUnavailable":                     {},
	"ServiceUnavailableException":            {},
	"InternalServerException":                {},
	"InternalServerError":                    {},
	"InternalError":                          {},
	"ModelNotReadyException":                 {},
	"ModelTimeoutException":                  {},
	"SlowDown":                               {},
	"RequestTimeout":                         {},
}

// ClassifyAWSError maps AWS SDK failures onto retry and breaker decisions.
// Client faults such as validation or access errors are neither retried nor
// counted against the breaker.
func ClassifyAWSError(err error) ErrorClassification {
	if err == nil {
		return ErrorClassification{}
	}
	if IsContextError(err) {
		return noRetryNoRecord
	}
	if IsCircuitOpen(err) {
		return retryAndRecord
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := retryableAWSCodes[apiErr.ErrorCode()]; ok {
			return retryAndRecord
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return retryAndRecord
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		if IsRetryableHTTPStatus(respErr.HTTPStatusCode()) {
			return retryAndRecord
		}
		return noRetryNoRecord
	}
	if apiErr != nil {
		return noRetryNoRecord
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return retryAndRecord
	}
	return failFast
}

// ClassifyHTTPError handles plain HTTP clients that report non-2xx replies
// through an error exposing the status code.
func ClassifyHTTPError(err error) ErrorClassification {
	if err == nil {
		return ErrorClassification{}
	}
	if IsContextError(err) {
		return noRetryNoRecord
	}
	if IsCircuitOpen(err) {
		return retryAndRecord
	}

	var statusErr interface{ HTTPStatusCode() int }
	if errors.As(err, &statusErr) {
		if IsRetryableHTTPStatus(statusErr.HTTPStatusCode()) {
			return retryAndRecord
		}
		return noRetryNoRecord
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return retryAndRecord
	}
	return failFast
}

// ClassifySentinels retries errors matching one of retryable and ignores
// those matching benign. Anything else fails fast and counts as a failure.
func ClassifySentinels(err error, retryable, benign []error) ErrorClassification {
	if err == nil {
		return ErrorClassification{}
	}
	if IsContextError(err) {
		return noRetryNoRecord
	}
	if IsCircuitOpen(err) {
		return retryAndRecord
	}
	for _, target := range retryable {
		if errors.Is(err, target) {
			return retryAndRecord
		}
	}
	for _, target := range benign {
		if errors.Is(err, target) {
			return noRetryNoRecord
		}
	}
	return failFast
}
