package cli

import (
	"errors"

	"toltec-dpdb/internal/domain"
)

// Process exit codes. Incomplete data gets its own code so schedulers can
// tell "try again later" apart from a failure.
const (
	exitOK         = 0
	exitFailure    = 1
	exitValidation = 2
	exitNotFound   = 3
	exitIntegrity  = 4
	exitIncomplete = 5
	exitTransport  = 6
	exitMisconfig  = 7
)

func exitCode(err error) int {
	var notFound *domain.NotFoundError
	var validation *domain.ValidationError
	var integrity *domain.IntegrityError
	var incomplete *domain.IncompleteDataError
	var transport *domain.TransportError
	var misconfig *domain.ConfigurationError

	switch {
	case errors.As(err, &incomplete):
		return exitIncomplete
	case errors.As(err, &transport):
		return exitTransport
	case errors.As(err, &notFound):
		return exitNotFound
	case errors.As(err, &validation):
		return exitValidation
	case errors.As(err, &integrity):
		return exitIntegrity
	case errors.As(err, &misconfig):
		return exitMisconfig
	default:
		return exitFailure
	}
}

func errorKind(code int) string {
	switch code {
	case exitValidation:
		return "validation"
	case exitNotFound:
		return "not_found"
	case exitIntegrity:
		return "integrity"
	case exitIncomplete:
		return "incomplete"
	case exitTransport:
		return "transport"
	case exitMisconfig:
		return "configuration"
	default:
		return "error"
	}
}

// errorObject is the json form of a failed command.
func errorObject(err error, code int) map[string]interface{} {
	obj := map[string]interface{}{
		"error":     err.Error(),
		"kind":      errorKind(code),
		"exit_code": code,
		"retryable": domain.IsRetryable(err),
	}
	var incomplete *domain.IncompleteDataError
	if errors.As(err, &incomplete) {
		obj["observation"] = incomplete.ObservationKey
		obj["part"] = incomplete.Part
	}
	return obj
}
