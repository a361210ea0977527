package adaptor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"

	"genstudio/internal/domain"
)

// ClassifyTransport maps a transport-level error onto the domain taxonomy.
// Only a provider that cannot be reached at all (name resolution, dial,
// refused or unroutable connections) is ErrProviderUnreachable. Deadlines
// become ErrAdaptorTimeout; a connection that fails after it was open is a
// provider failure of that one call.
func ClassifyTransport(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrProviderUnreachable) || errors.Is(err, domain.ErrAdaptorTimeout) ||
		errors.Is(err, domain.ErrProviderFailure) || errors.Is(err, domain.ErrAdaptorUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrAdaptorTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrAdaptorTimeout, err)
	}
	if unreachable(err) {
		return fmt.Errorf("%w: %v", domain.ErrProviderUnreachable, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
}

func unreachable(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// ClassifyStatus maps a non-2xx provider response onto the domain taxonomy.
func ClassifyStatus(provider string, status int, body string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s rejected credentials (%d): %s", domain.ErrAdaptorUnavailable, provider, status, body)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s status %d: %s", domain.ErrAdaptorTimeout, provider, status, body)
	default:
		return fmt.Errorf("%w: %s status %d: %s", domain.ErrProviderFailure, provider, status, body)
	}
}
