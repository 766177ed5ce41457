package embed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	synerrors "github.com/casheiro/synapstor-go/internal/errors"
)

// transportError classifies a failed HTTP round trip. Timeouts and
// connection failures are retryable; a caller-initiated cancellation is
// passed through untouched.
func transportError(service string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	code := synerrors.ErrCodeTransportUnavailable
	var netErr net.Error
	if (errors.As(err, &netErr) && netErr.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
		code = synerrors.ErrCodeTransportTimeout
	}
	return synerrors.New(code, fmt.Sprintf("%s request failed", service), err)
}

// protocolError reports an unexpected HTTP status, carrying a body excerpt
// for the run report. Status-level failures are not retried: the server
// answered, it just refused.
func protocolError(service string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return synerrors.New(synerrors.ErrCodeTransportProtocol,
		fmt.Sprintf("%s returned status %d", service, resp.StatusCode), nil).
		WithDetail("body", strings.TrimSpace(string(body)))
}
