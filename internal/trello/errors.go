package trello

import (
	"errors"
	"fmt"
	"net/url"
)

// ProviderError is every failure the adapter returns, network-level or
// HTTP.  Status is 0 when no response arrived.  Body is the provider's
// response verbatim.
type ProviderError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Status == 0 && e.Err != nil:
		return fmt.Sprintf("trello %s: %v", e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("trello %s: status %d: %v", e.Op, e.Status, e.Err)
	case e.Body != "":
		return fmt.Sprintf("trello %s: status %d: %s", e.Op, e.Status, e.Body)
	default:
		return fmt.Sprintf("trello %s: status %d", e.Op, e.Status)
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }

// StatusOf returns the HTTP status carried by err, or 0 when err is not a
// ProviderError or no response arrived.
func StatusOf(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Status
	}
	return 0
}

// redact strips the credential query parameters from a *url.Error so the
// key and token never reach logs or the ledger.
func redact(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	u, perr := url.Parse(ue.URL)
	if perr != nil {
		ue.URL = "[redacted]"
		return err
	}
	q := u.Query()
	for _, k := range []string{"key", "token"} {
		if q.Has(k) {
			q.Set(k, "REDACTED")
		}
	}
	u.RawQuery = q.Encode()
	ue.URL = u.String()
	return err
}
