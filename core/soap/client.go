package soap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/navidrome/upnp/log"
)

const requestContentType = `text/xml; charset="utf-8"`

// Client issues SOAP action calls against a remote service's control
// URL. The zero value is not usable; use NewClient.
type Client struct {
	http *http.Client
}

// NewClient returns a SOAP client with the given timeout (zero means no
// timeout; callers usually apply their own via context).
func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

// Call invokes action on the service behind controlURL and returns the
// out arguments in document order. A structured fault comes back as
// *UPnPError.
func (c *Client) Call(ctx context.Context, controlURL, serviceURN, action string, in []Arg) ([]Arg, error) {
	body := BuildRequest(serviceURN, action, in)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, controlURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building SOAP request: %w", err)
	}
	req.Header.Set("Content-Type", requestContentType)
	req.Header.Set("SOAPACTION", SOAPAction(serviceURN, action))

	log.Debug(ctx, "Calling remote action", "url", controlURL, "action", action, "args", len(in))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s#%s: %w", serviceURN, action, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading SOAP response: %w", err)
	}

	// Both 200 and 500 can carry a valid envelope (SOAP 1.1 leaves the
	// server the choice); anything else is a transport failure.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusInternalServerError {
		return nil, fmt.Errorf("unexpected status %d calling %s", resp.StatusCode, controlURL)
	}

	return ParseResponse(respBody, action)
}
