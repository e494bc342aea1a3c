// Package ln abstracts over the lightning payment backend.  The service only
// needs two capabilities from it: issue an invoice for an amount of sats and
// report whether a given invoice has been paid.  The production backend is a
// phoenixd node reached over its local REST api; a loopback mock backend is
// available for development, selected at process start via configuration.
package ln

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/boltbox/boltbox/libs/clients"
)

// InvoiceStatus is the paid/unpaid disposition of an invoice
type InvoiceStatus int

const (
	// InvoiceStatusUnpaid - the invoice has not settled
	InvoiceStatusUnpaid InvoiceStatus = iota
	// InvoiceStatusPaid - the invoice has settled
	InvoiceStatusPaid
)

// String implements fmt.Stringer for logging
func (s InvoiceStatus) String() string {
	if s == InvoiceStatusPaid {
		return "paid"
	}
	return "unpaid"
}

// Invoice is a payment request issued by the backend
type Invoice struct {
	Amount      int64  `json:"amount"`
	Bolt11      string `json:"bolt11"`
	PaymentHash string `json:"payment_hash"`
}

// Client abstracts over the underlying lightning backend
type Client interface {
	// CreateInvoice issues an invoice for the given amount in sats
	CreateInvoice(ctx context.Context, amountSat int64) (*Invoice, error)
	// InvoiceStatus reports the settlement status for the given payment hash
	InvoiceStatus(ctx context.Context, paymentHash string) (InvoiceStatus, error)
}

// HTTPClient wraps http.Client for interacting with a phoenixd node
type HTTPClient struct {
	client   *clients.SimpleHTTPClient
	password string
}

// NewPhoenixd returns a Client talking to a phoenixd node at serverURL,
// authenticating with the node's http password
func NewPhoenixd(serverURL, password string) (Client, error) {
	if len(serverURL) == 0 {
		return nil, errors.New("phoenixd server url was empty")
	}
	client, err := clients.NewInstrumented("phoenixd", serverURL, "")
	if err != nil {
		return nil, err
	}
	return &HTTPClient{client: client, password: password}, nil
}

type createInvoiceResponse struct {
	AmountSat   int64  `json:"amountSat"`
	PaymentHash string `json:"paymentHash"`
	Serialized  string `json:"serialized"`
}

type incomingPaymentResponse struct {
	PaymentHash string `json:"paymentHash"`
	IsPaid      bool   `json:"isPaid"`
	ReceivedSat int64  `json:"receivedSat"`
}

// CreateInvoice issues a bolt11 invoice for amountSat through phoenixd
func (c *HTTPClient) CreateInvoice(ctx context.Context, amountSat int64) (*Invoice, error) {
	// phoenixd takes form encoded bodies, so the request is built by hand and
	// only the response decoding goes through the shared client
	form := url.Values{}
	form.Set("amountSat", strconv.FormatInt(amountSat, 10))
	form.Set("description", "locker lease")

	resolved := c.client.BaseURL.ResolveReference(&url.URL{Path: "createinvoice"})
	req, err := http.NewRequest(http.MethodPost, resolved.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, clients.NewHTTPError(err, resolved.String(), clients.ErrMalformedRequest, http.StatusBadRequest, nil)
	}
	req.Header.Set("content-type", "application/x-www-form-urlencoded")
	req.Header.Set("accept", "application/json")
	req.SetBasicAuth("", c.password)

	var resp createInvoiceResponse
	if _, err := c.client.Do(ctx, req, &resp); err != nil {
		return nil, err
	}

	return &Invoice{
		Amount:      resp.AmountSat,
		Bolt11:      resp.Serialized,
		PaymentHash: resp.PaymentHash,
	}, nil
}

// InvoiceStatus reports whether the invoice behind paymentHash has settled
func (c *HTTPClient) InvoiceStatus(ctx context.Context, paymentHash string) (InvoiceStatus, error) {
	req, err := c.client.NewRequest(ctx, http.MethodGet, "payments/incoming/"+paymentHash, nil, nil)
	if err != nil {
		return InvoiceStatusUnpaid, err
	}
	req.SetBasicAuth("", c.password)

	var resp incomingPaymentResponse
	if _, err := c.client.Do(ctx, req, &resp); err != nil {
		return InvoiceStatusUnpaid, err
	}

	if resp.IsPaid {
		return InvoiceStatusPaid, nil
	}
	return InvoiceStatusUnpaid, nil
}
