package customer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

const defaultTimeout = 5 * time.Second

// Details is the contact view of a customer returned by the directory.
type Details struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	KYCStatus string `json:"kycStatus"`
	CreatedAt string `json:"createdAt"`
}

// Directory resolves customer ids to contact details.
type Directory interface {
	Lookup(ctx context.Context, customerID int64) (*Details, error)
}

// Client calls the customer service over HTTP.
type Client struct {
	client  *resty.Client
	baseURL string
}

func NewClient(baseURL string) (*Client, error) {
	client := resty.New()
	client.SetTimeout(defaultTimeout)
	return NewClientWithResty(baseURL, client)
}

func NewClientWithResty(baseURL string, client *resty.Client) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("customer service url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid customer service url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	return &Client{client: client, baseURL: trimmed}, nil
}

func (c *Client) Lookup(ctx context.Context, customerID int64) (*Details, error) {
	if customerID <= 0 {
		return nil, fmt.Errorf("%w: invalid customer id %d", domain.ErrValidation, customerID)
	}

	var details Details
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetResult(&details).
		Get(c.baseURL + "/api/customers/" + strconv.FormatInt(customerID, 10))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("customer lookup failed: %w", err)
	}

	switch status := resp.StatusCode(); {
	case status == http.StatusNotFound:
		return nil, fmt.Errorf("%w: customer %d", domain.ErrNotFound, customerID)
	case status < http.StatusOK || status >= http.StatusMultipleChoices:
		return nil, fmt.Errorf("customer lookup returned status %d", status)
	}

	if strings.TrimSpace(details.Email) == "" {
		return nil, fmt.Errorf("%w: customer %d has no email", domain.ErrValidation, customerID)
	}
	return &details, nil
}
