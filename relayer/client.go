// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package relayer

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/luxfi/cctp/service"
)

// DefaultRequestTimeout bounds one request to the attestation service.
const DefaultRequestTimeout = 10 * time.Second

var _ AttestationProvider = (*Client)(nil)

// Client fetches attestations from a remote attestation service over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the attestation service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultRequestTimeout},
	}
}

// Attestation implements AttestationProvider via POST /v2/attest.
func (c *Client) Attestation(ctx context.Context, raw []byte) ([]byte, []byte, error) {
	reqBody, err := json.Marshal(service.AttestRequest{
		Message: hex.EncodeToString(raw),
	})
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/v2/attest",
		bytes.NewReader(reqBody),
	)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("attestation service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("attestation service: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("attestation service: status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var attested service.AttestationResponse
	if err := json.Unmarshal(body, &attested); err != nil {
		return nil, nil, fmt.Errorf("attestation service: %w", err)
	}

	message, err := hex.DecodeString(attested.Message)
	if err != nil {
		return nil, nil, fmt.Errorf("attested message hex: %w", err)
	}
	attestation, err := hex.DecodeString(attested.Attestation)
	if err != nil {
		return nil, nil, fmt.Errorf("attestation hex: %w", err)
	}
	return message, attestation, nil
}

var _ AttestationProvider = (*ServiceProvider)(nil)

// ServiceProvider attests against an in-process attestation service, for
// deployments that run the relayer and the service in one binary.
type ServiceProvider struct {
	service *service.Service
}

// NewServiceProvider wraps svc as an AttestationProvider.
func NewServiceProvider(svc *service.Service) *ServiceProvider {
	return &ServiceProvider{service: svc}
}

// Attestation implements AttestationProvider by calling the service directly.
func (p *ServiceProvider) Attestation(ctx context.Context, raw []byte) ([]byte, []byte, error) {
	record, err := p.service.Attest(ctx, raw)
	if err != nil {
		return nil, nil, err
	}
	return record.Message, record.Attestation, nil
}
