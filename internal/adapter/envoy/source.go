package envoy

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/berfenger/meteremu/internal/core/domain"
	"github.com/berfenger/meteremu/internal/core/port"
	"go.uber.org/zap"
)

const (
	productionPath  = "/production.json?details=1"
	requestTimeout  = 10 * time.Second
	maxResponseSize = 4 << 20
)

var (
	ErrNoCredential = domain.ErrNoCredential
	ErrUnauthorized = errors.New("envoy: unauthorized")
)

// StatusError is returned for any non-2xx response other than 401.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("envoy: unexpected status %d", e.StatusCode)
}

// ProductionSource fetches and normalizes the gateway production document.
type ProductionSource struct {
	url    string
	phases int
	client *http.Client
	creds  port.CredentialSource
	now    func() time.Time
	logger *zap.Logger
}

func NewProductionSource(host string, phases int, verifySSL bool, creds port.CredentialSource, logger *zap.Logger) *ProductionSource {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		// gateways ship self-signed certificates
		InsecureSkipVerify: !verifySSL,
	}
	return &ProductionSource{
		url:    "https://" + host + productionPath,
		phases: phases,
		client: &http.Client{
			Transport: transport,
			Timeout:   requestTimeout,
		},
		creds:  creds,
		now:    time.Now,
		logger: logger,
	}
}

// Poll runs one fetch cycle. A 401 triggers exactly one credential refresh
// and one retry when a cloud identity is available.
func (s *ProductionSource) Poll(ctx context.Context) (*domain.MeterData, error) {
	token, ok := s.creds.Token()
	if !ok {
		return nil, ErrNoCredential
	}

	doc, err := s.fetch(ctx, token)
	if errors.Is(err, ErrUnauthorized) && s.creds.HasIdentity() {
		s.logger.Info("envoy: token rejected, refreshing")
		if rerr := s.creds.Refresh(ctx); rerr != nil {
			return nil, fmt.Errorf("%w: refresh failed: %w", ErrUnauthorized, rerr)
		}
		token, ok = s.creds.Token()
		if !ok {
			return nil, ErrNoCredential
		}
		doc, err = s.fetch(ctx, token)
	}
	if err != nil {
		return nil, err
	}

	data := ParseProductionResponse(doc, s.phases, s.logger, s.now())
	s.logger.Debug("envoy: poll ok", zap.Float64("total_act_power", data.TotalActPower))
	return data, nil
}

func (s *ProductionSource) fetch(ctx context.Context, token string) (*ProductionResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("envoy: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("envoy: read body: %w", err)
	}
	var doc ProductionResponse
	if err := json.Unmarshal(body, &doc); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return nil, fmt.Errorf("envoy: decode production: %w", err)
		}
		// well formed but unexpected shape
		doc = ProductionResponse{}
	}
	return &doc, nil
}

// Close releases idle upstream connections.
func (s *ProductionSource) Close() {
	s.client.CloseIdleConnections()
}

// ensure interface compliance
var _ port.MeterSource = (*ProductionSource)(nil)
