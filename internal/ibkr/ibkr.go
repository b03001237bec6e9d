package ibkr

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/apperrors"
)

// Client defines the interface for fetching activity statements from
// Interactive Brokers. This interface enables dependency injection and
// testing with mock implementations.
type Client interface {
	RequestFlexReport(ctx context.Context, token string, queryID int) (FlexQueryResponse, []byte, error)
}

// FinanceClient provides methods for fetching activity statements from the
// Interactive Brokers Flex Web Service. It wraps an HTTP client and handles
// the two-step request/retrieve protocol, including polling while the
// statement is still being generated.
type FinanceClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewFinanceClient creates a new IBKR client with default HTTP settings.
//
// Returns:
//   - *FinanceClient: A new client instance ready for use
func NewFinanceClient() *FinanceClient {
	return &FinanceClient{
		httpClient: &http.Client{},
		baseURL:    "https://ndcdyn.interactivebrokers.com/AccountManagement/FlexWebService",
	}
}

// NewFinanceClientWithBaseURL creates a client pointed at an alternate
// endpoint. Used by tests to target a local mock server.
func NewFinanceClientWithBaseURL(baseURL string) *FinanceClient {
	c := NewFinanceClient()
	c.baseURL = baseURL
	return c
}

// RequestFlexReport runs the full Flex protocol: submit the query, then poll
// the statement endpoint until the report is generated. Returns the parsed
// statement along with the raw XML for archival.
func (c *FinanceClient) RequestFlexReport(ctx context.Context, token string, queryID int) (FlexQueryResponse, []byte, error) {
	if token == "" || queryID == 0 {
		return FlexQueryResponse{}, nil, fmt.Errorf("flex token and query id are required")
	}

	request, err := c.submitFlexRequest(ctx, token, queryID)
	if err != nil {
		return FlexQueryResponse{}, nil, err
	}

	report, data, err := c.retrieveFlexReport(ctx, token, request)
	if err != nil {
		return FlexQueryResponse{}, nil, err
	}

	return report, data, nil
}

func (c *FinanceClient) submitFlexRequest(ctx context.Context, token string, queryID int) (FlexRequestResponse, error) {
	queryURL := fmt.Sprintf("%s/SendRequest?t=%s&q=%d&v=3", c.baseURL, url.PathEscape(token), queryID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return FlexRequestResponse{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return FlexRequestResponse{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return FlexRequestResponse{}, err
	}

	var response FlexRequestResponse
	if err := xml.Unmarshal(data, &response); err != nil {
		return FlexRequestResponse{}, err
	}

	if response.ErrorCode != nil && response.ErrorMessage != nil {
		return response, fmt.Errorf("ibkr error %d: %s", *response.ErrorCode, *response.ErrorMessage)
	}

	return response, nil
}

// retrieveFlexReport polls the statement endpoint with exponential backoff.
// Error codes 1018, 1019 and 1021 mean the report is still being generated
// and are retried; any other error code is terminal.
func (c *FinanceClient) retrieveFlexReport(ctx context.Context, token string, request FlexRequestResponse) (FlexQueryResponse, []byte, error) {
	if request.Status == "fail" {
		return FlexQueryResponse{}, nil, fmt.Errorf("failed request submitted")
	}

	queryURL := fmt.Sprintf("%s?t=%s&q=%d&v=3", request.URL, token, request.ReferenceCode)

	var response FlexQueryResponse
	var data []byte

	backoff := retry.WithMaxRetries(9, retry.WithCappedDuration(30*time.Second, retry.NewExponential(2*time.Second)))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
		if err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		data, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return err
		}

		response = FlexQueryResponse{}
		if err := xml.Unmarshal(data, &response); err == nil && response.XMLName.Local == "FlexQueryResponse" {
			return nil
		}

		var errResponse FlexRequestResponse
		if err := xml.Unmarshal(data, &errResponse); err != nil {
			return err
		}

		if errResponse.ErrorCode != nil {
			code := *errResponse.ErrorCode
			if code == 1018 || code == 1019 || code == 1021 {
				return retry.RetryableError(fmt.Errorf("ibkr error %d: %w", code, apperrors.ErrReportNotReady))
			}
			return fmt.Errorf("ibkr error %d: %s", code, *errResponse.ErrorMessage)
		}

		return fmt.Errorf("unrecognized flex response")
	})
	if err != nil {
		return FlexQueryResponse{}, nil, err
	}

	response.ImportedAt = time.Now().UTC()
	response.QueryID = request.ReferenceCode
	return response, data, nil
}
