package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mlourenco/refbox/internal/fault"
	"go.uber.org/zap"
)

// CrossrefClient fetches work metadata from the Crossref REST API.
type CrossrefClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewCrossrefClient creates a client against the given Crossref base URL.
func NewCrossrefClient(baseURL string, timeout time.Duration, logger *zap.Logger) *CrossrefClient {
	return &CrossrefClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type crossrefResponse struct {
	Message struct {
		Title          []string `json:"title"`
		ContainerTitle []string `json:"container-title"`
		DOI            string   `json:"DOI"`
		Abstract       string   `json:"abstract"`
		Issued         struct {
			DateParts [][]int `json:"date-parts"`
		} `json:"issued"`
	} `json:"message"`
}

// FetchDOI returns the work for a DOI, (nil, nil) when Crossref does not
// know it, and a fetch_failure for transport or server errors.
func (c *CrossrefClient) FetchDOI(ctx context.Context, doi string) (*Reference, error) {
	u := fmt.Sprintf("%s/works/%s", c.baseURL, url.PathEscape(doi))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fault.Wrap(fault.FetchFailure, err, "build crossref request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.FetchFailure, err, "crossref request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		c.logger.Info("doi not found on crossref", zap.String("doi", doi))
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fault.New(fault.FetchFailure, "crossref returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Wrap(fault.FetchFailure, err, "read crossref response")
	}
	var cr crossrefResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, fault.Wrap(fault.FetchFailure, err, "decode crossref response for %s", doi)
	}

	ref := &Reference{
		DOI:      strings.ToLower(cr.Message.DOI),
		Abstract: cr.Message.Abstract,
	}
	if ref.DOI == "" {
		ref.DOI = strings.ToLower(doi)
	}
	if len(cr.Message.Title) > 0 {
		ref.Title = cr.Message.Title[0]
	}
	if len(cr.Message.ContainerTitle) > 0 {
		ref.Journal = cr.Message.ContainerTitle[0]
	}
	if parts := cr.Message.Issued.DateParts; len(parts) > 0 && len(parts[0]) > 0 {
		ref.Year = parts[0][0]
	}
	return ref, nil
}
