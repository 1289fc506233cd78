package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mlourenco/refbox/internal/fault"
	"go.uber.org/zap"
)

var yearRegexp = regexp.MustCompile(`\b(\d{4})\b`)

// PubMedClient fetches canonical article metadata from NCBI E-utilities.
type PubMedClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewPubMedClient creates a client against the given E-utilities base URL.
func NewPubMedClient(baseURL string, timeout time.Duration, logger *zap.Logger) *PubMedClient {
	return &PubMedClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type esummaryResponse struct {
	Result map[string]json.RawMessage `json:"result"`
}

type esummaryRecord struct {
	Title           string `json:"title"`
	FullJournalName string `json:"fulljournalname"`
	PubDate         string `json:"pubdate"`
	ArticleIDs      []struct {
		IDType string `json:"idtype"`
		Value  string `json:"value"`
	} `json:"articleids"`
	Error string `json:"error"`
}

// FetchPMID returns the record for a PubMed id. Any transport error, bad
// status or unknown id is a fetch_failure; there is no partial result.
func (c *PubMedClient) FetchPMID(ctx context.Context, pmid string) (*Reference, error) {
	u := fmt.Sprintf("%s/esummary.fcgi?db=pubmed&retmode=json&id=%s", c.baseURL, url.QueryEscape(pmid))
	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}

	var resp esummaryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fault.Wrap(fault.FetchFailure, err, "decode esummary for pmid %s", pmid)
	}
	raw, ok := resp.Result[pmid]
	if !ok {
		return nil, fault.New(fault.FetchFailure, "pmid %s not present in esummary result", pmid)
	}
	var rec esummaryRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fault.Wrap(fault.FetchFailure, err, "decode esummary record for pmid %s", pmid)
	}
	if rec.Error != "" {
		return nil, fault.New(fault.FetchFailure, "pmid %s: %s", pmid, rec.Error)
	}
	if rec.Title == "" {
		return nil, fault.New(fault.FetchFailure, "pmid %s: empty title in esummary", pmid)
	}

	ref := &Reference{
		Title:   rec.Title,
		Journal: rec.FullJournalName,
		Year:    parseYear(rec.PubDate),
		PMID:    pmid,
	}
	for _, id := range rec.ArticleIDs {
		if id.IDType == "doi" {
			ref.DOI = strings.ToLower(id.Value)
		}
	}

	// The abstract lives behind efetch; losing it is not a fetch failure.
	if abstract, err := c.fetchAbstract(ctx, pmid); err != nil {
		c.logger.Warn("abstract fetch failed", zap.String("pmid", pmid), zap.Error(err))
	} else {
		ref.Abstract = abstract
	}

	return ref, nil
}

func (c *PubMedClient) fetchAbstract(ctx context.Context, pmid string) (string, error) {
	u := fmt.Sprintf("%s/efetch.fcgi?db=pubmed&rettype=abstract&retmode=text&id=%s", c.baseURL, url.QueryEscape(pmid))
	body, err := c.get(ctx, u)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func (c *PubMedClient) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fault.Wrap(fault.FetchFailure, err, "build pubmed request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.FetchFailure, err, "pubmed request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fault.New(fault.FetchFailure, "pubmed returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Wrap(fault.FetchFailure, err, "read pubmed response")
	}
	return body, nil
}

// parseYear extracts the first 4-digit year from a pubdate like "2020 Jan 15".
func parseYear(pubdate string) int {
	m := yearRegexp.FindString(pubdate)
	if m == "" {
		return 0
	}
	y, _ := strconv.Atoi(m)
	return y
}
