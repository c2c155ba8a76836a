package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ctisec/ctihub/internal/fetch"
	"github.com/ctisec/ctihub/internal/intel"
)

// nvdTimeLayout is the ISO-8601 form the vulnerability database API
// expects for date range parameters.
const nvdTimeLayout = "2006-01-02T15:04:05.000Z07:00"

type nvdResponse struct {
	ResultsPerPage  int      `json:"resultsPerPage"`
	StartIndex      int      `json:"startIndex"`
	TotalResults    int      `json:"totalResults"`
	Vulnerabilities []nvdVul `json:"vulnerabilities"`
}

type nvdVul struct {
	CVE nvdCVE `json:"cve"`
}

type nvdCVE struct {
	ID           string       `json:"id"`
	Published    string       `json:"published"`
	LastModified string       `json:"lastModified"`
	Descriptions []nvdLangVal `json:"descriptions"`
	Metrics      nvdMetrics   `json:"metrics"`
	Weaknesses   []nvdWeak    `json:"weaknesses"`
	References   []nvdRef     `json:"references"`
}

type nvdLangVal struct {
	Lang  string `json:"lang"`
	Value string `json:"value"`
}

type nvdMetrics struct {
	CVSSV31 []nvdMetric `json:"cvssMetricV31"`
	CVSSV30 []nvdMetric `json:"cvssMetricV30"`
	CVSSV2  []nvdMetric `json:"cvssMetricV2"`
}

type nvdMetric struct {
	CVSSData            nvdCVSSData `json:"cvssData"`
	ExploitabilityScore float64     `json:"exploitabilityScore"`
	ImpactScore         float64     `json:"impactScore"`
}

type nvdCVSSData struct {
	Version      string  `json:"version"`
	VectorString string  `json:"vectorString"`
	BaseScore    float64 `json:"baseScore"`
	BaseSeverity string  `json:"baseSeverity"`
}

type nvdWeak struct {
	Description []nvdLangVal `json:"description"`
}

type nvdRef struct {
	URL string `json:"url"`
}

// VulnDBAdapter ingests recently published entries from the national
// vulnerability database.
type VulnDBAdapter struct {
	baseURL  string
	apiKey   string
	days     int
	maxItems int
	pageSize int
	client   *fetch.JSONClient
	clock    intel.Clock
	budget   Budget
	logger   *zap.Logger
}

// NewVulnDBAdapter builds the adapter.
func NewVulnDBAdapter(baseURL, apiKey string, days, maxItems, pageSize int, client *fetch.JSONClient, clock intel.Clock, budget Budget, logger *zap.Logger) *VulnDBAdapter {
	return &VulnDBAdapter{
		baseURL:  baseURL,
		apiKey:   apiKey,
		days:     days,
		maxItems: maxItems,
		pageSize: pageSize,
		client:   client,
		clock:    clock,
		budget:   budget,
		logger:   logger.Named("vulndb"),
	}
}

// Name returns the adapter name.
func (a *VulnDBAdapter) Name() string { return "vulndb" }

// Source returns the source this adapter feeds.
func (a *VulnDBAdapter) Source() intel.Source { return intel.SourceVulnDB }

// Fetch pages through entries published in the lookback window, stopping
// at maxItems.
func (a *VulnDBAdapter) Fetch(ctx context.Context) ([]intel.RawItem, error) {
	end := a.clock.Now()
	start := end.Add(-time.Duration(a.days) * 24 * time.Hour)

	var headers map[string]string
	if a.apiKey != "" {
		headers = map[string]string{"apiKey": a.apiKey}
	}

	var items []intel.RawItem
	for startIndex := 0; ; {
		u := a.pageURL(start, end, startIndex)
		var resp nvdResponse
		if err := a.client.GetJSON(ctx, u, headers, &resp); err != nil {
			return nil, fmt.Errorf("vulndb page at %d: %w", startIndex, err)
		}
		for _, v := range resp.Vulnerabilities {
			if v.CVE.ID == "" {
				continue
			}
			items = append(items, a.item(v.CVE))
			if a.maxItems > 0 && len(items) >= a.maxItems {
				a.logger.Info("vulndb fetched", zap.Int("entries", len(items)), zap.Bool("truncated", true))
				return items, nil
			}
		}
		startIndex += len(resp.Vulnerabilities)
		if startIndex >= resp.TotalResults || len(resp.Vulnerabilities) == 0 {
			break
		}
	}
	a.logger.Info("vulndb fetched", zap.Int("entries", len(items)))
	return items, nil
}

func (a *VulnDBAdapter) pageURL(start, end time.Time, startIndex int) string {
	q := url.Values{}
	q.Set("pubStartDate", start.UTC().Format(nvdTimeLayout))
	q.Set("pubEndDate", end.UTC().Format(nvdTimeLayout))
	q.Set("startIndex", strconv.Itoa(startIndex))
	if a.pageSize > 0 {
		q.Set("resultsPerPage", strconv.Itoa(a.pageSize))
	}
	return a.baseURL + "?" + q.Encode()
}

func (a *VulnDBAdapter) item(cve nvdCVE) intel.RawItem {
	desc := pickEnglish(cve.Descriptions)

	var weaknesses []string
	for _, w := range cve.Weaknesses {
		if v := pickEnglish(w.Description); v != "" {
			weaknesses = append(weaknesses, v)
		}
	}

	refs := make([]string, 0, len(cve.References))
	for _, r := range cve.References {
		if r.URL != "" {
			refs = append(refs, r.URL)
		}
	}

	return intel.RawItem{
		NaturalKey: cve.ID,
		Title:      cve.ID,
		URL:        "https://nvd.nist.gov/vuln/detail/" + cve.ID,
		Content:    a.budget.summarize(desc),
		Published:  parseDate([]string{"2006-01-02T15:04:05.000", time.RFC3339}, cve.Published),
		Severity:   pickCVSS(cve.Metrics),
		Weaknesses: weaknesses,
		References: refs,
		CVEs:       []string{cve.ID},
	}
}

// pickEnglish returns the English value, or the first one present.
func pickEnglish(vals []nvdLangVal) string {
	for _, v := range vals {
		if v.Lang == "en" {
			return v.Value
		}
	}
	if len(vals) > 0 {
		return vals[0].Value
	}
	return ""
}

// pickCVSS selects the severity metric by preference order v3.1, v3.0,
// then v2, nil when the entry carries none.
func pickCVSS(m nvdMetrics) *intel.CVSS {
	for _, group := range [][]nvdMetric{m.CVSSV31, m.CVSSV30, m.CVSSV2} {
		if len(group) == 0 {
			continue
		}
		metric := group[0]
		return &intel.CVSS{
			Version:             metric.CVSSData.Version,
			BaseScore:           metric.CVSSData.BaseScore,
			BaseSeverity:        metric.CVSSData.BaseSeverity,
			VectorString:        metric.CVSSData.VectorString,
			ExploitabilityScore: metric.ExploitabilityScore,
			ImpactScore:         metric.ImpactScore,
		}
	}
	return nil
}
