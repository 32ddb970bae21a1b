package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Result is one search hit in the merged result list.
type Result struct {
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Snippet   string  `json:"snippet"`
	Source    string  `json:"source"`
	Relevance float64 `json:"relevance_score"`
}

// Provider is one upstream search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, n int) ([]Result, error)
}

func getJSON(ctx context.Context, client *http.Client, u string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("search: %s returned %s", req.URL.Host, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// duckduckgo queries the free Instant Answer API. No key required.
type duckduckgo struct {
	client *http.Client
}

func (duckduckgo) Name() string { return "duckduckgo" }

func (d duckduckgo) Search(ctx context.Context, query string, n int) ([]Result, error) {
	q := url.Values{
		"q":             {query},
		"format":        {"json"},
		"no_html":       {"1"},
		"skip_disambig": {"1"},
	}
	var data struct {
		RelatedTopics []struct {
			Text     string `json:"Text"`
			FirstURL string `json:"FirstURL"`
		} `json:"RelatedTopics"`
	}
	if err := getJSON(ctx, d.client, "https://api.duckduckgo.com/?"+q.Encode(), nil, &data); err != nil {
		return nil, err
	}

	var results []Result
	for _, topic := range data.RelatedTopics {
		if topic.Text == "" || topic.FirstURL == "" {
			continue
		}
		title := topic.Text
		if len(title) > 100 {
			title = title[:100]
		}
		results = append(results, Result{
			Title:     title,
			URL:       topic.FirstURL,
			Snippet:   topic.Text,
			Source:    "duckduckgo",
			Relevance: 0.8,
		})
		if len(results) >= n {
			break
		}
	}
	return results, nil
}

// bing queries the Bing Web Search API. Requires a subscription key.
type bing struct {
	client *http.Client
	key    string
}

func (bing) Name() string { return "bing" }

func (b bing) Search(ctx context.Context, query string, n int) ([]Result, error) {
	q := url.Values{
		"q":     {query},
		"count": {strconv.Itoa(min(n, 50))},
		"mkt":   {"en-US"},
	}
	header := http.Header{"Ocp-Apim-Subscription-Key": {b.key}}
	var data struct {
		WebPages struct {
			Value []struct {
				Name    string `json:"name"`
				URL     string `json:"url"`
				Snippet string `json:"snippet"`
			} `json:"value"`
		} `json:"webPages"`
	}
	if err := getJSON(ctx, b.client, "https://api.bing.microsoft.com/v7.0/search?"+q.Encode(), header, &data); err != nil {
		return nil, err
	}

	var results []Result
	for _, item := range data.WebPages.Value {
		results = append(results, Result{
			Title:     item.Name,
			URL:       item.URL,
			Snippet:   item.Snippet,
			Source:    "bing",
			Relevance: 0.9,
		})
	}
	return results, nil
}

// serp queries SerpAPI's Google engine. Requires an API key.
type serp struct {
	client *http.Client
	key    string
}

func (serp) Name() string { return "serp" }

func (s serp) Search(ctx context.Context, query string, n int) ([]Result, error) {
	q := url.Values{
		"q":       {query},
		"api_key": {s.key},
		"engine":  {"google"},
		"num":     {strconv.Itoa(min(n, 100))},
	}
	var data struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
	}
	if err := getJSON(ctx, s.client, "https://serpapi.com/search?"+q.Encode(), nil, &data); err != nil {
		return nil, err
	}

	var results []Result
	for _, item := range data.OrganicResults {
		results = append(results, Result{
			Title:     item.Title,
			URL:       item.Link,
			Snippet:   item.Snippet,
			Source:    "google",
			Relevance: 0.95,
		})
	}
	return results, nil
}

// wikipedia queries the REST summary endpoint for encyclopedic answers.
type wikipedia struct {
	client *http.Client
}

func (wikipedia) Name() string { return "wikipedia" }

func (w wikipedia) Search(ctx context.Context, query string, _ int) ([]Result, error) {
	u := "https://en.wikipedia.org/api/rest_v1/page/summary/" + url.PathEscape(strings.ReplaceAll(query, " ", "_"))
	var data struct {
		Title       string `json:"title"`
		Extract     string `json:"extract"`
		ContentURLs struct {
			Desktop struct {
				Page string `json:"page"`
			} `json:"desktop"`
		} `json:"content_urls"`
	}
	if err := getJSON(ctx, w.client, u, nil, &data); err != nil {
		return nil, err
	}
	if data.Title == "" {
		return nil, nil
	}
	return []Result{{
		Title:     data.Title,
		URL:       data.ContentURLs.Desktop.Page,
		Snippet:   data.Extract,
		Source:    "wikipedia",
		Relevance: 1.0,
	}}, nil
}
