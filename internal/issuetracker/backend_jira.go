package issuetracker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// JiraBackend talks to Jira Cloud's REST API. Grounded on
// internal/jira/client.go's Client: basic-auth http.Client, same base URL
// and endpoint shapes, but narrowed to the two operations Client needs.
type JiraBackend struct {
	BaseURL    string
	Username   string
	APIToken   string
	HTTPClient *http.Client
	MaxRetries int
	RetryDelay time.Duration
}

// NewJiraBackend builds a JiraBackend with a 10s timeout and the default
// retry budget.
func NewJiraBackend(baseURL, username, apiToken string) *JiraBackend {
	return &JiraBackend{
		BaseURL:    baseURL,
		Username:   username,
		APIToken:   apiToken,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
	}
}

func (b *JiraBackend) do(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("issuetracker: build request: %w", err)
	}
	req.SetBasicAuth(b.Username, b.APIToken)
	req.Header.Set("Accept", "application/json")

	for attempt := 0; ; attempt++ {
		resp, err := b.HTTPClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("issuetracker: request failed: %w", err)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		apiErr := &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := time.ParseDuration(ra + "s"); err == nil {
				apiErr.RetryAfter = secs
			}
		}
		resp.Body.Close()

		retry, finalErr := ClassifyAndWait(apiErr, b.MaxRetries-attempt, b.RetryDelay)
		if !retry {
			return nil, finalErr
		}
	}
}

type jiraIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary string `json:"summary"`
		Status  struct {
			Name string `json:"name"`
		} `json:"status"`
		IssueLinks []struct {
			Type struct {
				Inward  string `json:"inward"`
				Outward string `json:"outward"`
			} `json:"type"`
			InwardIssue  *jiraLinkedIssue `json:"inwardIssue"`
			OutwardIssue *jiraLinkedIssue `json:"outwardIssue"`
		} `json:"issuelinks"`
		Subtasks []jiraLinkedIssue `json:"subtasks"`
	} `json:"fields"`
}

type jiraLinkedIssue struct {
	Key string `json:"key"`
}

func toRecord(ji jiraIssue) IssueRecord {
	rec := IssueRecord{ID: ji.Key, Identifier: ji.Key, Title: ji.Fields.Summary, Status: ji.Fields.Status.Name}
	for _, link := range ji.Fields.IssueLinks {
		if link.Type.Inward == "is blocked by" && link.InwardIssue != nil {
			rec.Relations.BlockedBy = append(rec.Relations.BlockedBy, link.InwardIssue.Key)
		}
		if link.Type.Outward == "blocks" && link.OutwardIssue != nil {
			rec.Relations.Blocks = append(rec.Relations.Blocks, link.OutwardIssue.Key)
		}
	}
	return rec
}

// FetchParentAndSubtasks fetches the parent issue and walks its
// "subtasks" field for children, matching Jira's native subtask model.
func (b *JiraBackend) FetchParentAndSubtasks(ctx context.Context, parentIdentifier string) (IssueRecord, []IssueRecord, error) {
	url := fmt.Sprintf("%s/rest/api/3/issue/%s?fields=summary,status,issuelinks,subtasks", b.BaseURL, parentIdentifier)
	resp, err := b.do(ctx, http.MethodGet, url)
	if err != nil {
		return IssueRecord{}, nil, err
	}
	defer resp.Body.Close()

	var ji jiraIssue
	if err := json.NewDecoder(resp.Body).Decode(&ji); err != nil {
		return IssueRecord{}, nil, fmt.Errorf("issuetracker: decode parent: %w", err)
	}
	parent := toRecord(ji)

	var subtasks []IssueRecord
	for _, st := range ji.Fields.Subtasks {
		rec, _, err := b.FetchParentAndSubtasks(ctx, st.Key)
		if err != nil {
			return IssueRecord{}, nil, err
		}
		subtasks = append(subtasks, rec)
	}
	return parent, subtasks, nil
}

// FetchStatus returns the current status name for a single issue.
func (b *JiraBackend) FetchStatus(ctx context.Context, identifier string) (string, error) {
	url := fmt.Sprintf("%s/rest/api/3/issue/%s?fields=status", b.BaseURL, identifier)
	resp, err := b.do(ctx, http.MethodGet, url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var ji jiraIssue
	if err := json.NewDecoder(resp.Body).Decode(&ji); err != nil {
		return "", fmt.Errorf("issuetracker: decode status: %w", err)
	}
	return ji.Fields.Status.Name, nil
}
