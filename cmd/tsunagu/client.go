package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hyperjump/tsunagu/internal/models"
)

// apiClient talks to a running tsunagu server, which avoids opening the store from two processes.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{base: strings.TrimRight(base, "/"), http: http.DefaultClient}
}

func (c *apiClient) workspaceURL(ws string, parts ...string) string {
	u := c.base + "/api/v1/workspaces/" + url.PathEscape(ws)
	for _, p := range parts {
		u += "/" + p
	}
	return u
}

func (c *apiClient) do(method, target string, out interface{}) error {
	req, err := http.NewRequest(method, target, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) TriggerAnalysis(ws string, mode models.RunMode) (*models.RunSummary, error) {
	var summary models.RunSummary
	target := c.workspaceURL(ws, "analysis") + "?mode=" + url.QueryEscape(string(mode))
	if err := c.do(http.MethodPost, target, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (c *apiClient) GetGraph(ws string) (*models.GraphView, error) {
	var view models.GraphView
	if err := c.do(http.MethodGet, c.workspaceURL(ws, "graph"), &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *apiClient) GetRelated(ws, noteID string, k int) ([]models.RelatedNote, error) {
	var out struct {
		Related []models.RelatedNote `json:"related"`
	}
	target := c.workspaceURL(ws, "notes", url.PathEscape(noteID), "related") + "?k=" + strconv.Itoa(k)
	if err := c.do(http.MethodGet, target, &out); err != nil {
		return nil, err
	}
	return out.Related, nil
}

func (c *apiClient) Search(ws, query string, k int) ([]models.SearchResult, error) {
	var out struct {
		Results []models.SearchResult `json:"results"`
	}
	target := c.workspaceURL(ws, "search") + "?q=" + url.QueryEscape(query) + "&k=" + strconv.Itoa(k)
	if err := c.do(http.MethodGet, target, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}
