package backend

import (
	"context"
	"net/http"
	"net/url"
)

// ScrapeRequest represents the request body for POST /scraper/start. The
// documents list is whatever the page collector found; the backend
// downloads them with the given cookies.
type ScrapeRequest struct {
	URL        string              `json:"url"`
	ModuleCode string              `json:"module_code"`
	ModuleName string              `json:"module_name"`
	Cookies    map[string]string   `json:"cookies"`
	Documents  []map[string]string `json:"documents,omitempty"`
	HasFolders bool                `json:"has_folders,omitempty"`
}

// ScrapeTask is the status of a scraping task
type ScrapeTask struct {
	TaskID          string   `json:"task_id"`
	URL             string   `json:"url,omitempty"`
	ModuleCode      string   `json:"module_code,omitempty"`
	ModuleName      string   `json:"module_name,omitempty"`
	StartTime       string   `json:"start_time,omitempty"`
	ElapsedTime     float64  `json:"elapsed_time,omitempty"`
	Status          string   `json:"status"`
	Progress        float64  `json:"progress,omitempty"`
	FilesFound      int      `json:"files_found,omitempty"`
	FilesDownloaded int      `json:"files_downloaded,omitempty"`
	Errors          []string `json:"errors,omitempty"`
	TotalFiles      int      `json:"total_files,omitempty"`
	CompletedFiles  int      `json:"completed_files,omitempty"`
}

// StartScrape asks the backend to download a course page's documents and
// returns the task id.
func (c *Client) StartScrape(ctx context.Context, req ScrapeRequest) (string, error) {
	var resp struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, "bloom.scraper.start", http.MethodPost, "/scraper/start", req, &resp); err != nil {
		return "", err
	}
	return resp.TaskID, nil
}

// ScrapeStatus returns the state of one task.
func (c *Client) ScrapeStatus(ctx context.Context, taskID string) (*ScrapeTask, error) {
	var resp ScrapeTask
	if err := c.doJSON(ctx, "bloom.scraper.status", http.MethodGet, "/scraper/status/"+url.PathEscape(taskID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ScrapeTasks lists every task the backend knows about.
func (c *Client) ScrapeTasks(ctx context.Context) ([]ScrapeTask, error) {
	var resp struct {
		Tasks []ScrapeTask `json:"tasks"`
	}
	if err := c.doJSON(ctx, "bloom.scraper.tasks", http.MethodGet, "/scraper/tasks", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}
