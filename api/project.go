package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/text/unicode/norm"

	mgErrors "github.com/mgost/mgost/errors"
)

// Me returns information about the account the token belongs to. A
// rejected token surfaces as RemoteRequestError.
func (c *Client) Me(ctx context.Context) (*TokenInfo, error) {
	var info TokenInfo
	if err := c.getJSON(ctx, "/me", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Trust returns the account's trust score.
func (c *Client) Trust(ctx context.Context) (int, error) {
	var payload struct {
		Trust int `json:"trust"`
	}
	if err := c.getJSON(ctx, "/trust", nil, &payload); err != nil {
		return 0, err
	}
	return payload.Trust, nil
}

// DownloadExample fetches one of the service's starter documents.
// typ selects the flavor, "md" or "docx".
func (c *Client) DownloadExample(ctx context.Context, name, typ string) ([]byte, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("type", typ)
	body, _, err := c.do(ctx, http.MethodGet, "/mgost/examples", q)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Projects lists the projects the account owns.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := c.getJSON(ctx, "/mgost/project", nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// CreateProject registers a new project and returns its id.
func (c *Client) CreateProject(ctx context.Context, name string) (int64, error) {
	q := url.Values{}
	q.Set("project_name", name)
	body, _, err := c.do(ctx, http.MethodPut, "/mgost/project", q)
	if err != nil {
		return 0, err
	}
	var payload struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("decode create response: %w", err)
	}
	c.InvalidateCache()
	return payload.ID, nil
}

// Project returns the project's details including the path to its
// main document and the remote file listing.
func (c *Client) Project(ctx context.Context, projectID int64) (*ProjectDetails, error) {
	var details ProjectDetails
	err := c.getJSON(ctx, "/mgost/project/"+strconv.FormatInt(projectID, 10), nil, &details)
	if err != nil {
		return nil, err
	}
	return &details, nil
}

// IsProjectAvailable reports whether the project exists and the token
// may access it. A service-side rejection means "not available";
// transport failures are returned so callers can tell the two apart.
func (c *Client) IsProjectAvailable(ctx context.Context, projectID int64) (bool, error) {
	_, status, err := c.do(ctx, http.MethodGet, "/mgost/project/"+strconv.FormatInt(projectID, 10), nil)
	if err != nil {
		if mgErrors.IsRemote(err) {
			return false, nil
		}
		return false, err
	}
	return status == http.StatusOK, nil
}

// ProjectFiles returns the remote listing keyed by project-relative
// path. Paths are NFC-normalized so they compare cleanly against
// local directory walks.
func (c *Client) ProjectFiles(ctx context.Context, projectID int64) (map[string]RemoteFile, error) {
	var files []RemoteFile
	err := c.getJSON(ctx, "/mgost/project/"+strconv.FormatInt(projectID, 10)+"/files", nil, &files)
	if err != nil {
		return nil, err
	}
	out := make(map[string]RemoteFile, len(files))
	for _, f := range files {
		out[norm.NFC.String(f.Path)] = f
	}
	return out, nil
}

// Requirements returns the set of paths the service needs to render
// the project, keyed by project-relative path.
func (c *Client) Requirements(ctx context.Context, projectID int64) (map[string]Requirement, error) {
	var reqs map[string]Requirement
	err := c.getJSON(ctx, "/mgost/project/"+strconv.FormatInt(projectID, 10)+"/requirements", nil, &reqs)
	if err != nil {
		return nil, err
	}
	return reqs, nil
}

// Render asks the service to build the project's output documents.
func (c *Client) Render(ctx context.Context, projectID int64) (*BuildResult, error) {
	var result BuildResult
	err := c.getJSON(ctx, "/mgost/project/"+strconv.FormatInt(projectID, 10)+"/render", nil, &result)
	if err != nil {
		return nil, err
	}
	c.InvalidateCache()
	return &result, nil
}
