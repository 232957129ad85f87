package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"time"

	mgErrors "github.com/mgost/mgost/errors"
	"github.com/mgost/mgost/fileutils"
	"github.com/mgost/mgost/logging"
)

// Upload sends the local file at the project-relative path to the
// cloud. With overwrite the remote copy is replaced; without it the
// file is registered as new. The local modification time travels with
// the upload so both sides agree on it afterwards.
func (c *Client) Upload(ctx context.Context, projectID int64, relPath string, overwrite bool) error {
	log := logging.Sub("api")

	local := c.localPath(relPath)
	fi, err := os.Lstat(local)
	if err != nil || !fi.Mode().IsRegular() {
		return mgErrors.FileNotFound{Path: relPath}
	}
	content, err := os.ReadFile(local)
	if err != nil {
		return err
	}

	q := url.Values{}
	q.Set("project_id", strconv.FormatInt(projectID, 10))
	q.Set("modify_time", fi.ModTime().Format(time.RFC3339Nano))

	log.Debug("uploading file",
		"project", projectID, "path", relPath, "overwrite", overwrite, "size", fi.Size())

	base := "/mgost/project/" + strconv.FormatInt(projectID, 10) + "/files"
	if overwrite {
		_, _, err = c.doUpload(ctx, http.MethodPost, base+"/"+relPath, q, path.Base(relPath), content)
	} else {
		q.Set("path", relPath)
		_, _, err = c.doUpload(ctx, http.MethodPut, base, q, path.Base(relPath), content)
	}
	if err != nil {
		return err
	}
	c.InvalidateCache()
	return nil
}

// Download fetches the remote file at the project-relative path and
// writes it under the root, stamping the local copy with the remote
// modification time. Refuses to replace an existing file unless
// overwriteOK is set.
func (c *Client) Download(ctx context.Context, projectID int64, relPath string, overwriteOK bool) error {
	log := logging.Sub("api")

	local := c.localPath(relPath)
	var atime time.Time
	if fi, err := os.Lstat(local); err == nil {
		if !overwriteOK {
			return mgErrors.FileExists{Path: relPath}
		}
		atime = fileutils.Atime(fi)
	}

	// File bodies bypass the response cache on purpose; only the
	// JSON listings are worth keeping in memory.
	p := "/mgost/project/" + strconv.FormatInt(projectID, 10) + "/files/" + relPath
	body, status, err := c.roundTrip(ctx, http.MethodGet, p, nil, "", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		if err := c.checkResponse(http.MethodGet, p, status, body); err != nil {
			return err
		}
		return mgErrors.RemoteRequestError{Method: http.MethodGet, Path: p, Status: status}
	}

	var mtime time.Time
	if files, err := c.ProjectFiles(ctx, projectID); err == nil {
		if rf, ok := files[relPath]; ok {
			mtime = rf.Modified
		}
	}

	log.Debug("downloading file",
		"project", projectID, "path", relPath, "size", len(body))

	return fileutils.WriteFileAtomic(local, body, atime, mtime)
}

// MoveOnCloud renames a remote file, keeping its content and history.
// Used when the matcher finds that a wanted file moved locally.
func (c *Client) MoveOnCloud(ctx context.Context, projectID int64, oldPath, newPath string) error {
	log := logging.Sub("api")

	q := url.Values{}
	q.Set("target", newPath)
	p := "/mgost/project/" + strconv.FormatInt(projectID, 10) + "/files/" + oldPath
	body, _, err := c.do(ctx, http.MethodPatch, p, q)
	if err != nil {
		return err
	}
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode move response: %w", err)
	}
	if !msg.IsOK() {
		return fmt.Errorf("move %s to %s: service answered %q", oldPath, newPath, msg.Message)
	}
	log.Debug("moved on cloud",
		"project", projectID, "from", oldPath, "to", newPath)
	c.InvalidateCache()
	return nil
}
