package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 10 * time.Minute
	httpTimeoutEnvKey  = "FILECASK_HTTP_TIMEOUT"
	apiTokenEnvKey     = "FILECASK_API_TOKEN"
	adminTokenEnvKey   = "FILECASK_ADMIN_TOKEN"
	userHeader         = "X-Filecask-User"
)

// Client is a simple HTTP client for the filecask API.
type Client struct {
	baseURL    string
	username   string
	http       *http.Client
	authToken  string
	adminToken string
}

// NewClient creates a new API client acting as username.
func NewClient(baseURL, username string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   strings.TrimSpace(username),
		http:       &http.Client{Timeout: httpTimeoutFromEnv()},
		authToken:  strings.TrimSpace(os.Getenv(apiTokenEnvKey)),
		adminToken: strings.TrimSpace(os.Getenv(adminTokenEnvKey)),
	}
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func (c *Client) GetInfo(ctx context.Context) (InfoResponse, error) {
	var resp InfoResponse
	err := c.do(ctx, http.MethodGet, "/v1/info", nil, nil, &resp)
	return resp, err
}

// Upload streams content as a multipart form. The digest is computed
// server-side; duplicates of already-stored content cost no new disk.
func (c *Client) Upload(ctx context.Context, displayName, folderID, visibility string, content io.Reader) (FileResponse, error) {
	var resp FileResponse

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		err := writeUploadForm(form, displayName, folderID, visibility, content)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(form.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/files", pr)
	if err != nil {
		return resp, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	c.setAuthHeader(req)

	httpResp, err := c.http.Do(req)
	if err != nil {
		return resp, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return resp, decodeError(httpResp)
	}
	return resp, json.NewDecoder(httpResp.Body).Decode(&resp)
}

func writeUploadForm(form *multipart.Writer, displayName, folderID, visibility string, content io.Reader) error {
	if folderID != "" {
		if err := form.WriteField("folder_id", folderID); err != nil {
			return err
		}
	}
	if visibility != "" {
		if err := form.WriteField("visibility", visibility); err != nil {
			return err
		}
	}
	part, err := form.CreateFormFile("file", displayName)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, content)
	return err
}

// Link creates a new entry over content already stored by digest.
func (c *Client) Link(ctx context.Context, req LinkRequest) (FileResponse, error) {
	var resp FileResponse
	err := c.do(ctx, http.MethodPost, "/v1/files/link", nil, req, &resp)
	return resp, err
}

func (c *Client) GetFile(ctx context.Context, id string) (FileResponse, error) {
	var resp FileResponse
	err := c.do(ctx, http.MethodGet, "/v1/files/"+url.PathEscape(id), nil, nil, &resp)
	return resp, err
}

func (c *Client) ListFiles(ctx context.Context, folderID string) ([]FileResponse, error) {
	var resp []FileResponse
	query := url.Values{}
	if folderID != "" {
		query.Set("folder", folderID)
	}
	err := c.do(ctx, http.MethodGet, "/v1/files", query, nil, &resp)
	return resp, err
}

// Download streams entry content into w.
func (c *Client) Download(ctx context.Context, id string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/files/"+url.PathEscape(id)+"/content", nil)
	if err != nil {
		return err
	}
	c.setAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

func (c *Client) UpdateFile(ctx context.Context, id string, req FileUpdateRequest) (FileResponse, error) {
	var resp FileResponse
	err := c.do(ctx, http.MethodPatch, "/v1/files/"+url.PathEscape(id), nil, req, &resp)
	return resp, err
}

func (c *Client) DeleteFile(ctx context.Context, id string) (DeleteResponse, error) {
	var resp DeleteResponse
	err := c.do(ctx, http.MethodDelete, "/v1/files/"+url.PathEscape(id), nil, nil, &resp)
	return resp, err
}

func (c *Client) CopyFile(ctx context.Context, id string, req CopyRequest) (FileResponse, error) {
	var resp FileResponse
	err := c.do(ctx, http.MethodPost, "/v1/files/"+url.PathEscape(id)+"/copy", nil, req, &resp)
	return resp, err
}

func (c *Client) AddShare(ctx context.Context, id, grantee string) (ShareGrantResponse, error) {
	var resp ShareGrantResponse
	err := c.do(ctx, http.MethodPost, "/v1/files/"+url.PathEscape(id)+"/shares", nil, ShareRequest{Grantee: grantee}, &resp)
	return resp, err
}

func (c *Client) RemoveShare(ctx context.Context, id, grantee string) error {
	return c.do(ctx, http.MethodDelete, "/v1/files/"+url.PathEscape(id)+"/shares/"+url.PathEscape(grantee), nil, nil, nil)
}

func (c *Client) ListShares(ctx context.Context, id string) ([]ShareGrantResponse, error) {
	var resp []ShareGrantResponse
	err := c.do(ctx, http.MethodGet, "/v1/files/"+url.PathEscape(id)+"/shares", nil, nil, &resp)
	return resp, err
}

func (c *Client) CreateShareLink(ctx context.Context, id string) (ShareLinkResponse, error) {
	var resp ShareLinkResponse
	err := c.do(ctx, http.MethodPost, "/v1/files/"+url.PathEscape(id)+"/share-link", nil, nil, &resp)
	return resp, err
}

func (c *Client) RevokeShareLink(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodDelete, "/v1/share-links/"+url.PathEscape(token), nil, nil, nil)
}

func (c *Client) SharedWithMe(ctx context.Context) ([]SharedEntryResponse, error) {
	var resp []SharedEntryResponse
	err := c.do(ctx, http.MethodGet, "/v1/shared-with-me", nil, nil, &resp)
	return resp, err
}

func (c *Client) CreateFolder(ctx context.Context, name string) (FolderResponse, error) {
	var resp FolderResponse
	err := c.do(ctx, http.MethodPost, "/v1/folders", nil, FolderRequest{Name: name}, &resp)
	return resp, err
}

func (c *Client) ListFolders(ctx context.Context) ([]FolderResponse, error) {
	var resp []FolderResponse
	err := c.do(ctx, http.MethodGet, "/v1/folders", nil, nil, &resp)
	return resp, err
}

func (c *Client) Usage(ctx context.Context) (UsageResponse, error) {
	var resp UsageResponse
	err := c.do(ctx, http.MethodGet, "/v1/usage", nil, nil, &resp)
	return resp, err
}

func (c *Client) Stats(ctx context.Context) (StatsResponse, error) {
	var resp StatsResponse
	err := c.do(ctx, http.MethodGet, "/v1/stats", nil, nil, &resp)
	return resp, err
}

func (c *Client) AdminCreateUser(ctx context.Context, req UserCreateRequest) (UserResponse, error) {
	var resp UserResponse
	err := c.doAdmin(ctx, http.MethodPost, "/v1/admin/users", nil, req, &resp)
	return resp, err
}

func (c *Client) AdminListUsers(ctx context.Context) ([]UserResponse, error) {
	var resp []UserResponse
	err := c.doAdmin(ctx, http.MethodGet, "/v1/admin/users", nil, nil, &resp)
	return resp, err
}

func (c *Client) AdminSetQuota(ctx context.Context, username string, limitBytes int64) (UserResponse, error) {
	var resp UserResponse
	err := c.doAdmin(ctx, http.MethodPut, "/v1/admin/users/"+url.PathEscape(username)+"/quota", nil, QuotaUpdateRequest{QuotaLimitBytes: limitBytes}, &resp)
	return resp, err
}

func (c *Client) AdminStats(ctx context.Context) (SystemStatsResponse, error) {
	var resp SystemStatsResponse
	err := c.doAdmin(ctx, http.MethodGet, "/v1/admin/stats", nil, nil, &resp)
	return resp, err
}

// AdminExport streams the YAML catalog export into w.
func (c *Client) AdminExport(ctx context.Context, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/admin/export", nil)
	if err != nil {
		return err
	}
	c.setAdminHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// AdminImport uploads a YAML catalog for replay. Set dryRun to validate
// without applying.
func (c *Client) AdminImport(ctx context.Context, catalog io.Reader, dryRun bool) (ImportResponse, error) {
	endpoint := c.baseURL + "/v1/admin/import"
	if dryRun {
		endpoint += "?dry_run=true"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, catalog)
	if err != nil {
		return ImportResponse{}, err
	}
	req.Header.Set("Content-Type", "application/yaml")
	c.setAdminHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return ImportResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return ImportResponse{}, decodeError(resp)
	}

	var out ImportResponse
	err = json.NewDecoder(resp.Body).Decode(&out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	return c.request(ctx, method, path, query, body, out, c.setAuthHeader)
}

func (c *Client) doAdmin(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	return c.request(ctx, method, path, query, body, out, c.setAdminHeader)
}

func (c *Client) request(ctx context.Context, method, path string, query url.Values, body any, out any, auth func(*http.Request)) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Code
		apiErr.ErrorCode = errResp.ErrorCode
		apiErr.Message = errResp.Error
	}
	return apiErr
}

func (c *Client) setAuthHeader(req *http.Request) {
	if req == nil {
		return
	}
	if c.username != "" {
		req.Header.Set(userHeader, c.username)
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

func (c *Client) setAdminHeader(req *http.Request) {
	if req == nil {
		return
	}
	token := c.adminToken
	if token == "" {
		token = c.authToken
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
