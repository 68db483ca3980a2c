package serversdk

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/imroc/req/v3"

	"github.com/savebox/savebox/internal/utils"
	"github.com/savebox/savebox/internal/version"
)

const (
	v1Status   = "/api/v1/status"
	v1Saves    = "/api/v1/saves"
	v1Save     = "/api/v1/saves/{name}"
	v1SaveHash = "/api/v1/saves/{name}/hash"
	v1SaveData = "/api/v1/saves/{name}/data"
)

// uploadField is the multipart form field carrying the container bytes.
const uploadField = "container"

// Client implements Server over the SaveBox HTTP API.
type Client struct {
	client *req.Client
}

var _ Server = (*Client)(nil)

// New builds a Client for the given backend. The token may be empty for
// anonymous probing; the backend rejects everything else without one.
func New(serverURL string, token string) (*Client, error) {
	if serverURL == "" {
		return nil, ErrNoServerURL
	}

	client := req.C().
		SetBaseURL(serverURL).
		SetCommonRetryCount(3).
		SetCommonRetryFixedInterval(1 * time.Second).
		SetUserAgent(UserAgent).
		SetCommonHeader(HeaderVersion, version.Version).
		SetCommonHeader(HeaderDeviceID, deviceID()).
		SetCommonErrorResult(&APIError{}).
		EnableDumpEachRequestWithoutBody().
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	if token != "" {
		client.SetCommonBearerAuthToken(token)
	}

	return &Client{client: client}, nil
}

// OnlineStatus probes the backend once, without retries. Any transport or
// server failure reads as offline.
func (c *Client) OnlineStatus(ctx context.Context) bool {
	resp, err := c.client.R().
		SetContext(ctx).
		SetRetryCount(0).
		Get(v1Status)
	return err == nil && resp.IsSuccessState()
}

func (c *Client) SaveNames(ctx context.Context) ([]string, error) {
	var apiResp SaveNamesResponse

	resp, err := c.client.R().
		SetContext(ctx).
		SetSuccessResult(&apiResp).
		Get(v1Saves)
	if err := handleAPIError(resp, err, "list saves"); err != nil {
		return nil, err
	}

	return apiResp.Names, nil
}

func (c *Client) RemoteSaveHash(ctx context.Context, name string) (string, bool, error) {
	var apiResp SaveHashResponse

	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("name", name).
		SetSuccessResult(&apiResp).
		Get(v1SaveHash)
	if err := handleAPIError(resp, err, "remote save hash"); err != nil {
		if HasErrorCode(err, CodeSaveNotFound) {
			return "", false, nil
		}
		return "", false, err
	}

	return apiResp.Hash, true, nil
}

// LocalSaveHash fingerprints a packed container exactly the way the backend
// does on upload, so the two sides compare directly.
func (c *Client) LocalSaveHash(ctx context.Context, containerPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return utils.FileHash(containerPath)
}

func (c *Client) UploadSaveData(ctx context.Context, name string, containerPath string) error {
	if !utils.FileExists(containerPath) {
		return fmt.Errorf("sdk: upload save %q: %w", name, ErrContainerNotFound)
	}

	var apiResp UploadResponse

	resp, err := c.client.R().
		SetContext(ctx).
		SetRetryCount(0).
		SetPathParam("name", name).
		SetFile(uploadField, containerPath).
		SetSuccessResult(&apiResp).
		Put(v1Save)
	if err := handleAPIError(resp, err, "upload save"); err != nil {
		return err
	}

	return nil
}

func (c *Client) DownloadSaveData(ctx context.Context, name string, destPath string) error {
	if err := utils.EnsureParent(destPath); err != nil {
		return fmt.Errorf("sdk: download save %q: %w", name, err)
	}

	resp, err := c.client.R().
		DisableAutoReadResponse().
		SetContext(ctx).
		SetPathParam("name", name).
		SetOutputFile(destPath).
		Get(v1SaveData)
	if err != nil {
		return fmt.Errorf("sdk: download save %q: %w", name, err)
	}

	if resp.IsErrorState() {
		// the error body lands in destPath because of SetOutputFile, so read
		// it back and drop the file before reporting
		respContent, readErr := os.ReadFile(destPath)
		if readErr != nil {
			respContent = nil
		}
		_ = os.Remove(destPath)

		var errorCode string
		switch resp.GetStatusCode() {
		case 401, 403:
			errorCode = CodeAccessDenied
		case 404:
			errorCode = CodeSaveNotFound
		case 429:
			errorCode = CodeRateLimited
		case 500, 502, 503, 504:
			errorCode = CodeInternalError
		default:
			errorCode = CodeSaveGetFailed
		}

		return fmt.Errorf("sdk: download save %q: %w", name, NewAPIError(errorCode, string(respContent)))
	}

	return nil
}
