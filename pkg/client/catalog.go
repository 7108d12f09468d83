package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"campusloans/pkg/model"
)

var ErrDeviceNotInCatalog = errors.New("device not found in catalog")

// CatalogClient reads the device catalog service. The loans service uses it to
// rebuild its availability snapshot and to re-check stock on activation.
type CatalogClient struct {
	httpClient *HttpClient
}

func NewCatalogClient(baseURL string, timeout time.Duration) *CatalogClient {
	return &CatalogClient{
		httpClient: NewHttpClient(baseURL, timeout),
	}
}

func (c *CatalogClient) GetDevice(ctx context.Context, id string) (*model.Device, error) {
	resp, err := c.httpClient.GET(ctx, "/api/v1/devices/id/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrDeviceNotInCatalog
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("catalog returned %d: %s", resp.StatusCode, GetErrorMessage(resp))
	}

	var wrapper struct {
		Data model.Device `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &wrapper); err != nil {
		return nil, fmt.Errorf("could not decode device: %w", err)
	}
	return &wrapper.Data, nil
}

// ListSnapshots pages through the catalog's snapshot view until it is
// exhausted.
func (c *CatalogClient) ListSnapshots(ctx context.Context) ([]*model.DeviceSnapshot, error) {
	const pageSize = 100
	var (
		all    []*model.DeviceSnapshot
		offset int64
	)

	for {
		path := fmt.Sprintf("/api/v1/devices/snapshot?limit=%d&offset=%d", pageSize, offset)
		resp, err := c.httpClient.GET(ctx, path)
		if err != nil {
			return nil, err
		}
		if !resp.IsSuccess() {
			return nil, fmt.Errorf("catalog returned %d: %s", resp.StatusCode, GetErrorMessage(resp))
		}

		var page struct {
			Data       []*model.DeviceSnapshot `json:"data"`
			TotalCount int64                   `json:"total_count"`
		}
		if err := json.Unmarshal(resp.Body, &page); err != nil {
			return nil, fmt.Errorf("could not decode snapshot page: %w", err)
		}

		all = append(all, page.Data...)
		offset += int64(len(page.Data))
		if len(page.Data) < pageSize || offset >= page.TotalCount {
			return all, nil
		}
	}
}
