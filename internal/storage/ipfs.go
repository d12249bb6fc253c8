package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	cfg "github.com/bluecarbon/mrv-registry/backend/config"
	"github.com/bluecarbon/mrv-registry/backend/internal/entities"
)

// IPFSGateway uploads project evidence to an IPFS node and returns the
// content hash. The hash is what gets referenced on chain; pinning
// lifecycle beyond the add call is the node's concern, not ours.
type IPFSGateway struct {
	logger *slog.Logger

	apiURL           string
	publicGatewayURL string
	apiToken         string
	client           *http.Client
}

func NewIPFSGateway(logger *slog.Logger, config *cfg.Config) *IPFSGateway {
	return &IPFSGateway{
		logger:           logger,
		apiURL:           config.Storage.GatewayURL,
		publicGatewayURL: config.Storage.PublicGatewayURL,
		apiToken:         config.Storage.APIToken,
		client:           &http.Client{Timeout: 60 * time.Second},
	}
}

// addResponse is the IPFS HTTP API response for /api/v0/add.
type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// Upload streams the file to the node's add endpoint as multipart form
// data with pin=true. The project ID and caller metadata are logged with
// the resulting hash so evidence stays traceable to its project.
func (g *IPFSGateway) Upload(ctx context.Context, file io.Reader, filename, fileType, projectID string, metadata map[string]string) (*entities.StoredObject, error) {
	if filename == "" {
		return nil, &entities.ValidationError{Field: "filename", Reason: "required"}
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err = io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to copy file contents: %w", err)
	}
	if err = writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL+"/api/v0/add?pin=true&cid-version=1", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if g.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiToken)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &entities.NetworkError{Op: "ipfs upload", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &entities.NetworkError{
			Op:  "ipfs upload",
			Err: fmt.Errorf("ipfs node returned %d: %s", resp.StatusCode, payload),
		}
	}

	var added addResponse
	if err = json.NewDecoder(resp.Body).Decode(&added); err != nil {
		return nil, fmt.Errorf("failed to decode ipfs response: %w", err)
	}

	size, _ := strconv.ParseInt(added.Size, 10, 64)

	g.logger.Info("Evidence pinned",
		"project_id", projectID, "filename", filename, "file_type", fileType,
		"ipfs_hash", added.Hash, "size", size, "metadata_keys", len(metadata))

	return &entities.StoredObject{
		Hash:       added.Hash,
		GatewayURL: fmt.Sprintf("%s/%s", g.publicGatewayURL, added.Hash),
		Size:       size,
	}, nil
}
