// Package outline is a client for the Outline server management API.
package outline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var ErrKeyNotFound = errors.New("access key not found")

// APIError is a non-success response from the management API.
type APIError struct {
	Operation string
	Status    int
	Message   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("outline API error during %s (status %d): %s", e.Operation, e.Status, e.Message)
}

type AccessKey struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Password  string `json:"password"`
	Port      int    `json:"port"`
	Method    string `json:"method"`
	AccessURL string `json:"accessUrl"`
}

type ServerInfo struct {
	Name      string `json:"name"`
	ServerID  string `json:"serverId"`
	Version   string `json:"version"`
	CreatedAt int64  `json:"createdTimestampMs"`
}

type Client struct {
	httpClient *resty.Client
	apiURL     string
	logger     *zap.Logger
}

// NewClient builds a client for apiURL. Outline servers use self-signed
// certificates; when certSHA256 is set the leaf certificate must match it.
func NewClient(apiURL, certSHA256 string, timeout time.Duration, logger *zap.Logger) *Client {
	tlsConfig := &tls.Config{}
	if fp := normalizeFingerprint(certSHA256); fp != "" {
		tlsConfig.InsecureSkipVerify = true
		tlsConfig.VerifyPeerCertificate = pinnedVerifier(fp)
	}

	httpClient := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetTLSClientConfig(tlsConfig).
		SetHeader("Content-Type", "application/json")

	return &Client{
		httpClient: httpClient,
		apiURL:     strings.TrimRight(apiURL, "/"),
		logger:     logger,
	}
}

func (c *Client) GetServer(ctx context.Context) (*ServerInfo, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(c.apiURL + "/server")
	if err != nil {
		return nil, fmt.Errorf("get server request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &APIError{Operation: "get server", Status: resp.StatusCode(), Message: string(resp.Body())}
	}

	var info ServerInfo
	if err := decode(resp, "get server", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// CreateAccessKey creates a key. Only a 201 carrying an id and access URL
// counts as success.
func (c *Client) CreateAccessKey(ctx context.Context, name string) (*AccessKey, error) {
	req := c.httpClient.R().SetContext(ctx)
	if name != "" {
		req.SetBody(map[string]string{"name": name})
	}

	c.logger.Debug("Creating outline access key", zap.String("api_url", c.apiURL), zap.String("name", name))

	resp, err := req.Post(c.apiURL + "/access-keys")
	if err != nil {
		return nil, fmt.Errorf("create access key request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusCreated {
		return nil, &APIError{Operation: "create access key", Status: resp.StatusCode(), Message: string(resp.Body())}
	}

	var key AccessKey
	if err := decode(resp, "create access key", &key); err != nil {
		return nil, err
	}
	if key.ID == "" || key.AccessURL == "" {
		return nil, &APIError{Operation: "create access key", Status: resp.StatusCode(), Message: "response missing id or accessUrl"}
	}
	return &key, nil
}

// DeleteAccessKey removes a key, returning ErrKeyNotFound when the server
// does not know it.
func (c *Client) DeleteAccessKey(ctx context.Context, id string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("%s/access-keys/%s", c.apiURL, id))
	if err != nil {
		return fmt.Errorf("delete access key request failed: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return ErrKeyNotFound
	}
	return &APIError{Operation: "delete access key", Status: resp.StatusCode(), Message: string(resp.Body())}
}

// RenameAccessKey sets the display name of a key. Older servers ignore the
// name sent on create, so callers rename afterwards.
func (c *Client) RenameAccessKey(ctx context.Context, id, name string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]string{"name": name}).
		Put(fmt.Sprintf("%s/access-keys/%s/name", c.apiURL, id))
	if err != nil {
		return fmt.Errorf("rename access key request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusNoContent && resp.StatusCode() != http.StatusOK {
		return &APIError{Operation: "rename access key", Status: resp.StatusCode(), Message: string(resp.Body())}
	}
	return nil
}

// decode reads a JSON body whatever Content-Type the server sent. Outline
// builds disagree on the header.
func decode(resp *resty.Response, op string, v interface{}) error {
	if err := json.Unmarshal(resp.Body(), v); err != nil {
		return &APIError{Operation: op, Status: resp.StatusCode(), Message: "malformed response body: " + err.Error()}
	}
	return nil
}

func normalizeFingerprint(fp string) string {
	fp = strings.ToLower(strings.TrimSpace(fp))
	return strings.ReplaceAll(fp, ":", "")
}

func pinnedVerifier(fingerprint string) func([][]byte, [][]*x509.Certificate) error {
	want, err := hex.DecodeString(fingerprint)
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if err != nil {
			return fmt.Errorf("invalid certificate fingerprint: %w", err)
		}
		if len(rawCerts) == 0 {
			return errors.New("server presented no certificate")
		}
		sum := sha256.Sum256(rawCerts[0])
		if !bytes.Equal(sum[:], want) {
			return errors.New("server certificate does not match pinned fingerprint")
		}
		return nil
	}
}
