// Package bigip talks iControl REST to a BIG-IP appliance. Only the iRule
// collections of the LTM and GTM modules are covered.
package bigip

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mhodges/bigip-rule-manager/internal/domain"
)

// DeviceClient is the device-side surface the reconciler needs. All
// operations are keyed by (module, partition, name).
type DeviceClient interface {
	// Login opens an authenticated session. Logout tears it down;
	// failures during Logout are swallowed.
	Login(ctx context.Context) error
	Logout(ctx context.Context)

	// Exists reports whether the rule is present on the device.
	// A 404 from the device means false, not an error.
	Exists(ctx context.Context, module domain.TrafficModule, partition, name string) (bool, error)
	Fetch(ctx context.Context, module domain.TrafficModule, partition, name string) (*domain.RemoteRule, error)
	Create(ctx context.Context, module domain.TrafficModule, partition, name, content string) error
	Update(ctx context.Context, module domain.TrafficModule, partition, name, content string) error
	Delete(ctx context.Context, module domain.TrafficModule, partition, name string) error
}

// Options configures a Client.
type Options struct {
	Host          string // host or host:port
	Username      string
	Password      string
	LoginProvider string // auth provider for token login, normally "tmos"
	SkipVerify    bool   // disable TLS certificate verification
	Timeout       time.Duration
}

// Client is the iControl REST implementation of DeviceClient.
type Client struct {
	host          string
	username      string
	password      string
	loginProvider string
	httpClient    *http.Client
	token         string
}

// Ensure Client implements DeviceClient.
var _ DeviceClient = (*Client)(nil)

// New creates a new iControl REST client. No request is made until Login
// or the first operation.
func New(opts Options) (*Client, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("bigip: host is required")
	}
	if opts.Username == "" || opts.Password == "" {
		return nil, fmt.Errorf("bigip: username and password are required")
	}
	provider := opts.LoginProvider
	if provider == "" {
		provider = "tmos"
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		host:          opts.Host,
		username:      opts.Username,
		password:      opts.Password,
		loginProvider: provider,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: opts.SkipVerify},
			},
		},
	}, nil
}

// Login requests a session token from the device. Until Login is called,
// requests fall back to basic authentication.
func (c *Client) Login(ctx context.Context) error {
	payload := loginRequest{
		Username:          c.username,
		Password:          c.password,
		LoginProviderName: c.loginProvider,
	}
	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, "/mgmt/shared/authn/login", payload, &resp); err != nil {
		return fmt.Errorf("logging in to %s: %w", c.host, err)
	}
	if resp.Token.Token == "" {
		return fmt.Errorf("logging in to %s: no token in response", c.host)
	}
	c.token = resp.Token.Token
	return nil
}

// Logout deletes the session token, best effort.
func (c *Client) Logout(ctx context.Context) {
	if c.token == "" {
		return
	}
	_ = c.do(ctx, http.MethodDelete, "/mgmt/shared/authz/tokens/"+url.PathEscape(c.token), nil, nil)
	c.token = ""
}

// Exists reports whether the rule is present on the device.
func (c *Client) Exists(ctx context.Context, module domain.TrafficModule, partition, name string) (bool, error) {
	err := c.do(ctx, http.MethodGet, ruleItemPath(module, partition, name), nil, nil)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// Fetch reads the rule's current attributes from the device.
func (c *Client) Fetch(ctx context.Context, module domain.TrafficModule, partition, name string) (*domain.RemoteRule, error) {
	var body ruleResource
	if err := c.do(ctx, http.MethodGet, ruleItemPath(module, partition, name), nil, &body); err != nil {
		return nil, err
	}
	return &domain.RemoteRule{
		Name:      body.Name,
		Partition: body.Partition,
		FullPath:  body.FullPath,
		Content:   body.Code,
	}, nil
}

// Create posts a new rule to the module's collection. GTM rule creation
// takes no partition argument; the device places the rule itself.
func (c *Client) Create(ctx context.Context, module domain.TrafficModule, partition, name, content string) error {
	payload := ruleResource{Name: name, Code: content}
	if module == domain.ModuleLTM {
		payload.Partition = partition
	}
	return c.do(ctx, http.MethodPost, ruleCollectionPath(module), payload, nil)
}

// Update patches the rule body in place.
func (c *Client) Update(ctx context.Context, module domain.TrafficModule, partition, name, content string) error {
	payload := ruleResource{Code: content}
	return c.do(ctx, http.MethodPatch, ruleItemPath(module, partition, name), payload, nil)
}

// Delete removes the rule from the device.
func (c *Client) Delete(ctx context.Context, module domain.TrafficModule, partition, name string) error {
	return c.do(ctx, http.MethodDelete, ruleItemPath(module, partition, name), nil, nil)
}

// ruleCollectionPath returns the collection URI for a module's rules.
func ruleCollectionPath(module domain.TrafficModule) string {
	return fmt.Sprintf("/mgmt/tm/%s/rule", module)
}

// ruleItemPath returns the item URI for one rule. iControl addresses
// objects by full path with "/" encoded as "~", e.g. ~Common~myrule.
func ruleItemPath(module domain.TrafficModule, partition, name string) string {
	fullPath := "/" + strings.TrimPrefix(partition, "/") + "/" + name
	return ruleCollectionPath(module) + "/" + strings.ReplaceAll(fullPath, "/", "~")
}

// do issues one REST request and decodes the response into result when
// given. Responses with status >= 400 become a *DeviceError carrying the
// device's own message.
func (c *Client) do(ctx context.Context, method, path string, payload, result any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding %s %s payload: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	u := "https://" + c.host + path
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("building %s %s request: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("X-F5-Auth-Token", c.token)
	} else {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		devErr := &DeviceError{Method: method, Path: path, StatusCode: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(devErr)
		return devErr
	}
	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decoding %s %s response: %w", method, path, err)
		}
	}
	return nil
}
