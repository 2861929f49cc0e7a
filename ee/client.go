package ee

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"hydro-server/util"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultEndpoint = "https://earthengine.googleapis.com"
	DefaultProject  = "earthengine-legacy"

	Scope = "https://www.googleapis.com/auth/earthengine"
)

var (
	client *retryablehttp.Client
	once   sync.Once
)

func computeHTTP() *retryablehttp.Client {
	once.Do(func() {
		client = retryablehttp.NewClient()
		// Single attempt; a transient remote failure fails the request.
		client.RetryMax = 0
		client.Logger = nil
		if log.GetLevel() >= log.DebugLevel {
			client.Logger = log.StandardLogger()
		}
		client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	})
	return client
}

// VisParams selects the value range and palette for a rendered map.
type VisParams struct {
	Min     int
	Max     int
	Palette []string
}

// Service is the capability surface of the remote compute platform. Only two
// calls carry data over the network: evaluating a graph to a value, and
// registering a graph as a rendered map.
type Service interface {
	ComputeValue(ctx context.Context, expr *Expr) (json.RawMessage, error)
	CreateMap(ctx context.Context, expr *Expr, vis *VisParams) (string, error)
}

type Client struct {
	Endpoint string
	Project  string

	tokens  oauth2.TokenSource
	authErr error
}

// New builds a client from the environment. When GEE_SERVICE_ACCOUNT and an
// existing GEE_KEY_FILE are both configured the key file is used, otherwise
// ambient application-default credentials. Authentication failures are logged
// but never fatal here; they surface as errors on first use.
func New(ctx context.Context) *Client {
	c := &Client{
		Endpoint: DefaultEndpoint,
		Project:  util.EnvOrDefault("EE_PROJECT", DefaultProject),
	}

	account := util.EnvOrDefault("GEE_SERVICE_ACCOUNT", "")
	keyFile := util.EnvOrDefault("GEE_KEY_FILE", "")

	if account != "" && keyFile != "" && fileExists(keyFile) {
		key, err := os.ReadFile(keyFile)
		if err != nil {
			log.Errorf("Authentication failed: read key file: %v", err)
			c.authErr = err
			return c
		}
		conf, err := google.JWTConfigFromJSON(key, Scope)
		if err != nil {
			log.Errorf("Authentication failed: parse key file: %v", err)
			c.authErr = err
			return c
		}
		c.tokens = conf.TokenSource(ctx)
		log.Infof("Authentication: service account %q initialized", account)
		return c
	}

	ts, err := google.DefaultTokenSource(ctx, Scope)
	if err != nil {
		log.Errorf("Authentication failed: %v", err)
		c.authErr = err
		return c
	}
	c.tokens = ts
	log.Infof("Authentication: default application credentials initialized")
	return c
}

// NewWithCredentials binds a client to an explicit endpoint, project, and
// token source. Used by tests against a local compute stand-in.
func NewWithCredentials(endpoint, project string, tokens oauth2.TokenSource) *Client {
	return &Client{
		Endpoint: endpoint,
		Project:  project,
		tokens:   tokens,
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

type computeRequest struct {
	Expression *Expression `json:"expression"`
}

type computeResponse struct {
	Result json.RawMessage `json:"result"`
}

type visRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type visOptions struct {
	Ranges        []visRange `json:"ranges"`
	PaletteColors []string   `json:"paletteColors"`
}

type mapRequest struct {
	Expression           *Expression `json:"expression"`
	VisualizationOptions *visOptions `json:"visualizationOptions,omitempty"`
}

type mapResponse struct {
	Name string `json:"name"`
}

func (c *Client) post(ctx context.Context, url string, body, out interface{}) error {
	if c.tokens == nil {
		return fmt.Errorf("compute service: no credentials: %v", c.authErr)
	}
	tok, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("compute service: token: %v", err)
	}

	j, err := json.Marshal(body)
	if err != nil {
		return err
	}
	log.Debugf("Making API request %q", string(j))

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(j))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	tok.SetAuthHeader(req.Request)

	res, err := computeHTTP().Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != 200 {
		buf := new(strings.Builder)
		io.Copy(buf, res.Body)
		return fmt.Errorf("compute service %v: %q", res.Status, buf.String())
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// ComputeValue evaluates the graph server-side and returns the raw result.
func (c *Client) ComputeValue(ctx context.Context, expr *Expr) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/v1/projects/%s/value:compute", c.Endpoint, c.Project)
	resp := &computeResponse{}
	if err := c.post(ctx, url, &computeRequest{Expression: expr.Serialize()}, resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// CreateMap registers the graph as a rendered map and returns a tile URL
// template with {z}/{x}/{y} placeholders.
func (c *Client) CreateMap(ctx context.Context, expr *Expr, vis *VisParams) (string, error) {
	url := fmt.Sprintf("%s/v1/projects/%s/maps", c.Endpoint, c.Project)
	req := &mapRequest{Expression: expr.Serialize()}
	if vis != nil {
		req.VisualizationOptions = &visOptions{
			Ranges:        []visRange{{Min: vis.Min, Max: vis.Max}},
			PaletteColors: vis.Palette,
		}
	}
	resp := &mapResponse{}
	if err := c.post(ctx, url, req, resp); err != nil {
		return "", err
	}
	if resp.Name == "" {
		return "", fmt.Errorf("compute service: map response missing name")
	}
	return fmt.Sprintf("%s/v1/%s/tiles/{z}/{x}/{y}", c.Endpoint, resp.Name), nil
}
