package dispatch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/geekxflood/trapdirector/logging"
)

const processCheckResultPath = "/v1/actions/process-check-result"

// APIConfig configures the Icinga2 REST API client.
type APIConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	// Insecure skips certificate verification.
	Insecure bool
	Timeout  time.Duration
}

// API submits check results through the Icinga2 REST API.
type API struct {
	baseURL  string
	user     string
	password string
	client   *http.Client
	log      logging.Logger
}

type checkResultRequest struct {
	Type         string `json:"type"`
	Filter       string `json:"filter"`
	ExitStatus   int    `json:"exit_status"`
	PluginOutput string `json:"plugin_output"`
}

type apiResponse struct {
	Results []struct {
		Code   float64 `json:"code"`
		Status string  `json:"status"`
	} `json:"results"`
	Error  float64 `json:"error"`
	Status string  `json:"status"`
}

// NewAPI returns an API client. Port defaults to 5665 and Timeout to 10s.
func NewAPI(cfg APIConfig, log logging.Logger) *API {
	if log == nil {
		log = logging.NewComponentLogger("dispatch", "api")
	}
	if cfg.Port == 0 {
		cfg.Port = 5665
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &API{
		baseURL:  "https://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		user:     cfg.User,
		password: cfg.Password,
		client:   newTimeoutClient(cfg.Timeout, cfg.Insecure),
		log:      log,
	}
}

func newTimeoutClient(timeout time.Duration, insecure bool) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:     (&net.Dialer{Timeout: timeout}).DialContext,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: insecure}, //nolint:gosec // self-signed Icinga2 certificates
		},
	}
}

// Submit posts a process-check-result action for one service.
func (a *API) Submit(ctx context.Context, check Check) (Result, error) {
	if err := validate(check); err != nil {
		return Result{}, err
	}

	body, err := json.Marshal(checkResultRequest{
		Type:         "Service",
		Filter:       fmt.Sprintf("host.name==%q && service.name==%q", check.Host, check.Service),
		ExitStatus:   check.State,
		PluginOutput: check.Display,
	})
	if err != nil {
		return Result{}, fmt.Errorf("encoding check result: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+processCheckResultPath, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("building request: %w", err)
	}
	req.SetBasicAuth(a.user, a.password)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("sending check result to %s: %w", a.baseURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("reading API response: %w", err)
	}

	result := decodeResult(resp.StatusCode, raw)
	if result.OK {
		a.log.Info("sent result", "host", check.Host, "service", check.Service, "message", result.Message)
	} else {
		a.log.Warn("error sending result", "host", check.Host, "service", check.Service, "message", result.Message)
	}
	return result, nil
}

func decodeResult(status int, raw []byte) Result {
	if status == http.StatusUnauthorized {
		return Result{OK: false, Message: "HTTP 401: authentication failed"}
	}
	var r apiResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return Result{OK: false, Message: fmt.Sprintf("HTTP %d: unreadable response", status)}
	}
	if r.Error != 0 {
		return Result{OK: false, Message: fmt.Sprintf("error %d: %s", int(r.Error), r.Status)}
	}
	if len(r.Results) == 0 {
		return Result{OK: false, Message: fmt.Sprintf("HTTP %d: no result returned", status)}
	}
	first := r.Results[0]
	if int(first.Code) != http.StatusOK {
		return Result{OK: false, Message: fmt.Sprintf("code %d: %s", int(first.Code), first.Status)}
	}
	return Result{OK: true, Message: first.Status}
}
