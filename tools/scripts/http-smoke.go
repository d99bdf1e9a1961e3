// Package main provides a CI-friendly HTTP smoke test for a running idreg server.
//
// It validates:
//   - register then login by email and by phone
//   - wrong password and unknown identifier both yield 401 invalid_credentials
//   - duplicate email yields 409
//   - soft delete hides the user and blocks login
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const maxReadBytes = 1 << 20 // 1MiB

type smokeClient struct {
	base    string
	http    *http.Client
	timeout time.Duration
	verbose bool
}

type apiError struct {
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8080", "Server base URL")
		pass    = flag.String("password", "Smoke-Test-42!", "Password for the throwaway user")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}

	c := &smokeClient{
		base:    strings.TrimRight(*baseURL, "/"),
		http:    &http.Client{},
		timeout: *timeout,
		verbose: *verbose,
	}
	root := context.Background()

	suffix := strings.ToLower(ulid.Make().String())
	username := "smoke" + suffix
	email := "smoke+" + suffix + "@example.com"
	phone := fmt.Sprintf("+1555%07d", time.Now().UnixNano()%10_000_000)

	var reg struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	c.mustDo(root, http.MethodPost, "/auth/register", map[string]any{
		"username":     username,
		"email":        email,
		"phone_number": phone,
		"password":     *pass,
	}, http.StatusCreated, &reg)
	if strings.TrimSpace(reg.User.ID) == "" {
		fatalf("register: missing user id")
	}

	c.mustDo(root, http.MethodPost, "/auth/login", map[string]any{"email": strings.ToUpper(email), "password": *pass}, http.StatusOK, nil)
	c.mustDo(root, http.MethodPost, "/auth/login", map[string]any{"phone_number": phone, "password": *pass}, http.StatusOK, nil)

	c.mustFail(root, "/auth/login", map[string]any{"email": email, "password": *pass + "x"}, http.StatusUnauthorized, "invalid_credentials")
	c.mustFail(root, "/auth/login", map[string]any{"email": "nobody+" + suffix + "@example.com", "password": *pass}, http.StatusUnauthorized, "invalid_credentials")

	c.mustFail(root, "/auth/register", map[string]any{
		"username": username + "b",
		"email":    email,
		"password": *pass,
	}, http.StatusConflict, "duplicate_email")

	c.mustDo(root, http.MethodGet, "/users/"+reg.User.ID, nil, http.StatusOK, nil)
	c.mustDo(root, http.MethodDelete, "/users/"+reg.User.ID, nil, http.StatusNoContent, nil)
	c.mustDo(root, http.MethodGet, "/users/"+reg.User.ID, nil, http.StatusNotFound, nil)
	c.mustFail(root, "/auth/login", map[string]any{"email": email, "password": *pass}, http.StatusUnauthorized, "invalid_credentials")

	fmt.Printf("OK: user_id=%s username=%s\n", reg.User.ID, username)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func (c *smokeClient) do(parent context.Context, method, path string, body any) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if err != nil {
		return 0, nil, err
	}
	if c.verbose {
		fmt.Printf("%s %s -> %d %s\n", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return resp.StatusCode, raw, nil
}

func (c *smokeClient) mustDo(ctx context.Context, method, path string, body any, wantStatus int, out any) {
	status, raw, err := c.do(ctx, method, path, body)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	if status != wantStatus {
		fatalf("%s %s: status=%d want=%d body=%s", method, path, status, wantStatus, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			fatalf("%s %s: decode: %v", method, path, err)
		}
	}
}

func (c *smokeClient) mustFail(ctx context.Context, path string, body any, wantStatus int, wantCode string) {
	var e apiError
	c.mustDo(ctx, http.MethodPost, path, body, wantStatus, &e)
	if e.Error.Code != wantCode {
		fatalf("POST %s: code=%q want=%q", path, e.Error.Code, wantCode)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
