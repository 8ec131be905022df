// Package keenetic talks to a Keenetic router's administrative HTTP API:
// challenge-response authentication, hotspot device inventory, and
// per-host access-policy changes.
package keenetic

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

// Response headers carrying the auth challenge on GET /auth.
const (
	headerRealm     = "X-Ndm-Realm"
	headerChallenge = "X-Ndm-Challenge"
)

// ErrChallengeUnavailable is returned by Authenticate when the router's
// auth endpoint does not hand out the realm/challenge headers. Callers
// decide whether to retry; Authenticate never retries on its own.
var ErrChallengeUnavailable = errors.New("keenetic: auth challenge unavailable")

// Session owns one authenticated HTTP session to the router. The cookie
// jar set by the auth handshake is reused for every subsequent request;
// it is only refreshed by an explicit Authenticate call, never expired
// proactively.
//
// Session is not safe for concurrent use. Updates are processed one at a
// time, so a single owner is enough.
type Session struct {
	baseURI  string
	login    string
	password string
	client   *http.Client
}

// NewSession creates an unauthenticated session for the router at baseURI
// (e.g. "https://192.168.1.1"). Certificate validation is disabled on
// purpose: Keenetic routers serve a self-signed certificate on the LAN
// and there is no CA to pin against.
func NewSession(baseURI, login, password string) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &Session{
		baseURI:  strings.TrimRight(baseURI, "/"),
		login:    login,
		password: password,
		client: &http.Client{
			Jar:     jar,
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}, nil
}

// Authenticate performs the router's two-step challenge-response
// handshake. It returns (false, nil) when the router rejects the
// credentials, and a non-nil error only for transport failures or a
// missing challenge. The digests are computed fresh on every call;
// nothing but the session cookie is cached.
func (s *Session) Authenticate(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURI+"/auth", nil)
	if err != nil {
		return false, fmt.Errorf("build auth request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("fetch auth challenge: %w", err)
	}
	resp.Body.Close()

	realm := resp.Header.Get(headerRealm)
	challenge := resp.Header.Get(headerChallenge)
	if realm == "" || challenge == "" {
		return false, ErrChallengeUnavailable
	}

	md5sum := md5.Sum([]byte(s.login + ":" + realm + ":" + s.password))
	digest := hex.EncodeToString(md5sum[:])
	shasum := sha256.Sum256([]byte(challenge + digest))

	body, err := json.Marshal(map[string]string{
		"login":    s.login,
		"password": hex.EncodeToString(shasum[:]),
	})
	if err != nil {
		return false, fmt.Errorf("marshal auth body: %w", err)
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodPost, s.baseURI+"/auth", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err = s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("submit auth response: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Debug("router rejected credentials", "status", resp.StatusCode)
		return false, nil
	}
	return true, nil
}

// Do sends one request over the established session. jsonBody, when
// non-nil, is marshaled and sent as application/json. The caller owns the
// response body. Do never re-authenticates; a 401 is handed back as-is so
// the caller can retry the handshake at most once (avoids looping forever
// on bad credentials).
func (s *Session) Do(ctx context.Context, method, path string, jsonBody any) (*http.Response, error) {
	var reader *bytes.Reader
	if jsonBody != nil {
		data, err := json.Marshal(jsonBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURI+"/"+strings.TrimLeft(path, "/"), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if jsonBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}
