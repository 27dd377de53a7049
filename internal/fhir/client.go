package fhir

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/carelink/clinassist/internal/config"
	"github.com/carelink/clinassist/internal/model"
	appErr "github.com/carelink/clinassist/internal/pkg/errors"
)

// Client talks to an Epic-style FHIR server using the backend-services OAuth2
// flow: a short-lived RS256 client assertion is exchanged for a bearer token,
// then resources are fetched one by one.
type Client struct {
	baseURL    string
	tokenURL   string
	clientID   string
	privateKey *rsa.PrivateKey
	hc         *http.Client
}

func NewClient(cfg config.FHIRConfig) (*Client, error) {
	keyData, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(keyData)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		tokenURL:   cfg.TokenURL,
		clientID:   cfg.ClientID,
		privateKey: key,
		hc:         &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *Client) clientAssertion(scope string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   c.clientID,
		"sub":   c.clientID,
		"aud":   c.tokenURL,
		"exp":   now.Add(5 * time.Minute).Unix(),
		"iat":   now.Unix(),
		"jti":   uuid.NewString(),
		"scope": scope,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(c.privateKey)
}

func (c *Client) accessToken(ctx context.Context, scope string) (string, error) {
	assertion, err := c.clientAssertion(scope)
	if err != nil {
		return "", fmt.Errorf("sign client assertion: %w", err)
	}
	form := url.Values{
		"grant_type":            {"client_credentials"},
		"client_assertion_type": {"urn:ietf:params:oauth:client-assertion-type:jwt-bearer"},
		"client_assertion":      {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token request: %v", appErr.ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: token request failed: %s: %s", appErr.ErrUpstream, resp.Status, strings.TrimSpace(string(body)))
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", appErr.ErrUpstream)
	}
	return out.AccessToken, nil
}

func (c *Client) fetchResource(ctx context.Context, token, resourceType, id string) (map[string]interface{}, error) {
	// AllergyIntolerance has no direct read on this server; it's a search
	// by patient instead.
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, resourceType, id)
	if resourceType == "AllergyIntolerance" {
		endpoint = fmt.Sprintf("%s/AllergyIntolerance?patient=%s", c.baseURL, url.QueryEscape(id))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/fhir+json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", appErr.ErrUpstream, resourceType, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: fetch %s failed: %s: %s", appErr.ErrUpstream, resourceType, resp.Status, strings.TrimSpace(string(body)))
	}
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchSnapshot pulls the five resources and flattens them into one
// PatientSnapshot. Patient and Coverage are required; the clinical resources
// are optional and simply leave their sections absent on failure.
func (c *Client) FetchSnapshot(ctx context.Context, ids config.ResourceIDs) (*model.PatientSnapshot, error) {
	logger := logutil.GetLogger(ctx)
	scope := strings.Join([]string{
		"system/Patient.read",
		"system/Coverage.read",
		"system/Condition.read",
		"system/DiagnosticReport.read",
		"system/AllergyIntolerance.read",
	}, " ")
	token, err := c.accessToken(ctx, scope)
	if err != nil {
		return nil, err
	}

	patientRes, err := c.fetchResource(ctx, token, "Patient", ids.Patient)
	if err != nil {
		return nil, err
	}
	coverageRes, err := c.fetchResource(ctx, token, "Coverage", ids.Coverage)
	if err != nil {
		return nil, err
	}

	snap := &model.PatientSnapshot{}
	if err := flattenPatient(patientRes, snap); err != nil {
		return nil, err
	}
	if err := flattenCoverage(coverageRes, snap); err != nil {
		return nil, err
	}

	if ids.AllergyIntolerance != "" {
		res, err := c.fetchResource(ctx, token, "AllergyIntolerance", ids.AllergyIntolerance)
		if err != nil {
			logger.Warn("allergy fetch failed, section left absent", zap.Error(err))
		} else {
			snap.Allergy = ParseAllergy(unwrapBundle(res, "AllergyIntolerance"))
		}
	}
	if ids.Condition != "" {
		res, err := c.fetchResource(ctx, token, "Condition", ids.Condition)
		if err != nil {
			logger.Warn("condition fetch failed, section left absent", zap.Error(err))
		} else {
			snap.Condition = ParseCondition(res)
		}
	}
	if ids.DiagnosticReport != "" {
		res, err := c.fetchResource(ctx, token, "DiagnosticReport", ids.DiagnosticReport)
		if err != nil {
			logger.Warn("diagnostic report fetch failed, section left absent", zap.Error(err))
		} else {
			snap.DiagnosticReport = ParseDiagnosticReport(res)
		}
	}
	logger.Info("patient snapshot loaded",
		zap.String("mrn", snap.MRN),
		zap.Bool("allergy", snap.Allergy != nil),
		zap.Bool("condition", snap.Condition != nil),
		zap.Bool("diagnostic_report", snap.DiagnosticReport != nil),
	)
	return snap, nil
}

// unwrapBundle returns the first matching resource from a search bundle, or
// the input itself when it already is a plain resource.
func unwrapBundle(res map[string]interface{}, resourceType string) map[string]interface{} {
	if getString(res, "resourceType") != "Bundle" {
		return res
	}
	for _, raw := range getList(res, "entry") {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		resource := getMap(entry, "resource")
		if getString(resource, "resourceType") == resourceType {
			return resource
		}
	}
	return nil
}
