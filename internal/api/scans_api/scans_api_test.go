package scans_api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BearBump/ScanBox/internal/cache/rediscache"
	"github.com/BearBump/ScanBox/internal/carrier"
	"github.com/BearBump/ScanBox/internal/models"
	"github.com/BearBump/ScanBox/internal/services/scans"
	"github.com/BearBump/ScanBox/internal/storage/memscans"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

const testToken = "secret"

type response struct {
	Success         bool            `json:"success"`
	Data            json.RawMessage `json:"data"`
	Error           string          `json:"error"`
	Kind            string          `json:"kind"`
	AcceptedLengths []carrier.Rule  `json:"acceptedLengths"`
}

func newServer(t *testing.T, api *ScansAPI) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(api.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string, body any, hdr map[string]string) (int, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestScansAPI_Flow(t *testing.T) {
	svc := scans.New(memscans.New(), carrier.Default(), nil, 0)
	srv := newServer(t, New(svc, testToken))

	code, out := do(t, http.MethodPost, srv.URL+"/scans", submitRequest{TrackingNumber: "98765432101", SerialNumber: "SN-1"}, nil)
	require.Equal(t, http.StatusCreated, code)
	require.True(t, out.Success)

	var rec models.ScanRecord
	require.NoError(t, json.Unmarshal(out.Data, &rec))
	require.Equal(t, models.CarrierMercadoLibre, rec.Carrier)
	require.NotEmpty(t, rec.ID)
	require.False(t, rec.ScannedAt.IsZero())

	code, out = do(t, http.MethodPost, srv.URL+"/scans", submitRequest{TrackingNumber: "98765432101", SerialNumber: "SN-1"}, nil)
	require.Equal(t, http.StatusConflict, code)
	require.False(t, out.Success)
	require.Equal(t, "DuplicateScan", out.Kind)

	code, out = do(t, http.MethodGet, srv.URL+"/scans/"+rec.ID, nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.True(t, out.Success)

	code, out = do(t, http.MethodDelete, srv.URL+"/scans/"+rec.ID, nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{}`, string(out.Data))

	code, out = do(t, http.MethodDelete, srv.URL+"/scans/"+rec.ID, nil, nil)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "NotFound", out.Kind)

	code, _ = do(t, http.MethodGet, srv.URL+"/scans/"+rec.ID, nil, nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestScansAPI_ValidationErrors(t *testing.T) {
	svc := scans.New(memscans.New(), carrier.Default(), nil, 0)
	srv := newServer(t, New(svc, testToken))

	code, out := do(t, http.MethodPost, srv.URL+"/scans", submitRequest{TrackingNumber: "98765432101"}, nil)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "MissingField", out.Kind)

	code, out = do(t, http.MethodPost, srv.URL+"/scans", submitRequest{TrackingNumber: "12345", SerialNumber: "SN"}, nil)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "InvalidTrackingNumber", out.Kind)
	require.Equal(t, carrier.DefaultRules(), out.AcceptedLengths)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/scans", bytes.NewBufferString("{"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestScansAPI_Unauthorized(t *testing.T) {
	svc := scans.New(memscans.New(), carrier.Default(), nil, 0)
	srv := newServer(t, New(svc, testToken))

	resp, err := http.Get(srv.URL + "/carriers")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/carriers", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: testToken})
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestScansAPI_EmptyTokenDeniesAll(t *testing.T) {
	svc := scans.New(memscans.New(), carrier.Default(), nil, 0)
	srv := newServer(t, New(svc, ""))

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/carriers", nil)
	req.Header.Set("Authorization", "Bearer ")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestScansAPI_CarriersAndClassify(t *testing.T) {
	svc := scans.New(memscans.New(), carrier.Default(), nil, 0)
	srv := newServer(t, New(svc, testToken))

	code, out := do(t, http.MethodGet, srv.URL+"/carriers", nil, nil)
	require.Equal(t, http.StatusOK, code)
	var rules []carrier.Rule
	require.NoError(t, json.Unmarshal(out.Data, &rules))
	require.Equal(t, carrier.DefaultRules(), rules)

	code, out = do(t, http.MethodPost, srv.URL+"/carriers/classify", classifyRequest{TrackingNumber: "9876 5432 1012"}, nil)
	require.Equal(t, http.StatusOK, code)
	var cl classifyResponse
	require.NoError(t, json.Unmarshal(out.Data, &cl))
	require.Equal(t, models.CarrierDeprisa, cl.Carrier)
	require.Equal(t, "987654321012", cl.TrackingNumber)

	code, out = do(t, http.MethodPost, srv.URL+"/carriers/classify", classifyRequest{TrackingNumber: "1"}, nil)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "InvalidTrackingNumber", out.Kind)
}

func TestScansAPI_SubmitRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := rediscache.NewRateLimiter(mr.Addr())

	svc := scans.New(memscans.New(), carrier.Default(), nil, 0)
	srv := newServer(t, New(svc, testToken).WithSubmitRateLimit(rl, 2).WithTrustedStationHeader(true))
	st1 := map[string]string{stationHeader: "dock-1"}

	for _, serial := range []string{"A", "B"} {
		code, _ := do(t, http.MethodPost, srv.URL+"/scans", submitRequest{TrackingNumber: "98765432101", SerialNumber: serial}, st1)
		require.Equal(t, http.StatusCreated, code)
	}
	code, out := do(t, http.MethodPost, srv.URL+"/scans", submitRequest{TrackingNumber: "98765432101", SerialNumber: "C"}, st1)
	require.Equal(t, http.StatusTooManyRequests, code)
	require.Equal(t, "RateLimited", out.Kind)
	require.True(t, mr.Exists("scanbox:rl:submit:dock-1"))

	code, _ = do(t, http.MethodPost, srv.URL+"/scans", submitRequest{TrackingNumber: "98765432101", SerialNumber: "C"}, map[string]string{stationHeader: "dock-2"})
	require.Equal(t, http.StatusCreated, code)
}

func TestScansAPI_SubmitRateLimit_HeaderIgnoredByDefault(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := rediscache.NewRateLimiter(mr.Addr())

	svc := scans.New(memscans.New(), carrier.Default(), nil, 0)
	srv := newServer(t, New(svc, testToken).WithSubmitRateLimit(rl, 2))

	// новая станция в заголовке на каждый запрос не обходит лимит
	for i, serial := range []string{"A", "B"} {
		code, _ := do(t, http.MethodPost, srv.URL+"/scans", submitRequest{TrackingNumber: "98765432101", SerialNumber: serial},
			map[string]string{stationHeader: fmt.Sprintf("dock-%d", i)})
		require.Equal(t, http.StatusCreated, code)
	}
	code, out := do(t, http.MethodPost, srv.URL+"/scans", submitRequest{TrackingNumber: "98765432101", SerialNumber: "C"},
		map[string]string{stationHeader: "dock-99"})
	require.Equal(t, http.StatusTooManyRequests, code)
	require.Equal(t, "RateLimited", out.Kind)
	require.True(t, mr.Exists("scanbox:rl:submit:127.0.0.1"))
	require.False(t, mr.Exists("scanbox:rl:submit:dock-99"))
}

func TestStationID(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/scans", nil)
	r.RemoteAddr = "10.0.0.7:51234"
	r.Header.Set(stationHeader, " dock-3 ")

	require.Equal(t, "10.0.0.7", stationID(r, false))
	require.Equal(t, "dock-3", stationID(r, true))

	r.Header.Del(stationHeader)
	require.Equal(t, "10.0.0.7", stationID(r, true))
}

type failingLimiter struct{}

func (failingLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, time.Duration, error) {
	return false, 0, errors.New("redis down")
}

func TestRetryAfterSeconds(t *testing.T) {
	require.Equal(t, 1, retryAfterSeconds(0))
	require.Equal(t, 1, retryAfterSeconds(300*time.Millisecond))
	require.Equal(t, 2, retryAfterSeconds(1500*time.Millisecond))
	require.Equal(t, 60, retryAfterSeconds(time.Minute))
}

func TestScansAPI_RateLimiterErrorFailsOpen(t *testing.T) {
	svc := scans.New(memscans.New(), carrier.Default(), nil, 0)
	srv := newServer(t, New(svc, testToken).WithSubmitRateLimit(failingLimiter{}, 1))

	code, _ := do(t, http.MethodPost, srv.URL+"/scans", submitRequest{TrackingNumber: "98765432101", SerialNumber: "A"}, nil)
	require.Equal(t, http.StatusCreated, code)
}

type brokenRepo struct{ *memscans.Storage }

func (brokenRepo) InsertUnique(ctx context.Context, rec *models.ScanRecord) (*models.ScanRecord, error) {
	return nil, errors.New("pg: connection refused")
}

func TestScansAPI_StorageFailureHidesDetails(t *testing.T) {
	svc := scans.New(brokenRepo{memscans.New()}, carrier.Default(), nil, 0)
	srv := newServer(t, New(svc, testToken))

	code, out := do(t, http.MethodPost, srv.URL+"/scans", submitRequest{TrackingNumber: "98765432101", SerialNumber: "A"}, nil)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "StorageFailure", out.Kind)
	require.NotContains(t, out.Error, "connection refused")
}
