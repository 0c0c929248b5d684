package sheets

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyPEM(t *testing.T) string {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func TestAppendWithServiceAccount(t *testing.T) {
	var gotAuth, gotPath, gotQuery string
	var gotBody struct {
		Values [][]interface{} `json:"values"`
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "urn:ietf:params:oauth:grant-type:jwt-bearer", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"sheet-token","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v4/spreadsheets/", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"spreadsheetId":"sheet-1","updates":{"updatedRows":2}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	key := strings.ReplaceAll(testKeyPEM(t), "\n", `\n`)
	client, err := New(context.Background(), Config{
		ClientEmail: "svc@project.iam.gserviceaccount.com",
		PrivateKey:  key,
		SheetID:     "sheet-1",
		Tab:         "Reportes",
		BaseURL:     srv.URL,
		TokenURL:    srv.URL + "/token",
	})
	require.NoError(t, err)

	n, err := client.Append(context.Background(), [][]interface{}{
		{"2024-05-01", "ACME", "ana@acme.com", "", 123.45, "", "pending", "sub-1"},
		{"2024-05-02", "ACME", "ana@acme.com", "", 10, "", "approved", "sub-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "Bearer sheet-token", gotAuth)
	assert.Equal(t, "/v4/spreadsheets/sheet-1/values/Reportes!A1:append", gotPath)
	assert.Contains(t, gotQuery, "valueInputOption=USER_ENTERED")
	assert.Contains(t, gotQuery, "insertDataOption=INSERT_ROWS")
	require.Len(t, gotBody.Values, 2)
	assert.Equal(t, "sub-2", gotBody.Values[1][7])
}

func TestAppendHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"no access","status":"PERMISSION_DENIED"}}`))
	}))
	defer srv.Close()

	client, err := NewWithHTTPClient(context.Background(), srv.Client(), srv.URL, "sheet-1", "Tab")
	require.NoError(t, err)
	_, err = client.Append(context.Background(), [][]interface{}{{"x"}})
	require.Error(t, err)
	assert.Equal(t, "sheets append failed: HTTP 403: no access", err.Error())
}

func TestAppendNoRows(t *testing.T) {
	client, err := NewWithHTTPClient(context.Background(), http.DefaultClient, "http://unused.invalid", "s", "t")
	require.NoError(t, err)
	n, err := client.Append(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewRequiresConfiguration(t *testing.T) {
	_, err := New(context.Background(), Config{ClientEmail: "a", SheetID: "b"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
