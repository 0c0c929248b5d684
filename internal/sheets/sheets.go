package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

const (
	DefaultBaseURL  = "https://sheets.googleapis.com/"
	DefaultTokenURL = "https://oauth2.googleapis.com/token"
	Scope           = gsheets.SpreadsheetsScope
)

var ErrNotConfigured = errors.New("Google Sheets environment variables are not fully configured")

// Appender appends rows to the end of a spreadsheet tab.
type Appender interface {
	Append(ctx context.Context, rows [][]interface{}) (int, error)
}

type Config struct {
	ClientEmail string
	PrivateKey  string
	SheetID     string
	Tab         string
	BaseURL     string
	TokenURL    string
}

func (c Config) complete() bool {
	return c.ClientEmail != "" && c.PrivateKey != "" && c.SheetID != "" && c.Tab != ""
}

// Client appends to one tab of a spreadsheet through the Sheets v4 API.
type Client struct {
	values  *gsheets.SpreadsheetsValuesService
	sheetID string
	tab     string
}

// New builds a Client authenticated as the configured service account.
// The private key may carry literal "\n" sequences as stored in env files.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if !cfg.complete() {
		return nil, ErrNotConfigured
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	jwtConf := &jwt.Config{
		Email:      cfg.ClientEmail,
		PrivateKey: []byte(strings.ReplaceAll(cfg.PrivateKey, `\n`, "\n")),
		Scopes:     []string{Scope},
		TokenURL:   tokenURL,
	}
	return NewWithHTTPClient(ctx, jwtConf.Client(ctx), cfg.BaseURL, cfg.SheetID, cfg.Tab)
}

// NewWithHTTPClient uses an already authenticated HTTP client.
func NewWithHTTPClient(ctx context.Context, client *http.Client, baseURL, sheetID, tab string) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	svc, err := gsheets.NewService(ctx,
		option.WithHTTPClient(client),
		option.WithEndpoint(strings.TrimRight(baseURL, "/")+"/"),
	)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{values: svc.Spreadsheets.Values, sheetID: sheetID, tab: tab}, nil
}

// Append writes rows after the last row of the tab and returns how many were appended.
func (c *Client) Append(ctx context.Context, rows [][]interface{}) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	resp, err := c.values.Append(c.sheetID, c.tab+"!A1", &gsheets.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return 0, fmt.Errorf("sheets append failed: HTTP %d: %s", apiErr.Code, apiErr.Message)
		}
		return 0, fmt.Errorf("sheets append request failed: %w", err)
	}
	if resp.Updates == nil {
		return 0, nil
	}
	return int(resp.Updates.UpdatedRows), nil
}
