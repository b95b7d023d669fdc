package client

import (
	"bytes"          // Request bodies
	"context"        // Request scoping
	"encoding/json"  // Wire format
	"fmt"            // Error formatting
	"io"             // Body reading
	"mime/multipart" // Receipt upload encoding
	"net/http"       // HTTP transport
	"net/textproto"  // Multipart part headers
	"net/url"        // Path escaping
	"strings"        // URL joining
	"time"           // Client timeout

	"receipt_desk/internal/domain"  // Ticket model
	"receipt_desk/internal/service" // Analysis result

	"github.com/sirupsen/logrus" // Logging library
)

// APIError is a non-2xx response from the server
type APIError struct {
	StatusCode int
	Message    string
	Details    string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Message, e.Details)
	}
	return fmt.Sprintf("%d %s", e.StatusCode, e.Message)
}

// Client talks to the ticket API. Read calls degrade to empty results on
// failure; write calls return the error so the caller can report it.
type Client struct {
	BaseURL string       // Server root, e.g. http://localhost:3001
	Token   string       // Admin bearer token, empty for public calls
	HTTP    *http.Client // Underlying transport
}

// New returns a client with a bounded request timeout
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Submission is a new ticket with its receipt file
type Submission struct {
	UserID             string
	RecipientName      string
	RecipientIban      string
	InvestmentMethod   string
	InvestmentAmount   string
	InvestmentDateTime string
	FileName           string
	ContentType        string
	File               []byte
}

// Update carries the reviewer fields to change; nil fields are left alone
type Update struct {
	Status    *string `json:"status,omitempty"`
	AdminNote *string `json:"adminNote,omitempty"`
}

// Login is the response of a successful admin login
type Login struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Admin     struct {
		ID       uint   `json:"id"`
		Username string `json:"username"`
	} `json:"admin"`
}

// ListTickets returns tickets matching the filters, or an empty slice on failure
func (c *Client) ListTickets(ctx context.Context, status, search, userID string) []domain.Ticket {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if search != "" {
		q.Set("search", search)
	}
	if userID != "" {
		q.Set("userId", userID)
	}
	path := "/tickets"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var tickets []domain.Ticket
	if err := c.do(ctx, http.MethodGet, path, nil, "", &tickets); err != nil {
		logrus.WithFields(logrus.Fields{"path": path, "error": err.Error()}).Warn("List tickets failed")
		return []domain.Ticket{}
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return tickets
}

// GetTicket returns the ticket, or nil when it is missing or the call fails
func (c *Client) GetTicket(ctx context.Context, id uint) *domain.Ticket {
	var ticket domain.Ticket
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/tickets/%d", id), nil, "", &ticket); err != nil {
		logrus.WithFields(logrus.Fields{"ticket_id": id, "error": err.Error()}).Warn("Get ticket failed")
		return nil
	}
	return &ticket
}

// GetTicketsByUser returns one submitter's tickets, or an empty slice on failure
func (c *Client) GetTicketsByUser(ctx context.Context, userID string) []domain.Ticket {
	var tickets []domain.Ticket
	if err := c.do(ctx, http.MethodGet, "/tickets/user/"+url.PathEscape(userID), nil, "", &tickets); err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Warn("Get user tickets failed")
		return []domain.Ticket{}
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return tickets
}

// CreateTicket uploads a submission as multipart form data
func (c *Client) CreateTicket(ctx context.Context, s Submission) (*domain.Ticket, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"userId", s.UserID},
		{"recipientName", s.RecipientName},
		{"recipientIban", s.RecipientIban},
		{"investmentMethod", s.InvestmentMethod},
		{"investmentAmount", s.InvestmentAmount},
		{"investmentDateTime", s.InvestmentDateTime},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, err
		}
	}
	contentType := s.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(s.File)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="receipt"; filename=%q`, s.FileName))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(s.File); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	var ticket domain.Ticket
	if err := c.do(ctx, http.MethodPost, "/tickets", &buf, mw.FormDataContentType(), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// UpdateTicket changes the status and/or admin note
func (c *Client) UpdateTicket(ctx context.Context, id uint, u Update) (*domain.Ticket, error) {
	body, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}
	var ticket domain.Ticket
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/tickets/%d", id), bytes.NewReader(body), "application/json", &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// DeleteTicket removes the ticket and its receipt
func (c *Client) DeleteTicket(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/tickets/%d", id), nil, "", nil)
}

// Analyze runs the receipt heuristics. An empty text asks the server to OCR the receipt.
func (c *Client) Analyze(ctx context.Context, id uint, text string) (*service.AnalysisResult, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	var result service.AnalysisResult
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/tickets/%d/analysis", id), bytes.NewReader(body), "application/json", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Login opens an admin session and keeps its token on the client
func (c *Client) Login(ctx context.Context, username, password string) (*Login, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return nil, err
	}
	var login Login
	if err := c.do(ctx, http.MethodPost, "/auth/login", bytes.NewReader(body), "application/json", &login); err != nil {
		return nil, err
	}
	c.Token = login.Token
	return &login, nil
}

// Logout revokes the current session and forgets the token
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/auth/logout", nil, "", nil); err != nil {
		return err
	}
	c.Token = ""
	return nil
}

// Health returns the server health report. A degraded server answers 503
// with the same body, which is returned together with the APIError.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var report map[string]any
	err := c.do(ctx, http.MethodGet, "/health", nil, "", &report)
	return report, err
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var payload struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Details = payload.Details
		}
		if out != nil {
			_ = json.Unmarshal(data, out) // Health keeps its body on 503
		}
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
