package apiclient

import "fmt"

// Session is one live channel session as reported by the daemon.
type Session struct {
	Token    string `json:"token"`
	CallerID string `json:"caller_id"`
	HostID   string `json:"host_id"`
}

// Quota is one caller's remaining spendable quota.
type Quota struct {
	Caller string `json:"caller"`
	Quota  int64  `json:"quota"`
}

// sessionList is the wire shape of the session listing endpoint.
type sessionList struct {
	Sessions []Session `json:"sessions"`
}

// ListSessions returns all live sessions.
func (c *Client) ListSessions() ([]Session, error) {
	var list sessionList
	if err := c.get("/api/v1/sessions", &list); err != nil {
		return nil, err
	}
	return list.Sessions, nil
}

// GetQuota returns the remaining quota for a caller.
func (c *Client) GetQuota(caller string) (*Quota, error) {
	var quota Quota
	if err := c.get(fmt.Sprintf("/api/v1/quotas/%s", caller), &quota); err != nil {
		return nil, err
	}
	return &quota, nil
}

// grantRequest is the body of the quota grant endpoint.
type grantRequest struct {
	Amount int64 `json:"amount"`
}

// GrantQuota raises a caller's quota by amount and returns the new total.
func (c *Client) GrantQuota(caller string, amount int64) (*Quota, error) {
	var quota Quota
	path := fmt.Sprintf("/api/v1/quotas/%s/grant", caller)
	if err := c.post(path, grantRequest{Amount: amount}, &quota); err != nil {
		return nil, err
	}
	return &quota, nil
}

// Health checks the daemon's liveness endpoint.
func (c *Client) Health() error {
	return c.get("/health", nil)
}
