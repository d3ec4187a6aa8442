package desk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tradedesk/internal/domain"
	"tradedesk/internal/gateway/broker"
	"tradedesk/internal/logger"
	"tradedesk/internal/pkg/keylock"
	"tradedesk/internal/store/model"
)

// credentialFunc materialises plaintext credentials for one login.
type credentialFunc func(client *model.Client) (broker.Credentials, error)

type cachedSession struct {
	session broker.Session
	expires time.Time
}

// SessionCache 按客户 id 缓存券商会话，过期或鉴权失败后重新登录。
type SessionCache struct {
	connector broker.Connector
	ttl       time.Duration
	creds     credentialFunc
	logins    *keylock.Map
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]cachedSession
}

// NewSessionCache builds a cache; ttl <= 0 disables caching and logs in for every unit.
func NewSessionCache(connector broker.Connector, ttl time.Duration, creds credentialFunc) *SessionCache {
	return &SessionCache{
		connector: connector,
		ttl:       ttl,
		creds:     creds,
		logins:    keylock.New(),
		now:       time.Now,
		entries:   make(map[string]cachedSession),
	}
}

// Get returns a live session for client, logging in on a miss. Concurrent misses for the
// same client share one login.
func (c *SessionCache) Get(ctx context.Context, client *model.Client) (broker.Session, error) {
	if s, ok := c.lookup(client.ID); ok {
		return s, nil
	}
	unlock := c.logins.Lock(client.ID)
	defer unlock()
	if s, ok := c.lookup(client.ID); ok {
		return s, nil
	}

	creds, err := c.creds(client)
	if err != nil {
		return nil, err
	}
	sess, err := c.connector.Connect(ctx, creds)
	if err != nil {
		return nil, err
	}
	if c.ttl > 0 {
		c.mu.Lock()
		c.entries[client.ID] = cachedSession{session: sess, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
	}
	return sess, nil
}

func (c *SessionCache) lookup(clientID string) (broker.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[clientID]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, clientID)
		return nil, false
	}
	return e.session, true
}

// Invalidate drops the cached session for clientID.
func (c *SessionCache) Invalidate(clientID string) {
	c.mu.Lock()
	delete(c.entries, clientID)
	c.mu.Unlock()
}

// Observe evicts the session when err says the broker no longer accepts it.
func (c *SessionCache) Observe(clientID string, err error) {
	if errors.Is(err, domain.ErrAuthenticationFailed) {
		c.Invalidate(clientID)
	}
}

// Len reports the number of cached sessions, expired or not.
func (c *SessionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close logs every cached session out, best effort.
func (c *SessionCache) Close(ctx context.Context) {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[string]cachedSession)
	c.mu.Unlock()
	for id, e := range entries {
		if err := e.session.Logout(ctx); err != nil {
			logger.With("client_id", id).Debugf("logout failed: %v", err)
		}
	}
}

// credentials decrypts the stored key pair and loads the login secrets.
func (d *Desk) credentials(client *model.Client) (broker.Credentials, error) {
	apiKey, err := d.cipher.DecryptString(client.APIKeyEncrypted)
	if err != nil {
		return broker.Credentials{}, fmt.Errorf("decrypt api key: %w", err)
	}
	apiSecret, err := d.cipher.DecryptString(client.APISecretEncrypted)
	if err != nil {
		return broker.Credentials{}, fmt.Errorf("decrypt api secret: %w", err)
	}
	login, err := d.secrets.Login(client.ClientCode)
	if err != nil {
		return broker.Credentials{}, err
	}
	return broker.Credentials{
		ClientCode: client.ClientCode,
		APIKey:     apiKey,
		APISecret:  apiSecret,
		Password:   login.Password,
		TwoFA:      login.TwoFA,
		TOTP:       login.TOTP,
	}, nil
}
