// Package notify delivers Web Push notifications for terminal run-state
// changes: when a command in a non-active terminal finishes or fails, the
// browser gets a push even if the dispatcher tab is backgrounded.
package notify

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	webpush "github.com/SherClockHolmes/webpush-go"
)

const (
	vapidFile = "vapid.json"
	subsFile  = "push-subscriptions.json"
)

// Manager owns the VAPID key pair and the set of push subscriptions. Both are
// persisted under stateDir so subscriptions survive a daemon restart.
type Manager struct {
	mu       sync.Mutex
	logger   *slog.Logger
	stateDir string

	vapidPrivate string
	vapidPublic  string
	subs         map[string]*webpush.Subscription // keyed by endpoint
}

type vapidKeys struct {
	PrivateKey string `json:"privateKey"`
	PublicKey  string `json:"publicKey"`
}

// NewManager loads (or generates and saves) the VAPID key pair and restores
// any persisted subscriptions. State lives under ~/.config/dispatcher.
func NewManager(logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	home, _ := os.UserHomeDir()
	m := &Manager{
		logger:   logger,
		stateDir: filepath.Join(home, ".config", "dispatcher"),
		subs:     make(map[string]*webpush.Subscription),
	}
	if err := m.loadOrGenerateVAPID(); err != nil {
		return nil, err
	}
	m.loadSubscriptions()
	return m, nil
}

func (m *Manager) VAPIDPublicKey() string {
	return m.vapidPublic
}

// Subscribe registers a browser's push subscription, replacing any previous
// subscription for the same endpoint.
func (m *Manager) Subscribe(sub *webpush.Subscription) {
	m.mu.Lock()
	m.subs[sub.Endpoint] = sub
	m.saveSubscriptionsLocked()
	m.mu.Unlock()
	m.logger.Info("push subscription added", "endpoint", truncateEndpoint(sub.Endpoint))
}

func (m *Manager) Unsubscribe(endpoint string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[endpoint]; ok {
		delete(m.subs, endpoint)
		m.saveSubscriptionsLocked()
	}
}

// TerminalStatus pushes a run-state change for one terminal to every
// subscriber. Endpoints the push service reports as gone are dropped.
func (m *Manager) TerminalStatus(terminalID, title, status string, exitCode *int) {
	payload, err := json.Marshal(map[string]any{
		"type":       "terminal_status",
		"terminalId": terminalID,
		"title":      title,
		"status":     status,
		"exitCode":   exitCode,
	})
	if err != nil {
		m.logger.Debug("push payload encode failed", "err", err)
		return
	}
	m.Send(payload)
}

// Send pushes an opaque payload to every subscriber.
func (m *Manager) Send(payload []byte) {
	m.mu.Lock()
	subs := make([]*webpush.Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.mu.Unlock()

	var dead []string
	for _, sub := range subs {
		resp, err := webpush.SendNotification(payload, sub, &webpush.Options{
			VAPIDPublicKey:  m.vapidPublic,
			VAPIDPrivateKey: m.vapidPrivate,
			Subscriber:      "mailto:dispatcher@localhost",
		})
		if err != nil {
			m.logger.Debug("push send failed", "endpoint", truncateEndpoint(sub.Endpoint), "err", err)
			continue
		}
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			dead = append(dead, sub.Endpoint)
		}
		resp.Body.Close()
	}

	if len(dead) > 0 {
		m.mu.Lock()
		for _, ep := range dead {
			delete(m.subs, ep)
		}
		m.saveSubscriptionsLocked()
		m.mu.Unlock()
		m.logger.Info("pruned dead push subscriptions", "count", len(dead))
	}
}

func (m *Manager) loadOrGenerateVAPID() error {
	path := filepath.Join(m.stateDir, vapidFile)

	if data, err := os.ReadFile(path); err == nil {
		var keys vapidKeys
		if err := json.Unmarshal(data, &keys); err == nil && keys.PrivateKey != "" {
			m.vapidPrivate = keys.PrivateKey
			m.vapidPublic = keys.PublicKey
			return nil
		}
	}

	privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate VAPID key: %w", err)
	}
	privBytes, err := x509.MarshalECPrivateKey(privKey)
	if err != nil {
		return fmt.Errorf("marshal VAPID key: %w", err)
	}
	pubBytes := elliptic.Marshal(elliptic.P256(), privKey.PublicKey.X, privKey.PublicKey.Y)

	m.vapidPrivate = base64.RawURLEncoding.EncodeToString(privBytes)
	m.vapidPublic = base64.RawURLEncoding.EncodeToString(pubBytes)

	if err := os.MkdirAll(m.stateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, _ := json.MarshalIndent(vapidKeys{PrivateKey: m.vapidPrivate, PublicKey: m.vapidPublic}, "", "  ")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("save VAPID keys: %w", err)
	}
	m.logger.Info("generated new VAPID keys")
	return nil
}

// loadSubscriptions is best-effort: a missing or corrupt file just means an
// empty subscriber set.
func (m *Manager) loadSubscriptions() {
	data, err := os.ReadFile(filepath.Join(m.stateDir, subsFile))
	if err != nil {
		return
	}
	var subs []*webpush.Subscription
	if err := json.Unmarshal(data, &subs); err != nil {
		return
	}
	m.mu.Lock()
	for _, sub := range subs {
		m.subs[sub.Endpoint] = sub
	}
	m.mu.Unlock()
}

func (m *Manager) saveSubscriptionsLocked() {
	subs := make([]*webpush.Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	data, err := json.Marshal(subs)
	if err != nil {
		return
	}
	if err := os.WriteFile(filepath.Join(m.stateDir, subsFile), data, 0o600); err != nil {
		m.logger.Debug("failed to persist push subscriptions", "err", err)
	}
}

func truncateEndpoint(ep string) string {
	if len(ep) > 50 {
		return ep[:50] + "..."
	}
	return ep
}
