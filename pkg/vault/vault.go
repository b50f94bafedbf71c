// Package vault signs transaction payloads handed over by the skill runner.
// Signing is a mock: the signature is a keyed BLAKE3 digest of the payload
// under the account's secret. The secret is provisioned on first use.
package vault

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/zeebo/blake3"

	"github.com/lucci-labs/luccibot/pkg/bus"
	"github.com/lucci-labs/luccibot/pkg/domain"
	"github.com/lucci-labs/luccibot/pkg/logger"
	"github.com/lucci-labs/luccibot/pkg/orchestration"
)

const (
	// ServiceName is the key store service every vault secret lives under.
	ServiceName = "luccibot-vault"
	// DefaultAccount is the account used when none is configured.
	DefaultAccount = "default-account"
	// DefaultSignDelay paces signing so the working state is visible.
	DefaultSignDelay = 800 * time.Millisecond

	keyDerivationContext = "luccibot vault 2025 mock transaction signing"
)

type VaultError string

func (e VaultError) Error() string { return string(e) }

const (
	ErrBusy        VaultError = "vault is busy"
	ErrEmptySecret VaultError = "stored secret is empty"
)

// Options tunes the vault.
type Options struct {
	Account string
	// SignDelay is presentation pacing only. Negative means none.
	SignDelay time.Duration
	QueueSize int
	// Rand supplies key material; crypto/rand when nil.
	Rand io.Reader
}

// Signature is the result of one signing.
type Signature struct {
	TxID        string
	Account     string
	Digest      string
	Provisioned bool
}

// Vault answers sign requests from the hub.
type Vault struct {
	hub   *bus.Hub
	store KeyStore
	opts  Options
	lane  *orchestration.Lane[bus.SignRequest]
	subs  []*bus.Subscription
}

// New creates a vault over store and subscribes it to sign requests and
// shutdown. Requests are handled by Run.
func New(hub *bus.Hub, store KeyStore, opts Options) *Vault {
	if opts.Account == "" {
		opts.Account = DefaultAccount
	}
	if opts.SignDelay == 0 {
		opts.SignDelay = DefaultSignDelay
	}
	if opts.Rand == nil {
		opts.Rand = rand.Reader
	}
	v := &Vault{hub: hub, store: store, opts: opts}
	v.lane = orchestration.NewLane("vault", opts.QueueSize, func(ctx context.Context, req bus.SignRequest) {
		_, _ = v.Sign(ctx, req)
	})
	v.subs = append(v.subs,
		hub.OnSign(v.enqueue),
		hub.OnShutdown(func(bus.Shutdown) { v.lane.Stop() }),
	)
	return v
}

// Run signs queued requests until ctx is done or shutdown is published.
func (v *Vault) Run(ctx context.Context) error {
	logger.InfoCF("vault", "Vault started", map[string]interface{}{"account": v.opts.Account})
	return v.lane.Run(ctx)
}

// Close detaches the vault from the hub.
func (v *Vault) Close() {
	for _, s := range v.subs {
		s.Unsubscribe()
	}
	v.lane.Stop()
}

// Stats exposes the queue counters.
func (v *Vault) Stats() orchestration.LaneStats { return v.lane.Stats() }

func (v *Vault) enqueue(req bus.SignRequest) {
	if v.lane.Offer(req) {
		return
	}
	v.fail(req.TxID, ErrBusy)
}

// ---------------------------------------------------------------------------
// Signing
// ---------------------------------------------------------------------------

// Sign handles one request synchronously and publishes its result.
func (v *Vault) Sign(ctx context.Context, req bus.SignRequest) (*Signature, error) {
	_ = v.hub.Thought(domain.ThoughtWorking, "Vault accessing secure storage...", "")

	secret, provisioned, err := v.resolveSecret()
	if err != nil {
		v.fail(req.TxID, err)
		return nil, err
	}
	if provisioned {
		_ = v.hub.Log(domain.LevelInfo, "Created new default account in Vault.")
	}

	if err := v.pause(ctx); err != nil {
		v.fail(req.TxID, err)
		return nil, err
	}

	sig := &Signature{
		TxID:        req.TxID,
		Account:     v.opts.Account,
		Digest:      digest(secret, req.Payload),
		Provisioned: provisioned,
	}
	logger.InfoCF("vault", "Transaction signed", map[string]interface{}{
		"tx_id":       req.TxID,
		"account":     sig.Account,
		"digest":      sig.Digest,
		"description": req.Description,
	})
	_ = v.hub.Log(domain.LevelSuccess, "Transaction %s signed successfully.", shortID(req.TxID))
	_ = v.hub.Thought(domain.ThoughtIdle, "Ready.", "")
	return sig, nil
}

// resolveSecret returns the account secret, provisioning it when absent.
func (v *Vault) resolveSecret() (string, bool, error) {
	secret, ok, err := v.store.Get(ServiceName, v.opts.Account)
	if err != nil {
		return "", false, fmt.Errorf("read key store: %w", err)
	}
	if ok {
		if secret == "" {
			return "", false, ErrEmptySecret
		}
		return secret, false, nil
	}

	raw := make([]byte, 32)
	if _, err := io.ReadFull(v.opts.Rand, raw); err != nil {
		return "", false, fmt.Errorf("generate key: %w", err)
	}
	secret = "0x" + hex.EncodeToString(raw)
	if err := v.store.Set(ServiceName, v.opts.Account, secret); err != nil {
		return "", false, fmt.Errorf("write key store: %w", err)
	}
	logger.InfoCF("vault", "Provisioned account key", map[string]interface{}{"account": v.opts.Account})
	return secret, true, nil
}

func (v *Vault) pause(ctx context.Context) error {
	if v.opts.SignDelay <= 0 {
		return nil
	}
	t := time.NewTimer(v.opts.SignDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (v *Vault) fail(txID string, err error) {
	logger.ErrorCF("vault", "Signing failed", map[string]interface{}{
		"tx_id": txID,
		"error": err.Error(),
	})
	_ = v.hub.Log(domain.LevelError, "Signing failed: %v", err)
	_ = v.hub.Thought(domain.ThoughtError, "Signing failed.", "")
}

// digest is the mock signature: BLAKE3 keyed by a key derived from secret.
func digest(secret string, payload []byte) string {
	key := make([]byte, 32)
	blake3.DeriveKey(keyDerivationContext, []byte(secret), key)
	h, err := blake3.NewKeyed(key)
	if err != nil {
		panic("vault: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	h.Write(payload)
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

func shortID(txID string) string {
	return domain.EntityID(txID).Short(8)
}
