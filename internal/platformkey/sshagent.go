// ABOUTME: ssh-agent backed Provider that signs the vault seed with an agent identity
// ABOUTME: Creates and persists an ed25519 identity on first use when none is loaded

package platformkey

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// SSHAgentConfig selects the agent and the identity used for signing.
type SSHAgentConfig struct {
	SocketPath   string // usually $SSH_AUTH_SOCK
	Account      string // agent key comment identifying the vault identity
	IdentityFile string // where a created identity is persisted
	Fingerprint  string // optional SHA256:... of a pre-loaded key
}

// Dialer opens a connection to the agent.
type Dialer func(ctx context.Context) (net.Conn, error)

// SSHAgentProvider implements Provider on top of an ssh-agent.
type SSHAgentProvider struct {
	cfg    SSHAgentConfig
	dial   Dialer
	logger *slog.Logger
	mu     sync.Mutex // serialises identity creation
}

// SSHAgentOption configures an SSHAgentProvider.
type SSHAgentOption func(*SSHAgentProvider)

// WithDialer replaces the unix socket dialer, mainly for tests.
func WithDialer(d Dialer) SSHAgentOption {
	return func(p *SSHAgentProvider) {
		p.dial = d
	}
}

// WithLogger sets the provider's logger.
func WithLogger(l *slog.Logger) SSHAgentOption {
	return func(p *SSHAgentProvider) {
		p.logger = l
	}
}

// NewSSHAgentProvider creates a provider for the agent at cfg.SocketPath.
func NewSSHAgentProvider(cfg SSHAgentConfig, opts ...SSHAgentOption) *SSHAgentProvider {
	p := &SSHAgentProvider{
		cfg:    cfg,
		logger: slog.Default().With("component", "platformkey"),
	}
	p.dial = p.dialSocket
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *SSHAgentProvider) dialSocket(ctx context.Context) (net.Conn, error) {
	if p.cfg.SocketPath == "" {
		return nil, errors.New("no agent socket configured")
	}
	var d net.Dialer
	return d.DialContext(ctx, "unix", p.cfg.SocketPath)
}

// connect dials the agent and applies the context deadline to the connection.
func (p *SSHAgentProvider) connect(ctx context.Context) (net.Conn, agent.ExtendedAgent, error) {
	conn, err := p.dial(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: connecting to agent: %v", ErrUnavailable, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	return conn, agent.NewClient(conn), nil
}

// Available implements Provider. The agent must accept a connection and
// answer a key listing.
func (p *SSHAgentProvider) Available(ctx context.Context) bool {
	conn, client, err := p.connect(ctx)
	if err != nil {
		p.logger.Debug("ssh-agent not reachable", "error", err)
		return false
	}
	defer conn.Close()

	if _, err := client.List(); err != nil {
		p.logger.Debug("ssh-agent did not answer", "error", err)
		return false
	}
	return true
}

// DeriveKey implements Provider.
func (p *SSHAgentProvider) DeriveKey(ctx context.Context, seed []byte) ([]byte, error) {
	conn, client, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	pub, err := p.identity(client)
	if err != nil {
		return nil, err
	}

	var flags agent.SignatureFlags
	if pub.Type() == ssh.KeyAlgoRSA {
		flags = agent.SignatureFlagRsaSha256
	}
	sig, err := client.SignWithFlags(pub, seed, flags)
	if err != nil {
		return nil, fmt.Errorf("%w: agent refused to sign: %v", ErrUnavailable, err)
	}
	defer memguard.WipeBytes(sig.Blob)

	sum := sha256.Sum256(sig.Blob)
	key := make([]byte, KeySize)
	copy(key, sum[:])
	memguard.WipeBytes(sum[:])

	p.logger.Debug("derived envelope key", "identity", ssh.FingerprintSHA256(pub))
	return key, nil
}

// identity finds or creates the signing identity inside the agent.
func (p *SSHAgentProvider) identity(client agent.ExtendedAgent) (ssh.PublicKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys, err := client.List()
	if err != nil {
		return nil, fmt.Errorf("%w: listing agent keys: %v", ErrUnavailable, err)
	}

	if p.cfg.Fingerprint != "" {
		for _, k := range keys {
			if ssh.FingerprintSHA256(k) == p.cfg.Fingerprint {
				return k, checkDeterministic(k)
			}
		}
		return nil, fmt.Errorf("%w: no agent key with fingerprint %s", ErrUnavailable, p.cfg.Fingerprint)
	}

	for _, k := range keys {
		if k.Comment == p.cfg.Account {
			return k, checkDeterministic(k)
		}
	}

	priv, err := p.loadOrCreateIdentity()
	if err != nil {
		return nil, err
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, fmt.Errorf("building signer for identity: %w", err)
	}
	if err := checkDeterministic(signer.PublicKey()); err != nil {
		return nil, err
	}
	if err := client.Add(agent.AddedKey{PrivateKey: priv, Comment: p.cfg.Account}); err != nil {
		return nil, fmt.Errorf("%w: adding identity to agent: %v", ErrUnavailable, err)
	}

	p.logger.Info("loaded vault identity into ssh-agent",
		"account", p.cfg.Account,
		"identity", ssh.FingerprintSHA256(signer.PublicKey()),
	)
	return signer.PublicKey(), nil
}

// loadOrCreateIdentity reads the identity file, generating it on first use.
func (p *SSHAgentProvider) loadOrCreateIdentity() (any, error) {
	if p.cfg.IdentityFile == "" {
		return nil, fmt.Errorf("%w: no identity in agent and no identity file configured", ErrUnavailable)
	}

	data, err := os.ReadFile(p.cfg.IdentityFile)
	if err == nil {
		defer memguard.WipeBytes(data)
		key, err := ssh.ParseRawPrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("parsing identity file %s: %w", p.cfg.IdentityFile, err)
		}
		if k, ok := key.(*ed25519.PrivateKey); ok {
			return *k, nil
		}
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating identity: %w", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, p.cfg.Account)
	if err != nil {
		return nil, fmt.Errorf("encoding identity: %w", err)
	}
	encoded := pem.EncodeToMemory(block)
	defer memguard.WipeBytes(encoded)

	if err := os.MkdirAll(filepath.Dir(p.cfg.IdentityFile), 0700); err != nil {
		return nil, fmt.Errorf("creating identity directory: %w", err)
	}
	f, err := os.OpenFile(p.cfg.IdentityFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("creating identity file: %w", err)
	}
	if _, err := f.Write(encoded); err != nil {
		f.Close()
		os.Remove(p.cfg.IdentityFile)
		return nil, fmt.Errorf("writing identity file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing identity file: %w", err)
	}

	p.logger.Info("created vault identity", "path", p.cfg.IdentityFile)
	return priv, nil
}

func checkDeterministic(k ssh.PublicKey) error {
	switch k.Type() {
	case ssh.KeyAlgoED25519, ssh.KeyAlgoRSA:
		return nil
	default:
		return fmt.Errorf("%w: key type %s", ErrNondeterministicKey, k.Type())
	}
}
