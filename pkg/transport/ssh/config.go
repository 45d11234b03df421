// Package ssh implements the remote execution channel: a secure session
// per host, gate bundle placement keyed by content hash, and the wire
// protocol driven over the gate runtime's stdio.
package ssh

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Config holds connection defaults applied to every remote host. Host
// entries override user, port, and key path individually.
type Config struct {
	// User is the login name when the host does not set one.
	User string

	// KeyPath is the private key used when the host does not set one.
	// Empty means try the default ~/.ssh keys, then the agent.
	KeyPath string

	// KeyPassphrase decrypts an encrypted private key.
	KeyPassphrase string

	// KnownHostsPath verifies host keys. Empty disables verification,
	// which is acceptable only for disposable test hosts.
	KnownHostsPath string

	// ConnectTimeout bounds session establishment.
	ConnectTimeout time.Duration

	// SessionReady bounds the wait for the gate's hello after launch.
	SessionReady time.Duration
}

// DefaultConfig returns connection defaults matching common SSH setups.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		KnownHostsPath: filepath.Join(home, ".ssh", "known_hosts"),
		ConnectTimeout: 30 * time.Second,
		SessionReady:   15 * time.Second,
	}
}

// clientConfig assembles the ssh.ClientConfig for one host.
func (c Config) clientConfig(user string, keyPath string) (*ssh.ClientConfig, error) {
	if user == "" {
		user = c.User
	}
	if user == "" {
		user = os.Getenv("USER")
	}
	if keyPath == "" {
		keyPath = c.KeyPath
	}

	var methods []ssh.AuthMethod

	if keyPath != "" {
		signer, err := loadSigner(keyPath, c.KeyPassphrase)
		if err != nil {
			return nil, err
		}
		methods = append(methods, ssh.PublicKeys(signer))
	} else {
		home, _ := os.UserHomeDir()
		for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
			p := filepath.Join(home, ".ssh", name)
			if _, err := os.Stat(p); err != nil {
				continue
			}
			signer, err := loadSigner(p, c.KeyPassphrase)
			if err != nil {
				continue
			}
			methods = append(methods, ssh.PublicKeys(signer))
			break
		}
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("no SSH authentication method available for user %q", user)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey() //nolint:gosec // opt-in via empty KnownHostsPath
	if c.KnownHostsPath != "" {
		cb, err := knownhosts.New(c.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts %s: %w", c.KnownHostsPath, err)
		}
		hostKeyCallback = cb
	}

	timeout := c.ConnectTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            methods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, nil
}

func loadSigner(path, passphrase string) (ssh.Signer, error) {
	keyBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key %s: %w", path, err)
	}
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(passphrase))
	}
	return ssh.ParsePrivateKey(keyBytes)
}
