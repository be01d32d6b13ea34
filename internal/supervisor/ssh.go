package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/k-kuroguro/smiview/internal/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHRunner runs commands on a remote host, typically the head node that
// cluster-smi aggregates the cluster on. Authentication uses the SSH agent.
type SSHRunner struct {
	remote    config.Remote
	agentConn net.Conn
	signers   []ssh.Signer
	username  string
	hostKeys  ssh.HostKeyCallback
}

// NewSSHRunner connects to the SSH agent and prepares client settings.
func NewSSHRunner(remote config.Remote) (*SSHRunner, error) {
	authSock := os.Getenv("SSH_AUTH_SOCK")
	if authSock == "" {
		return nil, errors.New("SSH agent not running. Start with `eval $(ssh-agent)` and add keys with `ssh-add`")
	}
	conn, err := net.Dial("unix", authSock)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to SSH agent at %s: %w", authSock, err)
	}
	signers, err := agent.NewClient(conn).Signers()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("getting SSH agent signers: %w", err)
	}
	if len(signers) == 0 {
		conn.Close()
		return nil, errors.New("SSH agent has no keys. Add keys with `ssh-add`")
	}

	username := remote.User
	if username == "" {
		if u, err := user.Current(); err == nil {
			username = u.Username
		}
	}

	return &SSHRunner{
		remote:    remote,
		agentConn: conn,
		signers:   signers,
		username:  username,
		hostKeys:  hostKeyCallback(),
	}, nil
}

// hostKeyCallback verifies against ~/.ssh/known_hosts when it exists.
func hostKeyCallback() ssh.HostKeyCallback {
	if home, err := os.UserHomeDir(); err == nil {
		if cb, err := knownhosts.New(filepath.Join(home, ".ssh", "known_hosts")); err == nil {
			return cb
		}
	}
	logrus.Warn("no usable known_hosts file, remote host keys are not verified")
	return ssh.InsecureIgnoreHostKey()
}

// Close releases the agent connection.
func (r *SSHRunner) Close() error {
	if r.agentConn != nil {
		return r.agentConn.Close()
	}
	return nil
}

func (r *SSHRunner) Start(ctx context.Context, c Command, stdout, stderr io.Writer) (Handle, error) {
	timeout := time.Duration(r.remote.ConnectTimeout) * time.Second
	clientConfig := &ssh.ClientConfig{
		User:            r.username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(r.signers...)},
		HostKeyCallback: r.hostKeys,
		Timeout:         timeout,
	}

	var client, jumpClient *ssh.Client
	var err error
	if r.remote.ProxyJump != "" {
		client, jumpClient, err = r.dialViaProxy(clientConfig)
	} else {
		client, err = ssh.Dial("tcp", withPort(r.remote.Host), clientConfig)
	}
	if err != nil {
		return nil, r.wrapSSHError(err)
	}

	session, err := client.NewSession()
	if err != nil {
		closeAll(client, jumpClient)
		return nil, fmt.Errorf("creating SSH session on %s: %w", r.remote.Host, err)
	}
	session.Stdout = stdout
	session.Stderr = stderr
	if err := session.Start(c.String()); err != nil {
		session.Close()
		closeAll(client, jumpClient)
		return nil, fmt.Errorf("starting %s on %s: %w", c.Name, r.remote.Host, err)
	}

	h := &sshHandle{session: session, client: client, jump: jumpClient, done: make(chan struct{})}
	go h.watch(ctx)
	return h, nil
}

func (r *SSHRunner) dialViaProxy(cfg *ssh.ClientConfig) (client, jumpClient *ssh.Client, err error) {
	jumpClient, err = ssh.Dial("tcp", withPort(r.remote.ProxyJump), cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot reach proxy %s: %w", r.remote.ProxyJump, err)
	}
	target := withPort(r.remote.Host)
	conn, err := jumpClient.Dial("tcp", target)
	if err != nil {
		jumpClient.Close()
		return nil, nil, fmt.Errorf("cannot reach %s through proxy %s: %w", r.remote.Host, r.remote.ProxyJump, err)
	}
	ncc, chans, reqs, err := ssh.NewClientConn(conn, target, cfg)
	if err != nil {
		conn.Close()
		jumpClient.Close()
		return nil, nil, fmt.Errorf("SSH handshake with %s failed: %w", r.remote.Host, err)
	}
	return ssh.NewClient(ncc, chans, reqs), jumpClient, nil
}

func (r *SSHRunner) wrapSSHError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "no supported methods remain"):
		return fmt.Errorf("SSH authentication failed for %s. Check that your key is authorized", r.remote.Host)
	case strings.Contains(msg, "i/o timeout") || strings.Contains(msg, "connection timed out"):
		return fmt.Errorf("connection to %s timed out", r.remote.Host)
	case strings.Contains(msg, "connection refused"):
		return fmt.Errorf("connection refused by %s, is SSH running on the server?", r.remote.Host)
	default:
		return fmt.Errorf("SSH error connecting to %s: %w", r.remote.Host, err)
	}
}

type sshHandle struct {
	session *ssh.Session
	client  *ssh.Client
	jump    *ssh.Client

	once      sync.Once
	done      chan struct{}
	cancelled atomic.Bool
}

func (h *sshHandle) PID() int { return 0 }

// watch forwards cancellation as SIGTERM. Servers that ignore signal
// requests still end the command once the connection is closed.
func (h *sshHandle) watch(ctx context.Context) {
	select {
	case <-ctx.Done():
		h.cancelled.Store(true)
		_ = h.session.Signal(ssh.SIGTERM)
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			h.close()
		}
	case <-h.done:
	}
}

func (h *sshHandle) Wait() (ExitStatus, error) {
	err := h.session.Wait()
	close(h.done)
	h.close()

	var exitErr *ssh.ExitError
	var missing *ssh.ExitMissingError
	switch {
	case err == nil:
		return ExitStatus{Code: 0}, nil
	case errors.As(err, &exitErr):
		if sig := exitErr.Signal(); sig != "" {
			return ExitStatus{Code: -1, Signal: "SIG" + sig}, nil
		}
		return ExitStatus{Code: exitErr.ExitStatus()}, nil
	case errors.As(err, &missing) && h.cancelled.Load():
		// Closed by watch after the signal went unanswered.
		return ExitStatus{Code: -1, Signal: "SIGTERM"}, nil
	default:
		return ExitStatus{}, err
	}
}

func (h *sshHandle) close() {
	h.once.Do(func() {
		h.session.Close()
		closeAll(h.client, h.jump)
	})
}

func closeAll(clients ...*ssh.Client) {
	for _, c := range clients {
		if c != nil {
			c.Close()
		}
	}
}

func withPort(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, "22")
}
