// Package ssh implements SSH local port forwarding for reaching a
// PostgreSQL server behind a bastion host.
//
// The tunnel listens on a random loopback port; pgx connects there and
// every accepted connection is piped to the database through the SSH client.
// Only key-based authentication is supported (with optional passphrase).
package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/DachengChen/paiask/config"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Addr is the loopback endpoint pgx dials instead of the database.
type Addr struct {
	Host string
	Port int
}

// Tunnel forwards a loopback port to the database through a bastion.
type Tunnel struct {
	log        *slog.Logger
	sshConfig  *ssh.ClientConfig
	sshAddr    string
	remoteAddr string

	client   *ssh.Client
	listener net.Listener
	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

// NewTunnel validates cfg and loads the key. Nothing is dialled until Start.
func NewTunnel(log *slog.Logger, cfg config.SSHConfig, pgHost string, pgPort int) (*Tunnel, error) {
	if log == nil {
		log = slog.Default()
	}
	authMethods, err := buildAuthMethods(cfg)
	if err != nil {
		return nil, err
	}

	sshConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback(log),
	}

	return &Tunnel{
		log:        log,
		sshConfig:  sshConfig,
		sshAddr:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		remoteAddr: net.JoinHostPort(pgHost, strconv.Itoa(pgPort)),
		done:       make(chan struct{}),
	}, nil
}

// Start connects to the bastion and begins accepting on a random loopback
// port, which it returns.
func (t *Tunnel) Start(ctx context.Context) (*Addr, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.sshAddr)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", t.sshAddr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, t.sshAddr, t.sshConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", t.sshAddr, err)
	}
	t.client = ssh.NewClient(c, chans, reqs)

	t.listener, err = net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.client.Close()
		return nil, fmt.Errorf("local listen: %w", err)
	}

	tcpAddr := t.listener.Addr().(*net.TCPAddr)
	localAddr := &Addr{Host: "127.0.0.1", Port: tcpAddr.Port}
	t.log.Info("ssh tunnel up", "bastion", t.sshAddr, "remote", t.remoteAddr, "local_port", localAddr.Port)

	t.wg.Add(1)
	go t.acceptLoop()

	return localAddr, nil
}

// Stop tears down the tunnel. Safe to call more than once.
func (t *Tunnel) Stop() {
	t.stopOnce.Do(func() {
		close(t.done)
		if t.listener != nil {
			t.listener.Close()
		}
		t.wg.Wait()
		if t.client != nil {
			t.client.Close()
		}
		t.log.Debug("ssh tunnel stopped", "bastion", t.sshAddr)
	})
}

func (t *Tunnel) acceptLoop() {
	defer t.wg.Done()
	for {
		localConn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		t.wg.Add(1)
		go t.forward(localConn)
	}
}

// forward pipes one accepted connection to the database. When either side
// finishes both are closed, which ends the other copy.
func (t *Tunnel) forward(local net.Conn) {
	defer t.wg.Done()
	defer local.Close()

	remote, err := t.client.Dial("tcp", t.remoteAddr)
	if err != nil {
		t.log.Warn("ssh forward dial failed", "remote", t.remoteAddr, "error", err)
		return
	}
	defer remote.Close()

	var pipes sync.WaitGroup
	pipe := func(dst, src net.Conn) {
		defer pipes.Done()
		_, _ = io.Copy(dst, src)
		dst.Close()
		src.Close()
	}
	pipes.Add(2)
	go pipe(remote, local)
	go pipe(local, remote)
	pipes.Wait()
}

// hostKeyCallback verifies against ~/.ssh/known_hosts when it exists.
func hostKeyCallback(log *slog.Logger) ssh.HostKeyCallback {
	home, err := os.UserHomeDir()
	if err == nil {
		path := filepath.Join(home, ".ssh", "known_hosts")
		if cb, err := knownhosts.New(path); err == nil {
			return cb
		}
	}
	log.Warn("no usable known_hosts file, host key not verified")
	return ssh.InsecureIgnoreHostKey()
}

// buildAuthMethods returns public-key auth from cfg.KeyPath, decrypting
// the key when a passphrase is set.
func buildAuthMethods(cfg config.SSHConfig) ([]ssh.AuthMethod, error) {
	if cfg.KeyPath == "" {
		return nil, errors.New("no SSH authentication methods configured (set an SSH key path)")
	}
	pem, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("read ssh key %s: %w", cfg.KeyPath, err)
	}
	parse := func() (ssh.Signer, error) { return ssh.ParsePrivateKey(pem) }
	if cfg.KeyPassphrase != "" {
		parse = func() (ssh.Signer, error) {
			return ssh.ParsePrivateKeyWithPassphrase(pem, []byte(cfg.KeyPassphrase))
		}
	}
	signer, err := parse()
	if err != nil {
		return nil, fmt.Errorf("parse ssh key: %w", err)
	}
	return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
}
