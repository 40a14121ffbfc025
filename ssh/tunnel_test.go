package ssh

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/crypto/ssh"

	"github.com/DachengChen/paiask/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeKey(t *testing.T, passphrase string) (string, ssh.PublicKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	var block *pem.Block
	if passphrase != "" {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "", []byte(passphrase))
	} else {
		block, err = ssh.MarshalPrivateKey(priv, "")
	}
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))

	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return path, sshPub
}

// startEcho listens on loopback and echoes every connection back.
func startEcho(t *testing.T) *net.TCPAddr {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				_, _ = io.Copy(c, c)
			}()
		}
	}()
	return ln.Addr().(*net.TCPAddr)
}

// startBastion runs a minimal SSH server that accepts one public key and
// serves direct-tcpip channels.
func startBastion(t *testing.T, authorized ssh.PublicKey) *net.TCPAddr {
	t.Helper()
	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), authorized.Marshal()) {
				return nil, nil
			}
			return nil, errors.New("unknown key")
		},
	}
	cfg.AddHostKey(hostSigner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			nConn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSSH(nConn, cfg)
		}
	}()
	return ln.Addr().(*net.TCPAddr)
}

func serveSSH(nConn net.Conn, cfg *ssh.ServerConfig) {
	sconn, chans, reqs, err := ssh.NewServerConn(nConn, cfg)
	if err != nil {
		nConn.Close()
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "direct-tcpip" {
			_ = newCh.Reject(ssh.UnknownChannelType, "only direct-tcpip")
			continue
		}
		var target struct {
			Host       string
			Port       uint32
			OriginHost string
			OriginPort uint32
		}
		if err := ssh.Unmarshal(newCh.ExtraData(), &target); err != nil {
			_ = newCh.Reject(ssh.ConnectionFailed, err.Error())
			continue
		}
		upstream, err := net.Dial("tcp", net.JoinHostPort(target.Host, strconv.Itoa(int(target.Port))))
		if err != nil {
			_ = newCh.Reject(ssh.ConnectionFailed, err.Error())
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			upstream.Close()
			continue
		}
		go ssh.DiscardRequests(chReqs)
		go func() {
			_, _ = io.Copy(ch, upstream)
			ch.Close()
		}()
		go func() {
			_, _ = io.Copy(upstream, ch)
			upstream.Close()
		}()
	}
}

func TestTunnelForwardsToRemote(t *testing.T) {
	t.Setenv("HOME", t.TempDir()) // no known_hosts
	keyPath, pub := writeKey(t, "")
	echo := startEcho(t)
	bastion := startBastion(t, pub)

	tun, err := NewTunnel(nil, config.SSHConfig{
		Host:    bastion.IP.String(),
		Port:    bastion.Port,
		User:    "ops",
		KeyPath: keyPath,
	}, echo.IP.String(), echo.Port)
	require.NoError(t, err)

	local, err := tun.Start(context.Background())
	require.NoError(t, err)
	defer tun.Stop()
	assert.Equal(t, "127.0.0.1", local.Host)

	conn, err := net.Dial("tcp", net.JoinHostPort(local.Host, strconv.Itoa(local.Port)))
	require.NoError(t, err)
	_, err = conn.Write([]byte("SELECT 1"))
	require.NoError(t, err)
	buf := make([]byte, len("SELECT 1"))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", string(buf))
	conn.Close()
}

func TestTunnelRejectedKey(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	keyPath, _ := writeKey(t, "")
	_, other := writeKey(t, "")
	bastion := startBastion(t, other)

	tun, err := NewTunnel(nil, config.SSHConfig{
		Host: bastion.IP.String(), Port: bastion.Port, User: "ops", KeyPath: keyPath,
	}, "127.0.0.1", 5432)
	require.NoError(t, err)

	_, err = tun.Start(context.Background())
	assert.ErrorContains(t, err, "ssh handshake")
	tun.Stop()
}

func TestNewTunnelAddresses(t *testing.T) {
	keyPath, _ := writeKey(t, "")
	cfg := config.SSHConfig{Host: "bastion", Port: 2222, User: "ops", KeyPath: keyPath}
	tun, err := NewTunnel(nil, cfg, "db.internal", 5432)
	require.NoError(t, err)
	assert.Equal(t, "bastion:2222", tun.sshAddr)
	assert.Equal(t, "db.internal:5432", tun.remoteAddr)
	assert.Equal(t, "ops", tun.sshConfig.User)

	// Stop before Start is harmless, and so is a second Stop.
	tun.Stop()
	tun.Stop()
}

func TestBuildAuthMethods(t *testing.T) {
	_, err := buildAuthMethods(config.SSHConfig{})
	assert.ErrorContains(t, err, "no SSH authentication methods")

	_, err = buildAuthMethods(config.SSHConfig{KeyPath: filepath.Join(t.TempDir(), "missing")})
	assert.ErrorContains(t, err, "read ssh key")

	protected, _ := writeKey(t, "s3cret")
	_, err = buildAuthMethods(config.SSHConfig{KeyPath: protected})
	assert.ErrorContains(t, err, "parse ssh key")

	methods, err := buildAuthMethods(config.SSHConfig{KeyPath: protected, KeyPassphrase: "s3cret"})
	require.NoError(t, err)
	assert.Len(t, methods, 1)
}
