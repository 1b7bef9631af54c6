package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/edvin/webdeploy/internal/model"
)

const (
	defaultDialTimeout = 10 * time.Second
	defaultCallTimeout = 60 * time.Second
	sshPort            = "22"
)

// SSHClient implements Executor and Transfer over SSH/SFTP. Each call dials
// a fresh connection; operations against a single static page are rare
// enough that connection reuse buys nothing and stale-connection handling
// would cost real code.
type SSHClient struct {
	logger      zerolog.Logger
	dialTimeout time.Duration
	callTimeout time.Duration
}

// NewSSHClient creates an SSH client with the given per-call timeout.
// A zero timeout selects the 60s default.
func NewSSHClient(logger zerolog.Logger, callTimeout time.Duration) *SSHClient {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &SSHClient{
		logger:      logger.With().Str("component", "ssh").Logger(),
		dialTimeout: defaultDialTimeout,
		callTimeout: callTimeout,
	}
}

func (c *SSHClient) dial(host model.Host) (*ssh.Client, error) {
	key, err := os.ReadFile(host.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("read SSH key %s: %w", host.KeyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse SSH key %s: %w", host.KeyPath, err)
	}

	cfg := &ssh.ClientConfig{
		User:            host.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.dialTimeout,
	}

	client, err := ssh.Dial("tcp", net.JoinHostPort(host.Address, sshPort), cfg)
	if err != nil {
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("ssh %s@%s: %w: %v", host.User, host.Address, ErrAuth, err)
		}
		return nil, fmt.Errorf("ssh %s@%s: %w: %v", host.User, host.Address, ErrConnect, err)
	}
	return client, nil
}

// Execute runs command on the host in one remote shell invocation. A
// nonzero remote exit code is not an error; it comes back in the Result.
func (c *SSHClient) Execute(ctx context.Context, host model.Host, command string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	client, err := c.dial(host)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("ssh session on %s: %w: %v", host.Address, ErrConnect, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	c.logger.Debug().Str("host", host.Address).Str("cmd", command).Msg("executing remote command")

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		session.Close()
		return nil, fmt.Errorf("run on %s: %w", host.Address, ErrTimedOut)
	case err := <-done:
		res := &Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: 0}
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				res.ExitCode = exitErr.ExitStatus()
				return res, nil
			}
			return nil, fmt.Errorf("run on %s: %w: %v", host.Address, ErrConnect, err)
		}
		return res, nil
	}
}

// Upload copies localPath to remotePath over SFTP. The write goes to the
// exact remotePath the caller gave (callers stage to a temp path and move
// atomically themselves); success means the remote size matches the local
// size after close.
func (c *SSHClient) Upload(ctx context.Context, host model.Host, localPath, remotePath string) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	local, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open local artifact: %w", err)
	}
	defer local.Close()

	info, err := local.Stat()
	if err != nil {
		return fmt.Errorf("stat local artifact %s: %w", localPath, err)
	}

	client, err := c.dial(host)
	if err != nil {
		return err
	}
	defer client.Close()

	done := make(chan error, 1)
	go func() { done <- c.sftpPut(client, host, local, info.Size(), remotePath) }()

	select {
	case <-ctx.Done():
		client.Close()
		return fmt.Errorf("upload to %s:%s: %w", host.Address, remotePath, ErrTimedOut)
	case err := <-done:
		return err
	}
}

func (c *SSHClient) sftpPut(client *ssh.Client, host model.Host, local io.Reader, size int64, remotePath string) error {
	ftp, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("sftp to %s: %w: %v", host.Address, ErrTransfer, err)
	}
	defer ftp.Close()

	remote, err := ftp.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create %s:%s: %w: %v", host.Address, remotePath, ErrTransfer, err)
	}

	n, err := io.Copy(remote, local)
	closeErr := remote.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n != size {
		err = fmt.Errorf("wrote %d of %d bytes", n, size)
	}
	if err != nil {
		// Remove the partial file so a truncated upload can never be
		// mistaken for a staged artifact.
		_ = ftp.Remove(remotePath)
		return fmt.Errorf("upload %s:%s: %w: %v", host.Address, remotePath, ErrTransfer, err)
	}

	stat, err := ftp.Stat(remotePath)
	if err != nil {
		return fmt.Errorf("verify %s:%s: %w: %v", host.Address, remotePath, ErrTransfer, err)
	}
	if stat.Size() != size {
		_ = ftp.Remove(remotePath)
		return fmt.Errorf("verify %s:%s: %w: remote has %d bytes, want %d",
			host.Address, remotePath, ErrTransfer, stat.Size(), size)
	}

	c.logger.Debug().Str("host", host.Address).Str("path", remotePath).Int64("bytes", size).Msg("uploaded artifact")
	return nil
}
