package gmat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// AuthMethod selects how the remote runner authenticates.
type AuthMethod string

const (
	AuthPassword AuthMethod = "password"
	AuthKey      AuthMethod = "key"
	AuthAgent    AuthMethod = "agent"
)

// RemoteConfig describes a host with a GMAT console installed.
type RemoteConfig struct {
	Host string
	Port int
	User string

	AuthMethod           AuthMethod
	Password             string
	PrivateKeyPath       string
	PrivateKeyPassphrase string

	// KnownHostsPath enables host key verification when StrictHostKeyChecking is set.
	KnownHostsPath        string
	StrictHostKeyChecking bool

	// Console is the console path on the remote host.
	Console string

	// WorkDir receives uploaded scripts. Defaults to /tmp/gmatflow.
	WorkDir string

	// ReportPath overrides where the report is fetched from. Defaults to
	// the output directory next to the console's bin directory.
	ReportPath string

	ConnectionTimeout time.Duration
	CommandTimeout    time.Duration
}

// Validate checks the configuration and fills in defaults.
func (c *RemoteConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port == 0 {
		c.Port = 22
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.Console == "" {
		return fmt.Errorf("remote console path is required")
	}

	switch c.AuthMethod {
	case AuthPassword:
		if c.Password == "" {
			return fmt.Errorf("password is required for password authentication")
		}
	case AuthKey:
		if c.PrivateKeyPath == "" {
			return fmt.Errorf("private key path is required for key authentication")
		}
		if _, err := os.Stat(c.PrivateKeyPath); err != nil {
			return fmt.Errorf("private key file not found: %s", c.PrivateKeyPath)
		}
	case AuthAgent:
		if os.Getenv("SSH_AUTH_SOCK") == "" {
			return fmt.Errorf("SSH_AUTH_SOCK is not set for agent authentication")
		}
	default:
		return fmt.Errorf("unsupported auth method: %q", c.AuthMethod)
	}

	if c.WorkDir == "" {
		c.WorkDir = "/tmp/gmatflow"
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = 30 * time.Second
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultTimeout
	}
	return nil
}

// Address returns host:port.
func (c *RemoteConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// reportPath is where the remote console leaves its report.
func (c *RemoteConfig) reportPath() string {
	if c.ReportPath != "" {
		return c.ReportPath
	}
	return path.Join(path.Dir(c.Console), "..", "output", ReportFileName)
}

// ClientConfig builds the ssh client configuration.
func (c *RemoteConfig) ClientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod

	switch c.AuthMethod {
	case AuthPassword:
		auth = append(auth, ssh.Password(c.Password))
		// Many servers only offer keyboard-interactive for passwords.
		auth = append(auth, ssh.KeyboardInteractive(
			func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = c.Password
				}
				return answers, nil
			},
		))

	case AuthKey:
		keyBytes, err := os.ReadFile(c.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		var signer ssh.Signer
		if c.PrivateKeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(c.PrivateKeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))

	case AuthAgent:
		conn, err := net.Dial("unix", os.Getenv("SSH_AUTH_SOCK"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to ssh agent: %w", err)
		}
		auth = append(auth, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if c.KnownHostsPath != "" && c.StrictHostKeyChecking {
		cb, err := knownhosts.New(c.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.ConnectionTimeout,
	}, nil
}

// RemoteRunner uploads the script over SFTP, runs the console over SSH and
// downloads the report.
type RemoteRunner struct {
	cfg    RemoteConfig
	logger zerolog.Logger
}

// NewRemoteRunner validates cfg and creates a runner.
func NewRemoteRunner(cfg RemoteConfig, logger zerolog.Logger) (*RemoteRunner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid remote config: %w", err)
	}
	return &RemoteRunner{
		cfg:    cfg,
		logger: logger.With().Str("component", "gmat").Str("host", cfg.Address()).Logger(),
	}, nil
}

// Run executes script on the remote host and downloads the report into outDir.
func (r *RemoteRunner) Run(ctx context.Context, script, outDir string) (string, error) {
	if _, err := os.Stat(script); err != nil {
		return "", &ExecError{Op: "stat", Err: fmt.Errorf("script %s: %w", script, err), ExitCode: -1}
	}

	client, err := r.connect(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return "", &ExecError{Op: "connect", Err: fmt.Errorf("failed to start sftp: %w", err), Temporary: true, ExitCode: -1}
	}
	defer sftpClient.Close()

	remoteScript := path.Join(r.cfg.WorkDir, filepath.Base(script))
	if err := upload(ctx, sftpClient, script, remoteScript); err != nil {
		return "", err
	}
	r.logger.Debug().Str("remote_script", remoteScript).Msg("Script uploaded")

	output, err := r.execute(ctx, client, shellQuote(r.cfg.Console)+" "+shellQuote(remoteScript))
	r.logger.Debug().Str("output", tail(output)).Msg("Remote GMAT finished")
	if err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, ReportFileName)
	if err := download(ctx, sftpClient, r.cfg.reportPath(), dst); err != nil {
		return "", err
	}

	r.logger.Info().Str("report", dst).Msg("Remote GMAT report collected")
	return dst, nil
}

func (r *RemoteRunner) connect(ctx context.Context) (*ssh.Client, error) {
	clientConfig, err := r.cfg.ClientConfig()
	if err != nil {
		return nil, &ExecError{Op: "connect", Err: err, ExitCode: -1}
	}

	type dialResult struct {
		client *ssh.Client
		err    error
	}
	done := make(chan dialResult, 1)
	go func() {
		c, err := ssh.Dial("tcp", r.cfg.Address(), clientConfig)
		done <- dialResult{c, err}
	}()

	select {
	case <-ctx.Done():
		// Close a late connection so it does not leak.
		go func() {
			if res := <-done; res.client != nil {
				res.client.Close()
			}
		}()
		return nil, &ExecError{Op: "connect", Err: ctx.Err(), ExitCode: -1}
	case res := <-done:
		if res.err != nil {
			auth := strings.Contains(res.err.Error(), "unable to authenticate")
			return nil, &ExecError{Op: "connect", Err: res.err, Temporary: !auth, AuthError: auth, ExitCode: -1}
		}
		r.logger.Debug().Msg("SSH connection established")
		return res.client, nil
	}
}

func (r *RemoteRunner) execute(ctx context.Context, client *ssh.Client, command string) ([]byte, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, &ExecError{Op: "exec", Err: fmt.Errorf("failed to create session: %w", err), Temporary: true, ExitCode: -1}
	}
	defer session.Close()

	// The session copies each stream in its own goroutine.
	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	execCtx, cancel := context.WithTimeout(ctx, r.cfg.CommandTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	var (
		runErr   error
		timedOut bool
	)
	select {
	case <-execCtx.Done():
		timedOut = true
		_ = session.Signal(ssh.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		_ = session.Signal(ssh.SIGKILL)
		// Closing the channel ends the copiers; Run returns once they do.
		_ = session.Close()
		<-done
	case runErr = <-done:
	}

	output := append(stdout.Bytes(), stderr.Bytes()...)

	switch {
	case timedOut:
		return output, &ExecError{
			Op:        "exec",
			Err:       execCtx.Err(),
			Temporary: ctx.Err() == nil,
			ExitCode:  -1,
			Output:    tail(output),
		}
	case runErr == nil:
		return output, nil
	}

	var exitErr *ssh.ExitError
	if errors.As(runErr, &exitErr) {
		return output, &ExecError{
			Op:       "exec",
			Err:      runErr,
			ExitCode: exitErr.ExitStatus(),
			Output:   tail(output),
		}
	}
	return output, &ExecError{Op: "exec", Err: runErr, Temporary: true, ExitCode: -1, Output: tail(output)}
}

func upload(ctx context.Context, client *sftp.Client, local, remote string) error {
	src, err := os.Open(local)
	if err != nil {
		return &ExecError{Op: "upload", Err: err, ExitCode: -1}
	}
	defer src.Close()

	if err := client.MkdirAll(path.Dir(remote)); err != nil {
		return &ExecError{Op: "upload", Err: fmt.Errorf("failed to create remote directory: %w", err), Temporary: true, ExitCode: -1}
	}

	dst, err := client.Create(remote)
	if err != nil {
		return &ExecError{Op: "upload", Err: fmt.Errorf("failed to create remote file: %w", err), Temporary: true, ExitCode: -1}
	}
	defer dst.Close()

	if err := copyWithContext(ctx, dst, src); err != nil {
		return &ExecError{Op: "upload", Err: err, Temporary: ctx.Err() == nil, ExitCode: -1}
	}
	return nil
}

func download(ctx context.Context, client *sftp.Client, remote, local string) error {
	src, err := client.Open(remote)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("%w: %s", ErrReportMissing, remote)
		}
		return &ExecError{Op: "download", Err: err, ExitCode: -1}
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
		return &ExecError{Op: "download", Err: fmt.Errorf("failed to create output directory: %w", err), ExitCode: -1}
	}

	dst, err := os.Create(local)
	if err != nil {
		return &ExecError{Op: "download", Err: err, ExitCode: -1}
	}

	if err := copyWithContext(ctx, dst, src); err != nil {
		dst.Close()
		return &ExecError{Op: "download", Err: err, Temporary: ctx.Err() == nil, ExitCode: -1}
	}
	if err := dst.Close(); err != nil {
		return &ExecError{Op: "download", Err: err, ExitCode: -1}
	}
	return nil
}

// copyWithContext copies in chunks so a cancelled context stops a long transfer.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
