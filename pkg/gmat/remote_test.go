package gmat

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// testSSHServer accepts testuser/testpass, runs exec requests through the
// local shell and serves sftp from the local filesystem.
type testSSHServer struct {
	listener net.Listener
	config   *ssh.ServerConfig
	done     chan struct{}
}

func newTestSSHServer(t *testing.T) *testSSHServer {
	t.Helper()

	_, hostKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(hostKey)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "testuser" && string(pass) == "testpass" {
				return nil, nil
			}
			return nil, fmt.Errorf("invalid credentials")
		},
	}
	config.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	s := &testSSHServer{listener: listener, config: config, done: make(chan struct{})}
	go s.serve()
	t.Cleanup(s.close)
	return s
}

func (s *testSSHServer) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				continue
			}
		}
		go s.handleConnection(conn)
	}
}

func (s *testSSHServer) handleConnection(netConn net.Conn) {
	defer netConn.Close()

	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, s.config)
	if err != nil {
		return
	}
	defer sshConn.Close()

	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go s.handleChannel(channel, requests)
	}
}

func (s *testSSHServer) handleChannel(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()

	for req := range requests {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				req.Reply(false, nil)
				return
			}
			req.Reply(true, nil)
			go ssh.DiscardRequests(requests)

			cmd := exec.Command("sh", "-c", payload.Command)
			cmd.Stdout = channel
			cmd.Stderr = channel.Stderr()
			status := 0
			if err := cmd.Run(); err != nil {
				var exitErr *exec.ExitError
				if errors.As(err, &exitErr) {
					status = exitErr.ExitCode()
				} else {
					status = 127
				}
			}
			channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(status)}))
			return

		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			go ssh.DiscardRequests(requests)

			server, err := sftp.NewServer(channel)
			if err != nil {
				return
			}
			_ = server.Serve()
			return

		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

func (s *testSSHServer) close() {
	close(s.done)
	s.listener.Close()
}

func (s *testSSHServer) port(t *testing.T) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(s.listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	return port
}

func remoteConfig(t *testing.T, s *testSSHServer, console string) RemoteConfig {
	return RemoteConfig{
		Host:              "127.0.0.1",
		Port:              s.port(t),
		User:              "testuser",
		AuthMethod:        AuthPassword,
		Password:          "testpass",
		Console:           console,
		WorkDir:           filepath.Join(t.TempDir(), "remote-work"),
		ConnectionTimeout: 5 * time.Second,
		CommandTimeout:    30 * time.Second,
	}
}

func TestRemoteRunner_Run(t *testing.T) {
	console := fakeConsole(t, writesReport)
	server := newTestSSHServer(t)

	r, err := NewRemoteRunner(remoteConfig(t, server, console), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRemoteRunner failed: %v", err)
	}

	script := writeScript(t)
	outDir := filepath.Join(t.TempDir(), "output")
	report, err := r.Run(context.Background(), script, outDir)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	data, err := os.ReadFile(report)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	if string(data) != fakeReport {
		t.Errorf("report content mismatch:\n%s", data)
	}

	uploaded, err := os.ReadFile(filepath.Join(r.cfg.WorkDir, filepath.Base(script)))
	if err != nil {
		t.Fatalf("script was not uploaded: %v", err)
	}
	if !bytes.Equal(uploaded, []byte("Create Spacecraft S;\n")) {
		t.Errorf("uploaded script mismatch: %q", uploaded)
	}
}

func TestRemoteRunner_ExitCode(t *testing.T) {
	console := fakeConsole(t, "exit 4")
	server := newTestSSHServer(t)

	r, err := NewRemoteRunner(remoteConfig(t, server, console), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	_, err = r.Run(context.Background(), writeScript(t), t.TempDir())
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecError, got %v", err)
	}
	if execErr.Op != "exec" || execErr.ExitCode != 4 {
		t.Errorf("got op %q exit %d, want exec/4", execErr.Op, execErr.ExitCode)
	}
}

func TestRemoteRunner_BadPassword(t *testing.T) {
	console := fakeConsole(t, writesReport)
	server := newTestSSHServer(t)

	cfg := remoteConfig(t, server, console)
	cfg.Password = "wrong"
	r, err := NewRemoteRunner(cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	_, err = r.Run(context.Background(), writeScript(t), t.TempDir())
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecError, got %v", err)
	}
	if !execErr.AuthError || execErr.Temporary {
		t.Errorf("expected a permanent auth error, got %+v", execErr)
	}
}

// chattyConsole writes to stdout and stderr alternately, then runs the
// report writer.
const chattyConsole = `i=0
while [ $i -lt 2000 ]; do
  echo "out $i"
  echo "err $i" >&2
  i=$((i+1))
done
` + writesReport

func TestRemoteRunner_InterleavedOutput(t *testing.T) {
	console := fakeConsole(t, chattyConsole)
	server := newTestSSHServer(t)

	r, err := NewRemoteRunner(remoteConfig(t, server, console), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	client, err := r.connect(ctx)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer client.Close()

	output, err := r.execute(ctx, client, shellQuote(console)+" demo.script")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	for _, want := range []string{"out 0\n", "out 1999\n", "err 0\n", "err 1999\n", "ran demo.script"} {
		if !strings.Contains(string(output), want) {
			t.Errorf("output is missing %q", want)
		}
	}
	if n := strings.Count(string(output), "\n"); n != 4001 {
		t.Errorf("got %d lines, want 4001", n)
	}
}

func TestRemoteRunner_CommandTimeout(t *testing.T) {
	console := fakeConsole(t, `for i in $(seq 200); do echo tick; echo tock >&2; sleep 0.02; done`)
	server := newTestSSHServer(t)

	cfg := remoteConfig(t, server, console)
	cfg.CommandTimeout = 300 * time.Millisecond
	r, err := NewRemoteRunner(cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	client, err := r.connect(ctx)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer client.Close()

	output, err := r.execute(ctx, client, shellQuote(console))
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecError, got %v", err)
	}
	if !errors.Is(execErr, context.DeadlineExceeded) || !execErr.Temporary {
		t.Errorf("expected a temporary deadline error, got %+v", execErr)
	}
	if !strings.Contains(string(output), "tick") {
		t.Errorf("output before the timeout was lost: %q", output)
	}
}

func TestRemoteConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RemoteConfig
		wantErr bool
	}{
		{
			name: "password",
			cfg:  RemoteConfig{Host: "h", User: "u", Console: "/opt/gmat/bin/GmatConsole", AuthMethod: AuthPassword, Password: "p"},
		},
		{
			name:    "missing host",
			cfg:     RemoteConfig{User: "u", Console: "c", AuthMethod: AuthPassword, Password: "p"},
			wantErr: true,
		},
		{
			name:    "missing console",
			cfg:     RemoteConfig{Host: "h", User: "u", AuthMethod: AuthPassword, Password: "p"},
			wantErr: true,
		},
		{
			name:    "missing password",
			cfg:     RemoteConfig{Host: "h", User: "u", Console: "c", AuthMethod: AuthPassword},
			wantErr: true,
		},
		{
			name:    "missing key file",
			cfg:     RemoteConfig{Host: "h", User: "u", Console: "c", AuthMethod: AuthKey, PrivateKeyPath: "/nonexistent/id_ed25519"},
			wantErr: true,
		},
		{
			name:    "bad port",
			cfg:     RemoteConfig{Host: "h", Port: 70000, User: "u", Console: "c", AuthMethod: AuthPassword, Password: "p"},
			wantErr: true,
		},
		{
			name:    "unknown auth",
			cfg:     RemoteConfig{Host: "h", User: "u", Console: "c", AuthMethod: "kerberos"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRemoteConfig_Defaults(t *testing.T) {
	cfg := RemoteConfig{Host: "gmat.example", User: "u", Console: "/opt/gmat/bin/GmatConsole", AuthMethod: AuthPassword, Password: "p"}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	if cfg.Address() != "gmat.example:22" {
		t.Errorf("Address = %s", cfg.Address())
	}
	if cfg.WorkDir != "/tmp/gmatflow" {
		t.Errorf("WorkDir = %s", cfg.WorkDir)
	}
	if got := cfg.reportPath(); got != "/opt/gmat/output/DefaultReportFile.txt" {
		t.Errorf("reportPath = %s", got)
	}
}

func TestShellQuote(t *testing.T) {
	if got := shellQuote("/a b/it's"); got != `'/a b/it'\''s'` {
		t.Errorf("shellQuote = %s", got)
	}
}
