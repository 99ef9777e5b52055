package ssh

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hsauto/hsauto/drivers/console"
	"github.com/hsauto/hsauto/pkg/config"
	hserrors "github.com/hsauto/hsauto/pkg/errors"
	"github.com/hsauto/hsauto/pkg/task"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ssh_pkg "golang.org/x/crypto/ssh"
)

const (
	// DriverName is the name of the ssh driver
	DriverName = "ssh"
)

type commandRunner func(ctx context.Context, addr, cmd string, ignoreErr bool) (string, error)

// ssh drives a text console over ssh. Frames are the output of the configured
// console command and typed lines are run as shell commands.
type ssh struct {
	console.Driver
	cfg       config.SSH
	log       logrus.FieldLogger
	sshConfig *ssh_pkg.ClientConfig
	target    console.Target
	addr      string
	run       commandRunner
}

// New returns an unconnected ssh console driver
func New(cfg config.SSH, log logrus.FieldLogger) console.Driver {
	s := &ssh{
		Driver: console.NotSupportedDriver,
		cfg:    cfg,
		log:    log,
	}
	s.run = s.doCmd
	return s
}

func (s *ssh) String() string {
	return DriverName
}

// returns ssh.Signer from the private key at keypath
func getKeyFile(keypath string) (ssh_pkg.Signer, error) {
	buf, err := os.ReadFile(keypath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read ssh key %s", keypath)
	}

	signer, err := ssh_pkg.ParsePrivateKey(buf)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse ssh key %s", keypath)
	}

	return signer, nil
}

func (s *ssh) Init(ctx context.Context, t console.Target) error {
	s.target = t
	s.log = s.log.WithField("target", t.Name)

	if s.cfg.Password != "" {
		s.sshConfig = &ssh_pkg.ClientConfig{
			User: s.cfg.User,
			Auth: []ssh_pkg.AuthMethod{
				ssh_pkg.Password(s.cfg.Password),
			},
			HostKeyCallback: ssh_pkg.InsecureIgnoreHostKey(),
			Timeout:         s.cfg.Timeout,
		}
	} else if s.cfg.KeyPath != "" {
		signer, err := getKeyFile(s.cfg.KeyPath)
		if err != nil {
			return err
		}
		s.sshConfig = &ssh_pkg.ClientConfig{
			User: s.cfg.User,
			Auth: []ssh_pkg.AuthMethod{
				ssh_pkg.PublicKeys(signer),
			},
			HostKeyCallback: ssh_pkg.InsecureIgnoreHostKey(),
			Timeout:         s.cfg.Timeout,
		}
	} else {
		return fmt.Errorf("Unknown auth type")
	}

	addr, err := s.getOneUsableAddr(ctx)
	if err != nil {
		return err
	}
	s.addr = addr
	s.log.Infof("Using address %s for console of %s", addr, t.Name)
	return nil
}

func (s *ssh) Close() error {
	return nil
}

func (s *ssh) Capture(ctx context.Context) (console.Frame, error) {
	out, err := s.run(ctx, s.addr, s.cfg.ConsoleCommand, false)
	if err != nil {
		return console.Frame{}, &console.ErrFailedToCapture{
			Target: s.target,
			Cause:  err.Error(),
		}
	}
	return console.Frame{Text: out, CapturedAt: time.Now()}, nil
}

// SendKeys runs every ENTER-terminated line as a command. Text left after the
// last ENTER is run as well. Nothing runs if any key cannot be typed.
func (s *ssh) SendKeys(ctx context.Context, keys []console.Key) error {
	lines, err := commandLines(keys)
	if err != nil {
		return err
	}
	for _, cmd := range lines {
		s.log.Debugf("Running console command: %s", cmd)
		if _, err := s.run(ctx, s.addr, cmd, false); err != nil {
			return &console.ErrFailedToSendKeys{
				Target: s.target,
				Cause:  err.Error(),
			}
		}
	}
	return nil
}

// commandLines splits keys into shell command lines
func commandLines(keys []console.Key) ([]string, error) {
	var (
		lines []string
		line  strings.Builder
	)
	flush := func() {
		if line.Len() > 0 {
			lines = append(lines, line.String())
			line.Reset()
		}
	}

	for _, k := range keys {
		switch {
		case k.Modified():
			return nil, &hserrors.ErrNotSupported{Type: "Key", Operation: k.String()}
		case !k.Special():
			line.WriteRune(k.Char)
		case k.Name == console.KeySpace:
			line.WriteRune(' ')
		case k.Name == console.KeyTab:
			line.WriteRune('\t')
		case k.Name == console.KeyEnter:
			flush()
		default:
			return nil, &hserrors.ErrNotSupported{Type: "Key", Operation: k.String()}
		}
	}
	flush()
	return lines, nil
}

func (s *ssh) PowerOff(ctx context.Context) error {
	return s.power(ctx, "power off", "sudo poweroff")
}

func (s *ssh) Reset(ctx context.Context) error {
	return s.power(ctx, "reset", "sudo reboot -f")
}

// power runs a command that drops the connection, so its error is ignored
func (s *ssh) power(ctx context.Context, operation, cmd string) error {
	s.log.Infof("Running %s on %s", operation, s.target.Name)
	if _, err := s.run(ctx, s.addr, cmd, true); err != nil {
		return &console.ErrFailedToChangePower{
			Target:    s.target,
			Operation: operation,
			Cause:     err.Error(),
		}
	}
	return nil
}

func (s *ssh) doCmd(ctx context.Context, addr string, cmd string, ignoreErr bool) (string, error) {
	hostport := net.JoinHostPort(addr, strconv.Itoa(s.cfg.Port))
	dialer := net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", hostport)
	if err != nil {
		return "", &console.ErrFailedToRunCommand{
			Addr:  addr,
			Cause: fmt.Sprintf("failed to dial: %v", err),
		}
	}

	c, chans, reqs, err := ssh_pkg.NewClientConn(conn, hostport, s.sshConfig)
	if err != nil {
		conn.Close()
		return "", &console.ErrFailedToRunCommand{
			Addr:  addr,
			Cause: fmt.Sprintf("failed to connect: %v", err),
		}
	}
	client := ssh_pkg.NewClient(c, chans, reqs)
	defer client.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			client.Close()
		case <-done:
		}
	}()

	session, err := client.NewSession()
	if err != nil {
		return "", &console.ErrFailedToRunCommand{
			Addr:  addr,
			Cause: fmt.Sprintf("failed to create session: %s", err),
		}
	}
	defer session.Close()

	byteout, err := session.CombinedOutput(cmd)
	out := string(byteout)
	if !ignoreErr && err != nil {
		return out, &console.ErrFailedToRunCommand{
			Addr:  addr,
			Cause: fmt.Sprintf("failed to run command due to: %v", err),
		}
	}
	return out, nil
}

func (s *ssh) getOneUsableAddr(ctx context.Context) (string, error) {
	if len(s.target.Addresses) == 0 {
		return "", fmt.Errorf("no address available to connect to %s", s.target.Name)
	}
	for _, addr := range s.target.Addresses {
		t := func() (interface{}, bool, error) {
			out, err := s.run(ctx, addr, "hostname", false)
			return out, true, err
		}
		if _, err := task.DoRetryWithTimeout(ctx, t, s.cfg.Timeout, s.cfg.TimeBeforeRetry); err == nil {
			return addr, nil
		} else if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.log.Warnf("Address %s of %s is not usable", addr, s.target.Name)
	}
	return "", fmt.Errorf("no usable address found. Tried: %v. "+
		"Ensure the nodes are set up for ssh access", s.target.Addresses)
}

func init() {
	console.Register(DriverName, func(cfg *config.Config, log logrus.FieldLogger) (console.Driver, error) {
		if err := cfg.SSH.Validate(); err != nil {
			return nil, err
		}
		return New(cfg.SSH, log), nil
	})
}
