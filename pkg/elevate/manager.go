package elevate

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/logging"
	"github.com/rs/zerolog"
)

// DefaultKeepalive is the interval between credential refreshes
const DefaultKeepalive = 60 * time.Second

// Runner executes a command with elevated privileges
type Runner interface {
	Run(ctx context.Context, cmd string, args []string, reason string) (*Result, error)
}

// Tool describes the flags of an elevation program
type Tool struct {
	Name string
	// InitialFlags validate credentials once; empty skips the step
	InitialFlags []string
	// KeepaliveFlags refresh credentials without prompting; empty disables refresh
	KeepaliveFlags []string
	// TerminationFlags drop cached credentials; empty skips the step
	TerminationFlags []string
}

// Sudo returns the sudo profile
func Sudo() Tool {
	return Tool{
		Name:             "sudo",
		InitialFlags:     []string{"-v"},
		KeepaliveFlags:   []string{"-v", "-n"},
		TerminationFlags: []string{"-k"},
	}
}

// Doas returns the doas profile
func Doas() Tool {
	return Tool{
		Name:             "doas",
		KeepaliveFlags:   []string{"-n", "true"},
		TerminationFlags: []string{"-L"},
	}
}

// ToolByName resolves "sudo" or "doas"
func ToolByName(name string) (Tool, error) {
	switch name {
	case "sudo":
		return Sudo(), nil
	case "doas":
		return Doas(), nil
	default:
		return Tool{}, errors.Newf(errors.ErrConfigInvalid, "unsupported elevation tool %q", name)
	}
}

// Manager is the process-wide elevation session
type Manager struct {
	tool      Tool
	enabled   bool
	keepalive time.Duration
	logger    zerolog.Logger

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

// Option configures a Manager
type Option func(*Manager)

// WithEnabled turns elevation on or off
func WithEnabled(enabled bool) Option {
	return func(m *Manager) { m.enabled = enabled }
}

// WithKeepalive sets the refresh interval
func WithKeepalive(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.keepalive = d
		}
	}
}

// NewManager creates a Manager; the session starts on the first Run
func NewManager(tool Tool, opts ...Option) *Manager {
	m := &Manager{
		tool:      tool,
		enabled:   true,
		keepalive: DefaultKeepalive,
		logger:    logging.GetLogger("elevate"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Tool returns the configured elevation program
func (m *Manager) Tool() Tool {
	return m.tool
}

// Enabled reports whether elevated commands may run
func (m *Manager) Enabled() bool {
	return m.enabled
}

// Run executes cmd through the elevation tool
func (m *Manager) Run(ctx context.Context, cmd string, args []string, reason string) (*Result, error) {
	if !m.enabled {
		return nil, errors.Newf(errors.ErrElevation, "elevated privileges required to %s but elevation is disabled", reason).
			WithDetail("command", cmd)
	}

	if err := m.ensureSession(ctx, reason); err != nil {
		return nil, err
	}

	m.logger.Debug().
		Str("command", cmd).
		Strs("args", args).
		Str("reason", reason).
		Msg("Running elevated command")

	result, err := Execute(ctx, Command{
		Name: m.tool.Name,
		Args: append([]string{cmd}, args...),
	})
	if err != nil {
		return result, errors.Wrapf(err, errors.ErrElevation, "elevated %s failed while trying to %s", cmd, reason)
	}
	return result, nil
}

func (m *Manager) ensureSession(ctx context.Context, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}

	if _, err := exec.LookPath(m.tool.Name); err != nil {
		return errors.Wrapf(err, errors.ErrElevation, "%s not found in PATH", m.tool.Name)
	}

	m.logger.Info().
		Str("tool", m.tool.Name).
		Str("reason", reason).
		Msg("Requesting elevated privileges")

	if len(m.tool.InitialFlags) > 0 {
		_, err := Execute(ctx, Command{
			Name:        m.tool.Name,
			Args:        m.tool.InitialFlags,
			Interactive: true,
		})
		if err != nil {
			return errors.Wrapf(err, errors.ErrElevation, "failed to obtain privileges with %s", m.tool.Name)
		}
	}

	m.started = true
	if len(m.tool.KeepaliveFlags) > 0 {
		m.stop = make(chan struct{})
		m.done = make(chan struct{})
		go m.refresh(m.stop, m.done)
	}
	return nil
}

func (m *Manager) refresh(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_, err := Execute(context.Background(), Command{
				Name: m.tool.Name,
				Args: m.tool.KeepaliveFlags,
			})
			if err != nil {
				m.logger.Warn().Err(err).Msg("Failed to refresh elevated privileges")
			}
		}
	}
}

// Close stops the refresh loop and drops cached credentials
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}
	m.started = false

	if m.stop != nil {
		close(m.stop)
		<-m.done
		m.stop, m.done = nil, nil
	}

	if len(m.tool.TerminationFlags) == 0 {
		return nil
	}
	_, err := Execute(ctx, Command{Name: m.tool.Name, Args: m.tool.TerminationFlags})
	if err != nil {
		return errors.Wrapf(err, errors.ErrElevation, "failed to drop %s credentials", m.tool.Name)
	}
	return nil
}
