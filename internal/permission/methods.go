package permission

import (
	"context"
	"log/slog"
	"os/exec"
	"runtime"
)

// Method is one way of running a command with elevated privileges.
// Implementations wrap a host mechanism discovered at startup.
type Method interface {
	Name() string
	// Execute runs the command through the mechanism. The context carries
	// the caller's deadline; on timeout the attempt is failed, not retried.
	Execute(ctx context.Context, command string, args []string) (output string, err error)
}

type execMethod struct {
	name   string
	binary string
	// prefix holds the arguments placed before the target command.
	prefix []string
}

func (m *execMethod) Name() string { return m.name }

func (m *execMethod) Execute(ctx context.Context, command string, args []string) (string, error) {
	full := append(append([]string(nil), m.prefix...), command)
	full = append(full, args...)
	out, err := exec.CommandContext(ctx, m.binary, full...).CombinedOutput()
	return string(out), err
}

// DiscoverMethods probes the host for available elevation mechanisms and
// returns them in preference order: policy-kit elevation first, then
// GUI-authenticated sudo, terminal sudo, doas, and the platform-native
// mechanism on darwin. Discovery runs once at startup.
func DiscoverMethods(logger *slog.Logger) []Method {
	candidates := []*execMethod{
		{name: "pkexec", binary: "pkexec"},
		{name: "sudo_gui", binary: "sudo", prefix: []string{"-A", "--"}},
		{name: "sudo", binary: "sudo", prefix: []string{"-n", "--"}},
		{name: "doas", binary: "doas"},
	}
	if runtime.GOOS == "darwin" {
		candidates = append(candidates, &execMethod{
			name:   "osascript",
			binary: "osascript",
			prefix: []string{"-e"},
		})
	}

	methods := make([]Method, 0, len(candidates))
	for _, m := range candidates {
		if _, err := exec.LookPath(m.binary); err != nil {
			continue
		}
		methods = append(methods, m)
		if logger != nil {
			logger.Info("elevation method available", "method", m.name)
		}
	}
	return methods
}
