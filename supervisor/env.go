package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// javaHome resolves JAVA_HOME per spec.md §6: the harness's own environment
// if set, or "the harness's own runtime home as fallback." Galvan itself
// has no JVM runtime, so the fallback resolves the java binary on PATH and
// derives its install root (bin/java -> install root), the standard trick
// tools without a bundled JRE use to discover one.
func javaHome() (string, error) {
	if home := os.Getenv("JAVA_HOME"); home != "" {
		return home, nil
	}
	javaBin, err := exec.LookPath("java")
	if err != nil {
		return "", fmt.Errorf("JAVA_HOME unset and no java binary on PATH: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(javaBin)
	if err != nil {
		resolved = javaBin
	}
	// resolved is typically <home>/bin/java.
	return filepath.Dir(filepath.Dir(resolved)), nil
}

// buildEnv constructs the child process environment: the harness's own
// environment plus JAVA_HOME (resolved once at construction and stashed, per
// spec.md §9 — never re-consulted mid-run) and an extended JAVA_OPTS
// carrying heap sizing, optional remote-debug flags, and one -D flag per
// configured system property, per spec.md §6.
func (s *Supervisor) buildEnv() []string {
	var opts strings.Builder
	if existing := os.Getenv("JAVA_OPTS"); existing != "" {
		opts.WriteString(existing)
	}
	fmt.Fprintf(&opts, " -Xms%dm -Xmx%dm", s.identity.HeapMB, s.identity.HeapMB)
	if s.identity.DebugPort > 0 {
		fmt.Fprintf(&opts, " -Xdebug -Xrunjdwp:transport=dt_socket,server=y,address=%d", s.identity.DebugPort)
	}

	keys := make([]string, 0, len(s.identity.SystemProperties))
	for k := range s.identity.SystemProperties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&opts, " -D%s=%s", k, s.identity.SystemProperties[k])
	}

	env := os.Environ()
	env = append(env, "JAVA_HOME="+s.javaHome, "JAVA_OPTS="+opts.String())
	return env
}
