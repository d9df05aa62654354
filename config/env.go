package config

import (
	"fmt"
	"os"
	"sort"
)

// subprocessAllowlist is the set of environment variables forwarded to
// spawned agent and tracker processes. Everything else is withheld to
// keep the subprocess attack surface small.
var subprocessAllowlist = []string{
	"ANTHROPIC_API_KEY",
	"GITHUB_PAT",
	"CLAUDE_CODE_PATH",
	"CLAUDE_BASH_MAINTAIN_PROJECT_WORKING_DIR",
	"E2B_API_KEY",
	"CLOUDFLARED_TUNNEL_TOKEN",
	"CLOUDFLARE_ACCOUNT_ID",
	"CLOUDFLARE_R2_ACCESS_KEY_ID",
	"CLOUDFLARE_R2_SECRET_ACCESS_KEY",
	"CLOUDFLARE_R2_BUCKET_NAME",
	"CLOUDFLARE_R2_PUBLIC_DOMAIN",
	"HOME",
	"USER",
	"PATH",
	"SHELL",
	"TERM",
	"LANG",
	"LC_ALL",
}

// EnvironmentConfig is an explicit snapshot of the allow-listed
// environment. It is captured once at startup and passed into the
// layers that spawn subprocesses; deep call layers never read the
// ambient environment themselves.
type EnvironmentConfig struct {
	vars map[string]string
}

// SubprocessEnv captures the allow-listed variables from the ambient
// environment. CLAUDE_CODE_PATH defaults to "claude" and GH_TOKEN is
// derived from GITHUB_PAT so the gh CLI authenticates the same way the
// agent does.
func SubprocessEnv() EnvironmentConfig {
	vars := make(map[string]string, len(subprocessAllowlist)+2)
	for _, key := range subprocessAllowlist {
		if v := os.Getenv(key); v != "" {
			vars[key] = v
		}
	}
	if vars["CLAUDE_CODE_PATH"] == "" {
		vars["CLAUDE_CODE_PATH"] = "claude"
	}
	if pat := vars["GITHUB_PAT"]; pat != "" {
		vars["GH_TOKEN"] = pat
	}
	if cwd, err := os.Getwd(); err == nil {
		vars["PWD"] = cwd
	}
	return EnvironmentConfig{vars: vars}
}

// Get returns the value of key, or empty when not captured.
func (e EnvironmentConfig) Get(key string) string {
	return e.vars[key]
}

// Environ returns the captured variables in KEY=VALUE form, sorted for
// stable subprocess invocations.
func (e EnvironmentConfig) Environ() []string {
	env := make([]string, 0, len(e.vars))
	for k, v := range e.vars {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(env)
	return env
}
