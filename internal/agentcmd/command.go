// Package agentcmd builds the external command line used to invoke an
// agent CLI: runtime polymorphism over agent CLIs as a tagged variant
// with a single BuildCommand operation, no inheritance.
package agentcmd

import (
	"fmt"
	"os/exec"
	"strings"
)

// Runtime identifies which agent CLI to invoke.
type Runtime string

const (
	Claude   Runtime = "claude"
	Opencode Runtime = "opencode"
)

// Options carries everything BuildCommand needs beyond identity.
type Options struct {
	Worktree              string
	Skill                 string
	Identifier            string
	Model                 string
	RequireAllTestsPass   bool
	CoverageThreshold     float64
	OutputFormat          string // e.g. "stream-json"
}

// hasCclean reports whether the optional output-cleaning filter is on
// PATH; the inner pipe is optional and falls through when absent.
var hasCclean = func() bool {
	_, err := exec.LookPath("cclean")
	return err == nil
}

// BuildCommand constructs the shell command line used to invoke the agent:
//
//	cd <worktree> && echo '<skill> <identifier>' | <runtime> -p [flags] --model <model> | cclean
func (r Runtime) BuildCommand(opts Options) string {
	var flags []string
	flags = append(flags, "-p")
	if opts.OutputFormat != "" {
		flags = append(flags, "--output-format", opts.OutputFormat)
	}
	if opts.RequireAllTestsPass {
		flags = append(flags, "--require-tests")
	}
	if opts.CoverageThreshold > 0 {
		flags = append(flags, "--min-coverage", fmt.Sprintf("%g", opts.CoverageThreshold))
	}
	flags = append(flags, "--model", opts.Model)

	pipeline := fmt.Sprintf("echo '%s %s' | %s %s", opts.Skill, opts.Identifier, r, strings.Join(flags, " "))
	if hasCclean() {
		pipeline += " | cclean"
	}

	return fmt.Sprintf("cd %s && %s", opts.Worktree, pipeline)
}

// ParseRuntime validates a configured runtime name.
func ParseRuntime(name string) (Runtime, error) {
	switch Runtime(name) {
	case Claude, Opencode:
		return Runtime(name), nil
	default:
		return "", fmt.Errorf("agentcmd: unsupported runtime %q", name)
	}
}
