package rebuild

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/listenupapp/semodwatch/internal/errors"
	"github.com/listenupapp/semodwatch/internal/runner"
)

const policyNameLabel = "Loaded policy name:"

var labelSeparator = regexp.MustCompile(`:[ ]+`)

// PolicyLocator finds the build recipe of the active SELinux policy.
type PolicyLocator struct {
	runner        runner.Runner
	statusCommand string
	policyRoot    string
}

// NewPolicyLocator creates a locator that queries statusCommand and looks up
// recipes under policyRoot.
func NewPolicyLocator(r runner.Runner, statusCommand, policyRoot string) *PolicyLocator {
	return &PolicyLocator{
		runner:        r,
		statusCommand: statusCommand,
		policyRoot:    policyRoot,
	}
}

// PolicyName returns the name of the loaded policy as reported by the
// status command.
func (l *PolicyLocator) PolicyName(ctx context.Context) (string, error) {
	result, err := l.runner.Run(ctx, runner.Command{Name: l.statusCommand, Quiet: true})
	if err != nil {
		return "", errors.Wrapf(err, errors.CodePolicyDiscovery, "query %s", l.statusCommand)
	}

	name := ParsePolicyName(result.Lines)
	if name == "" {
		return "", errors.PolicyDiscoveryf("%s did not report a loaded policy name", l.statusCommand)
	}
	return name, nil
}

// Recipe returns the absolute path of the loaded policy's Makefile.
func (l *PolicyLocator) Recipe(ctx context.Context) (string, error) {
	name, err := l.PolicyName(ctx)
	if err != nil {
		return "", err
	}

	recipe := filepath.Join(l.policyRoot, name, "include", "Makefile")
	info, err := os.Stat(recipe)
	if err != nil {
		return "", errors.Wrapf(err, errors.CodePolicyDiscovery, "recipe for policy %s", name)
	}
	if info.IsDir() {
		return "", errors.PolicyDiscoveryf("recipe for policy %s is a directory: %s", name, recipe)
	}
	return recipe, nil
}

// ParsePolicyName extracts the policy name from status output. It returns
// an empty string when no line carries the label.
func ParsePolicyName(lines []string) string {
	for _, line := range lines {
		if !strings.Contains(line, policyNameLabel) {
			continue
		}
		parts := labelSeparator.Split(line, 2)
		if len(parts) < 2 {
			continue
		}
		return strings.TrimSpace(parts[1])
	}
	return ""
}
