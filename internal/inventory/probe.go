package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"go.uber.org/zap"

	"github.com/saylee206/AWS-API/internal/awsx"
)

// Command documents and scripts dispatched to instances over SSM. The
// Windows flavor is always tried first, matching the behavior operators
// have come to rely on for mixed fleets.
const (
	docPowerShell = "AWS-RunPowerShellScript"
	docShell      = "AWS-RunShellScript"

	hostnameCommand = "hostname"

	windowsSerialCommand = "(Get-WmiObject -Class Win32_ComputerSystemProduct).UUID"
	linuxSerialCommand   = "cat /sys/class/dmi/id/product_uuid 2>/dev/null || sudo dmidecode -s system-uuid 2>/dev/null || echo 'N/A'"
)

// errStillRunning marks a poll that found the command not yet terminal.
var errStillRunning = errors.New("command still running")

// PollPolicy controls how long the prober waits for a dispatched command
// before reading its result. The defaults reproduce the historical
// fixed-delay behavior; raising MaxPolls trades latency for fewer missed
// results on slow agents.
type PollPolicy struct {
	// SettleDelay is the pause between dispatching a command and the
	// first result read.
	SettleDelay time.Duration
	// PollInterval is the pause between consecutive result reads.
	PollInterval time.Duration
	// MaxPolls bounds how many result reads a single dispatch gets.
	MaxPolls uint
}

// DefaultPollPolicy returns the historical settle-then-read-once policy.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		SettleDelay:  2 * time.Second,
		PollInterval: 2 * time.Second,
		MaxPolls:     1,
	}
}

// CommandRunner dispatches commands to an instance and reads their results.
type CommandRunner interface {
	SendCommand(ctx context.Context, instanceID, document string, commands []string) (string, error)
	CommandInvocation(ctx context.Context, commandID, instanceID string) (awsx.CommandResult, error)
}

// Prober resolves live instance attributes by running commands on the
// instance through SSM. Probes never fail a caller: unresolved attributes
// collapse to their sentinel values.
type Prober struct {
	runner CommandRunner
	policy PollPolicy
	logger *zap.Logger
}

// NewProber creates a prober with the given poll policy.
func NewProber(runner CommandRunner, policy PollPolicy, logger *zap.Logger) *Prober {
	return &Prober{
		runner: runner,
		policy: policy,
		logger: logger,
	}
}

// Hostname resolves the OS-level hostname of an instance, trying
// PowerShell first and a shell command second. It returns "N/A" when
// neither attempt produces a successful result. A successful run with
// empty output is returned as-is.
func (p *Prober) Hostname(ctx context.Context, instanceID string) string {
	output, ok, err := p.resolve(ctx, instanceID, hostnameCommand, hostnameCommand, false)
	if err != nil {
		p.logger.Warn("Hostname probe failed",
			zap.String("instance_id", instanceID),
			zap.Error(err))
		return NotAvailable
	}
	if !ok {
		return NotAvailable
	}
	return output
}

// Serial resolves the BIOS UUID of an instance, trying a WMI query first
// and a DMI read second. Unresolved serials fall back to a deterministic
// value derived from the instance ID. A Linux run that reaches the final
// echo reports the literal string "N/A", which callers treat as
// unresolved.
func (p *Prober) Serial(ctx context.Context, instanceID string) string {
	output, ok, err := p.resolve(ctx, instanceID, windowsSerialCommand, linuxSerialCommand, true)
	if err != nil {
		p.logger.Warn("Serial probe failed",
			zap.String("instance_id", instanceID),
			zap.Error(err))
		return serialFallback(instanceID)
	}
	if !ok {
		return serialFallback(instanceID)
	}
	return output
}

// serialFallback derives a stable placeholder serial from the instance ID.
func serialFallback(instanceID string) string {
	suffix := instanceID
	if len(suffix) > 8 {
		suffix = suffix[len(suffix)-8:]
	}
	return "i-" + suffix
}

// resolve runs the two-document probe protocol: the Windows flavor first,
// the Linux flavor second. A non-success status falls through to the next
// attempt; an API error aborts the whole protocol.
func (p *Prober) resolve(ctx context.Context, instanceID, windowsCmd, linuxCmd string, requireOutput bool) (string, bool, error) {
	attempts := []struct {
		document string
		command  string
	}{
		{document: docPowerShell, command: windowsCmd},
		{document: docShell, command: linuxCmd},
	}

	for _, a := range attempts {
		output, ok, err := p.attempt(ctx, instanceID, a.document, a.command, requireOutput)
		if err != nil {
			return "", false, err
		}
		if ok {
			return output, true, nil
		}
	}
	return "", false, nil
}

// attempt dispatches one command and reads its result under the poll
// policy. It reports ok=false when the command did not finish with a
// Success status, or when output was required and came back empty.
func (p *Prober) attempt(ctx context.Context, instanceID, document, command string, requireOutput bool) (string, bool, error) {
	commandID, err := p.runner.SendCommand(ctx, instanceID, document, []string{command})
	if err != nil {
		return "", false, fmt.Errorf("send command: %w", err)
	}

	if p.policy.SettleDelay > 0 {
		select {
		case <-time.After(p.policy.SettleDelay):
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}

	var result awsx.CommandResult
	var pollErr error
	err = retry.Do(func() error {
		res, rerr := p.runner.CommandInvocation(ctx, commandID, instanceID)
		if rerr != nil {
			// Terminal for this dispatch, reported after the loop.
			pollErr = rerr
			return nil
		}
		result = res
		if isRunning(res.Status) {
			return errStillRunning
		}
		return nil
	}, retry.Attempts(p.policy.MaxPolls), retry.Delay(p.policy.PollInterval), retry.MaxDelay(p.policy.PollInterval))
	if pollErr != nil {
		return "", false, fmt.Errorf("get command invocation: %w", pollErr)
	}
	if err != nil {
		// Every allowed poll saw an in-flight status.
		p.logger.Debug("Command still running after last poll",
			zap.String("instance_id", instanceID),
			zap.String("document", document),
			zap.String("status", result.Status),
			zap.Uint("max_polls", p.policy.MaxPolls))
		return "", false, nil
	}

	if result.Status != "Success" {
		p.logger.Debug("Command finished without success",
			zap.String("instance_id", instanceID),
			zap.String("document", document),
			zap.String("status", result.Status))
		return "", false, nil
	}

	output := strings.TrimSpace(result.Output)
	if requireOutput && output == "" {
		return "", false, nil
	}
	return output, true, nil
}

// isRunning reports whether an invocation status is non-terminal.
func isRunning(status string) bool {
	switch status {
	case "Pending", "InProgress", "Delayed":
		return true
	}
	return false
}
