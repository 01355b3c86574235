// Package awsx wraps the EC2 and SSM control-plane calls the connector
// consumes behind a narrow gateway. All methods are read-only against the
// provider except Run Command dispatch, which executes short query scripts
// on managed instances.
package awsx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

const applicationInventoryType = "AWS:Application"

// ErrInstanceNotFound reports that the provider returned no instance for
// the requested id.
var ErrInstanceNotFound = errors.New("instance not found")

// ErrNotRegistered reports that SSM does not recognize the instance id.
var ErrNotRegistered = errors.New("instance not registered with SSM")

// EC2API is the subset of the EC2 client the gateway uses.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
}

// SSMAPI is the subset of the SSM client the gateway uses.
type SSMAPI interface {
	DescribeInstanceInformation(ctx context.Context, params *ssm.DescribeInstanceInformationInput, optFns ...func(*ssm.Options)) (*ssm.DescribeInstanceInformationOutput, error)
	SendCommand(ctx context.Context, params *ssm.SendCommandInput, optFns ...func(*ssm.Options)) (*ssm.SendCommandOutput, error)
	GetCommandInvocation(ctx context.Context, params *ssm.GetCommandInvocationInput, optFns ...func(*ssm.Options)) (*ssm.GetCommandInvocationOutput, error)
	ListInventoryEntries(ctx context.Context, params *ssm.ListInventoryEntriesInput, optFns ...func(*ssm.Options)) (*ssm.ListInventoryEntriesOutput, error)
}

// InstanceSummary is the flattened listing shape for one instance.
type InstanceSummary struct {
	InstanceID   string `json:"InstanceId"`
	InstanceType string `json:"InstanceType"`
	State        string `json:"State"`
	PublicIP     string `json:"PublicIP"`
	PrivateIP    string `json:"PrivateIP"`
	Platform     string `json:"Platform"`
	LaunchTime   string `json:"LaunchTime"`
}

// CommandResult carries the terminal or in-flight state of one Run Command
// invocation.
type CommandResult struct {
	Status string
	Output string
}

// Gateway exposes the provider operations the aggregators need. It holds
// no mutable state; every call is a fresh round-trip.
type Gateway struct {
	ec2    EC2API
	ssm    SSMAPI
	logger *zap.Logger
}

// New builds EC2 and SSM clients from the ambient credential chain. An
// empty region defers to the SDK's own resolution.
func New(ctx context.Context, region string, logger *zap.Logger) (*Gateway, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}

	logger.Info("AWS clients initialized", zap.String("region", cfg.Region))

	return &Gateway{
		ec2:    ec2.NewFromConfig(cfg),
		ssm:    ssm.NewFromConfig(cfg),
		logger: logger,
	}, nil
}

// NewWithClients wires pre-built API clients. Tests use this with fakes.
func NewWithClients(ec2Client EC2API, ssmClient SSMAPI, logger *zap.Logger) *Gateway {
	return &Gateway{ec2: ec2Client, ssm: ssmClient, logger: logger}
}

// ListInstances returns a flattened summary of every instance across all
// reservations, with absent optional fields defaulted.
func (g *Gateway) ListInstances(ctx context.Context) ([]InstanceSummary, error) {
	g.logger.Info("Fetching all EC2 instances")

	out, err := g.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{})
	if err != nil {
		return nil, fmt.Errorf("describing instances: %w", err)
	}

	instances := []InstanceSummary{}
	for _, reservation := range out.Reservations {
		for _, inst := range reservation.Instances {
			summary := InstanceSummary{
				InstanceID:   aws.ToString(inst.InstanceId),
				InstanceType: string(inst.InstanceType),
				State:        instanceState(inst),
				PublicIP:     stringOr(inst.PublicIpAddress, "N/A"),
				PrivateIP:    stringOr(inst.PrivateIpAddress, "N/A"),
				Platform:     platformOf(inst),
			}
			if inst.LaunchTime != nil {
				summary.LaunchTime = inst.LaunchTime.Format(time.RFC3339)
			}
			instances = append(instances, summary)
		}
	}

	g.logger.Info("Retrieved EC2 instances", zap.Int("count", len(instances)))
	return instances, nil
}

// DescribeInstance fetches the raw description of one instance. A response
// with no matching instance, or the provider's unknown-id error, yields
// ErrInstanceNotFound.
func (g *Gateway) DescribeInstance(ctx context.Context, instanceID string) (ec2types.Instance, error) {
	out, err := g.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && strings.HasPrefix(apiErr.ErrorCode(), "InvalidInstanceID") {
			return ec2types.Instance{}, fmt.Errorf("%w: %s", ErrInstanceNotFound, instanceID)
		}
		return ec2types.Instance{}, fmt.Errorf("describing instance %s: %w", instanceID, err)
	}

	for _, reservation := range out.Reservations {
		for _, inst := range reservation.Instances {
			return inst, nil
		}
	}

	return ec2types.Instance{}, fmt.Errorf("%w: %s", ErrInstanceNotFound, instanceID)
}

// VolumeSizeGB returns the size of one EBS volume in GiB.
func (g *Gateway) VolumeSizeGB(ctx context.Context, volumeID string) (int32, error) {
	out, err := g.ec2.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
		VolumeIds: []string{volumeID},
	})
	if err != nil {
		return 0, fmt.Errorf("describing volume %s: %w", volumeID, err)
	}
	if len(out.Volumes) == 0 {
		return 0, fmt.Errorf("volume %s not found", volumeID)
	}
	return aws.ToInt32(out.Volumes[0].Size), nil
}

// ManagedInstanceIDs returns the ids SSM reports as managed, in the order
// the provider lists them. A provider failure is logged and yields an
// empty set; management gating then treats every instance as unmanaged
// rather than failing the request.
func (g *Gateway) ManagedInstanceIDs(ctx context.Context) []string {
	out, err := g.ssm.DescribeInstanceInformation(ctx, &ssm.DescribeInstanceInformationInput{})
	if err != nil {
		g.logger.Warn("Could not list SSM managed instances", zap.Error(err))
		return []string{}
	}

	ids := make([]string, 0, len(out.InstanceInformationList))
	for _, info := range out.InstanceInformationList {
		if id := aws.ToString(info.InstanceId); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// SendCommand dispatches a script to one instance under the named SSM
// document and returns the command id for polling.
func (g *Gateway) SendCommand(ctx context.Context, instanceID, document string, commands []string) (string, error) {
	out, err := g.ssm.SendCommand(ctx, &ssm.SendCommandInput{
		InstanceIds:  []string{instanceID},
		DocumentName: aws.String(document),
		Parameters:   map[string][]string{"commands": commands},
	})
	if err != nil {
		return "", fmt.Errorf("sending %s to %s: %w", document, instanceID, err)
	}
	if out.Command == nil || aws.ToString(out.Command.CommandId) == "" {
		return "", fmt.Errorf("sending %s to %s: no command id returned", document, instanceID)
	}
	return aws.ToString(out.Command.CommandId), nil
}

// CommandInvocation fetches the current status and stdout of a dispatched
// command.
func (g *Gateway) CommandInvocation(ctx context.Context, commandID, instanceID string) (CommandResult, error) {
	out, err := g.ssm.GetCommandInvocation(ctx, &ssm.GetCommandInvocationInput{
		CommandId:  aws.String(commandID),
		InstanceId: aws.String(instanceID),
	})
	if err != nil {
		return CommandResult{}, fmt.Errorf("fetching invocation %s on %s: %w", commandID, instanceID, err)
	}
	return CommandResult{
		Status: string(out.Status),
		Output: aws.ToString(out.StandardOutputContent),
	}, nil
}

// ApplicationInventory lists the SSM AWS:Application inventory entries for
// one instance. An unknown-id error from SSM yields ErrNotRegistered so
// callers can distinguish it from operational failures.
func (g *Gateway) ApplicationInventory(ctx context.Context, instanceID string) ([]map[string]string, error) {
	out, err := g.ssm.ListInventoryEntries(ctx, &ssm.ListInventoryEntriesInput{
		InstanceId: aws.String(instanceID),
		TypeName:   aws.String(applicationInventoryType),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && strings.Contains(apiErr.ErrorCode(), "InvalidInstanceId") {
			return nil, fmt.Errorf("%w: %s", ErrNotRegistered, instanceID)
		}
		if strings.Contains(err.Error(), "InvalidInstanceId") {
			return nil, fmt.Errorf("%w: %s", ErrNotRegistered, instanceID)
		}
		return nil, fmt.Errorf("listing application inventory for %s: %w", instanceID, err)
	}
	return out.Entries, nil
}

func instanceState(inst ec2types.Instance) string {
	if inst.State == nil {
		return ""
	}
	return string(inst.State.Name)
}

func platformOf(inst ec2types.Instance) string {
	if inst.Platform == "" {
		return "Linux/UNIX"
	}
	return string(inst.Platform)
}

func stringOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
