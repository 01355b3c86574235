// Package inventory builds hardware and software views of EC2 instances
// from provider descriptions, SSM Run Command probes, and SSM inventory
// entries, and flattens them into export rows.
package inventory

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// Sentinel values used in place of missing fields. Sentinels are data,
// never errors.
const (
	// NotAvailable marks optional provider fields with no value.
	NotAvailable = "N/A"
	// Unknown marks fields that could not be resolved.
	Unknown = "Unknown"
	// NoApplicationsFound is the placeholder application name for managed
	// instances whose inventory is empty.
	NoApplicationsFound = "No applications found"
)

// defaultPlatform is what EC2 means when it omits the Platform field.
const defaultPlatform = "Linux/UNIX"

// Tag is one instance tag in provider order.
type Tag struct {
	Key   string
	Value string
}

// BlockDevice is one EBS-backed device mapping.
type BlockDevice struct {
	DeviceName string
	VolumeID   string
}

// InstanceRecord is the normalized view of one raw instance description.
// Records are built fresh per request and never persisted.
type InstanceRecord struct {
	InstanceID        string
	InstanceType      string
	State             string
	PublicIP          string
	PrivateIP         string
	Platform          string
	VpcID             string
	LaunchTime        string
	CPUCores          int32
	ThreadsPerCore    int32
	TotalVCPUs        int32
	SecurityGroups    []string
	BlockDevices      []BlockDevice
	NetworkInterfaces int
	Tags              []Tag
	Name              string
	Memory            string
}

// NewInstanceRecord normalizes a raw description. This is pure data
// shaping: every optional field defaults independently and nothing fails.
// TotalVCPUs is always the product of the two CPU fields.
func NewInstanceRecord(inst ec2types.Instance, specs *Specs) InstanceRecord {
	rec := InstanceRecord{
		InstanceID:        aws.ToString(inst.InstanceId),
		InstanceType:      string(inst.InstanceType),
		State:             stateName(inst.State),
		PublicIP:          orSentinel(inst.PublicIpAddress, NotAvailable),
		PrivateIP:         orSentinel(inst.PrivateIpAddress, NotAvailable),
		Platform:          defaultPlatform,
		VpcID:             orSentinel(inst.VpcId, NotAvailable),
		CPUCores:          1,
		ThreadsPerCore:    1,
		NetworkInterfaces: len(inst.NetworkInterfaces),
	}

	if inst.Platform != "" {
		rec.Platform = string(inst.Platform)
	}
	if inst.LaunchTime != nil {
		rec.LaunchTime = inst.LaunchTime.Format(time.RFC3339)
	}
	if inst.CpuOptions != nil {
		if inst.CpuOptions.CoreCount != nil {
			rec.CPUCores = *inst.CpuOptions.CoreCount
		}
		if inst.CpuOptions.ThreadsPerCore != nil {
			rec.ThreadsPerCore = *inst.CpuOptions.ThreadsPerCore
		}
	}
	rec.TotalVCPUs = rec.CPUCores * rec.ThreadsPerCore

	rec.SecurityGroups = make([]string, 0, len(inst.SecurityGroups))
	for _, sg := range inst.SecurityGroups {
		rec.SecurityGroups = append(rec.SecurityGroups, aws.ToString(sg.GroupName))
	}

	rec.BlockDevices = make([]BlockDevice, 0, len(inst.BlockDeviceMappings))
	for _, mapping := range inst.BlockDeviceMappings {
		if mapping.Ebs == nil {
			continue
		}
		rec.BlockDevices = append(rec.BlockDevices, BlockDevice{
			DeviceName: aws.ToString(mapping.DeviceName),
			VolumeID:   aws.ToString(mapping.Ebs.VolumeId),
		})
	}

	rec.Tags = make([]Tag, 0, len(inst.Tags))
	for _, tag := range inst.Tags {
		rec.Tags = append(rec.Tags, Tag{Key: aws.ToString(tag.Key), Value: aws.ToString(tag.Value)})
	}

	rec.Name = nameFromTags(rec.Tags)
	rec.Memory = specs.Memory(rec.InstanceType)

	return rec
}

// nameFromTags returns the first tag valued under the Name key, scanning
// in provider order.
func nameFromTags(tags []Tag) string {
	for _, tag := range tags {
		if tag.Key == "Name" {
			return tag.Value
		}
	}
	return NotAvailable
}

func stateName(state *ec2types.InstanceState) string {
	if state == nil {
		return ""
	}
	return string(state.Name)
}

func orSentinel(s *string, sentinel string) string {
	if s == nil || *s == "" {
		return sentinel
	}
	return *s
}
