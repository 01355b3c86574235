package inventory

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// CPUSpec describes the CPU topology of an instance.
type CPUSpec struct {
	Cores          int32 `json:"Cores"`
	ThreadsPerCore int32 `json:"ThreadsPerCore"`
	TotalVCPUs     int32 `json:"TotalvCPUs"`
}

// StorageDevice is one attached EBS volume with its resolved size.
type StorageDevice struct {
	DeviceName string `json:"DeviceName"`
	VolumeID   string `json:"VolumeId"`
	SizeGB     int32  `json:"SizeGB"`
}

// StorageSummary aggregates the attached volumes of an instance.
type StorageSummary struct {
	Devices     []StorageDevice `json:"Devices"`
	TotalSizeGB int32           `json:"TotalSizeGB"`
}

// HardwareReport is the per-instance hardware view served over HTTP.
type HardwareReport struct {
	InstanceID        string         `json:"InstanceId"`
	HostName          string         `json:"HostName"`
	HostType          string         `json:"HostType"`
	SerialNumber      string         `json:"SerialNumber"`
	CPU               CPUSpec        `json:"CPU"`
	Memory            string         `json:"Memory"`
	Storage           StorageSummary `json:"Storage"`
	NetworkInterfaces int            `json:"NetworkInterfaces"`
	SecurityGroups    []string       `json:"SecurityGroups"`
}

// HardwareRow is one line of a hardware export. Field order matches the
// CSV column order.
type HardwareRow struct {
	InstanceID     string
	Name           string
	HostName       string
	HostType       string
	SerialNumber   string
	State          string
	CPUCores       int32
	ThreadsPerCore int32
	TotalVCPUs     int32
	RAM            string
	HardDiskSize   string
	PublicIP       string
	PrivateIP      string
	VPC            string
	Platform       string
}

// Hardware aggregates EC2 descriptions, volume sizes, the static memory
// table, and live SSM probes into hardware reports.
type Hardware struct {
	provider Provider
	prober   *Prober
	specs    *Specs
	logger   *zap.Logger
}

// NewHardware creates a hardware aggregator.
func NewHardware(provider Provider, prober *Prober, specs *Specs, logger *zap.Logger) *Hardware {
	return &Hardware{
		provider: provider,
		prober:   prober,
		specs:    specs,
		logger:   logger,
	}
}

// BuildReport assembles the full hardware report for one instance.
// Volume lookups that fail are skipped with a warning; probe failures
// leave the tag-derived hostname and the ID-derived serial in place.
// An unknown instance ID surfaces as awsx.ErrInstanceNotFound.
func (h *Hardware) BuildReport(ctx context.Context, instanceID string) (*HardwareReport, error) {
	inst, err := h.provider.DescribeInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	record := NewInstanceRecord(inst, h.specs)

	report := &HardwareReport{
		InstanceID:        record.InstanceID,
		HostName:          record.Name,
		HostType:          record.InstanceType,
		SerialNumber:      serialFallback(instanceID),
		CPU:               cpuSpec(record),
		Memory:            record.Memory,
		Storage:           h.collectStorage(ctx, record),
		NetworkInterfaces: record.NetworkInterfaces,
		SecurityGroups:    record.SecurityGroups,
	}

	if managed := managedSet(h.provider.ManagedInstanceIDs(ctx)); managed[instanceID] {
		h.resolveLiveAttrs(ctx, instanceID, &report.HostName, &report.SerialNumber)
	}
	return report, nil
}

// BuildExportRows assembles export rows for every instance in the region.
// Instances whose detail collection fails are skipped with a warning so a
// single bad instance cannot sink a fleet export.
func (h *Hardware) BuildExportRows(ctx context.Context) ([]HardwareRow, error) {
	summaries, err := h.provider.ListInstances(ctx)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}

	managed := managedSet(h.provider.ManagedInstanceIDs(ctx))

	rows := make([]HardwareRow, 0, len(summaries))
	for _, summary := range summaries {
		row, err := h.buildRow(ctx, summary.InstanceID, managed)
		if err != nil {
			h.logger.Warn("Skipping instance in hardware export",
				zap.String("instance_id", summary.InstanceID),
				zap.Error(err))
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// buildRow collects one export row, reusing the managed-instance set
// computed once per export.
func (h *Hardware) buildRow(ctx context.Context, instanceID string, managed map[string]bool) (HardwareRow, error) {
	inst, err := h.provider.DescribeInstance(ctx, instanceID)
	if err != nil {
		return HardwareRow{}, err
	}
	record := NewInstanceRecord(inst, h.specs)

	hostname := record.Name
	serial := serialFallback(instanceID)
	if managed[instanceID] {
		h.resolveLiveAttrs(ctx, instanceID, &hostname, &serial)
	}

	storage := h.collectStorage(ctx, record)
	disk := NotAvailable
	if storage.TotalSizeGB > 0 {
		disk = fmt.Sprintf("%d GB", storage.TotalSizeGB)
	}

	return HardwareRow{
		InstanceID:     record.InstanceID,
		Name:           record.Name,
		HostName:       hostname,
		HostType:       record.InstanceType,
		SerialNumber:   serial,
		State:          record.State,
		CPUCores:       record.CPUCores,
		ThreadsPerCore: record.ThreadsPerCore,
		TotalVCPUs:     record.TotalVCPUs,
		RAM:            record.Memory,
		HardDiskSize:   disk,
		PublicIP:       record.PublicIP,
		PrivateIP:      record.PrivateIP,
		VPC:            record.VpcID,
		Platform:       record.Platform,
	}, nil
}

// collectStorage resolves the size of every attached volume. Volumes that
// cannot be described are skipped with a warning and excluded from the
// total.
func (h *Hardware) collectStorage(ctx context.Context, record InstanceRecord) StorageSummary {
	summary := StorageSummary{Devices: []StorageDevice{}}
	for _, dev := range record.BlockDevices {
		size, err := h.provider.VolumeSizeGB(ctx, dev.VolumeID)
		if err != nil {
			h.logger.Warn("Skipping volume in storage summary",
				zap.String("instance_id", record.InstanceID),
				zap.String("volume_id", dev.VolumeID),
				zap.Error(err))
			continue
		}
		summary.Devices = append(summary.Devices, StorageDevice{
			DeviceName: dev.DeviceName,
			VolumeID:   dev.VolumeID,
			SizeGB:     size,
		})
		summary.TotalSizeGB += size
	}
	return summary
}

// resolveLiveAttrs probes the instance over SSM and overwrites the given
// defaults with whatever the probes resolved. Unresolved probe values
// leave the defaults untouched.
func (h *Hardware) resolveLiveAttrs(ctx context.Context, instanceID string, hostname, serial *string) {
	if v := h.prober.Hostname(ctx, instanceID); v != NotAvailable {
		*hostname = v
	}
	if v := h.prober.Serial(ctx, instanceID); v != NotAvailable {
		*serial = v
	}
}

// cpuSpec lifts the CPU topology out of an instance record.
func cpuSpec(record InstanceRecord) CPUSpec {
	return CPUSpec{
		Cores:          record.CPUCores,
		ThreadsPerCore: record.ThreadsPerCore,
		TotalVCPUs:     record.TotalVCPUs,
	}
}
