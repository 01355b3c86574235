package inventory

import (
	"context"
	"path/filepath"

	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.uber.org/zap"

	"github.com/saylee206/AWS-API/internal/awsx"
)

// Provider is the AWS surface the aggregators consume. *awsx.Gateway
// implements it.
type Provider interface {
	ListInstances(ctx context.Context) ([]awsx.InstanceSummary, error)
	DescribeInstance(ctx context.Context, instanceID string) (ec2types.Instance, error)
	VolumeSizeGB(ctx context.Context, volumeID string) (int32, error)
	ManagedInstanceIDs(ctx context.Context) []string
	ApplicationInventory(ctx context.Context, instanceID string) ([]map[string]string, error)
	CommandRunner
}

// ExportWriter persists export rows and returns the absolute path of the
// written file.
type ExportWriter interface {
	WriteHardware(rows []HardwareRow) (string, error)
	WriteSoftware(rows []SoftwareRow) (string, error)
}

// ExportNotifier is told about every completed export file. Notifications
// are fire-and-forget; implementations must not fail the export.
type ExportNotifier interface {
	ExportCompleted(kind string, records int, filePath string)
}

// InstanceList is the fleet listing served over HTTP.
type InstanceList struct {
	Instances []awsx.InstanceSummary `json:"instances"`
	Count     int                    `json:"count"`
}

// HardwareExport summarizes one completed hardware export.
type HardwareExport struct {
	Message  string `json:"message"`
	Records  int    `json:"records"`
	FilePath string `json:"file_path"`
}

// SoftwareExport summarizes one completed software export.
type SoftwareExport struct {
	Message             string `json:"message"`
	Records             int    `json:"records"`
	SSMManagedInstances int    `json:"ssm_managed_instances"`
	FilePath            string `json:"file_path"`
}

// CombinedExport summarizes a hardware export followed by a software
// export.
type CombinedExport struct {
	Message         string `json:"message"`
	HardwareFile    string `json:"hardware_file"`
	HardwareRecords int    `json:"hardware_records"`
	SoftwareFile    string `json:"software_file"`
	SoftwareRecords int    `json:"software_records"`
}

// Service ties the aggregators to an export writer and answers every
// inventory operation the connector exposes. Each call builds its view
// from scratch; the service holds no fleet state between calls.
type Service struct {
	provider Provider
	hardware *Hardware
	software *Software
	writer   ExportWriter
	notifier ExportNotifier
	logger   *zap.Logger
}

// NewService creates the inventory service and its aggregators.
func NewService(provider Provider, prober *Prober, specs *Specs, writer ExportWriter, logger *zap.Logger) *Service {
	return &Service{
		provider: provider,
		hardware: NewHardware(provider, prober, specs, logger),
		software: NewSoftware(provider, prober, specs, logger),
		writer:   writer,
		logger:   logger,
	}
}

// SetNotifier installs the export notifier. A nil notifier disables
// notifications.
func (s *Service) SetNotifier(n ExportNotifier) {
	s.notifier = n
}

// Instances lists every instance in the region with its summary fields.
func (s *Service) Instances(ctx context.Context) (*InstanceList, error) {
	summaries, err := s.provider.ListInstances(ctx)
	if err != nil {
		return nil, err
	}
	return &InstanceList{Instances: summaries, Count: len(summaries)}, nil
}

// HardwareReport builds the hardware report for one instance.
func (s *Service) HardwareReport(ctx context.Context, instanceID string) (*HardwareReport, error) {
	return s.hardware.BuildReport(ctx, instanceID)
}

// SoftwareReport builds the software report for one instance.
func (s *Service) SoftwareReport(ctx context.Context, instanceID string) *SoftwareReport {
	return s.software.BuildReport(ctx, instanceID)
}

// ExportHardware writes a hardware export for the whole fleet.
func (s *Service) ExportHardware(ctx context.Context) (*HardwareExport, error) {
	s.logger.Info("Starting hardware export")

	rows, err := s.hardware.BuildExportRows(ctx)
	if err != nil {
		return nil, err
	}
	path, err := s.writer.WriteHardware(rows)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Hardware export complete",
		zap.Int("records", len(rows)),
		zap.String("file", path))
	s.notify("hardware", len(rows), path)

	return &HardwareExport{
		Message:  "Hardware data exported to " + filepath.Base(path),
		Records:  len(rows),
		FilePath: path,
	}, nil
}

// ExportSoftware writes a software export covering every managed
// instance.
func (s *Service) ExportSoftware(ctx context.Context) (*SoftwareExport, error) {
	s.logger.Info("Starting software export")

	rows, managedCount, err := s.software.BuildExportRows(ctx)
	if err != nil {
		return nil, err
	}
	path, err := s.writer.WriteSoftware(rows)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Software export complete",
		zap.Int("records", len(rows)),
		zap.Int("managed_instances", managedCount),
		zap.String("file", path))
	s.notify("software", len(rows), path)

	return &SoftwareExport{
		Message:             "Software data exported to " + filepath.Base(path),
		Records:             len(rows),
		SSMManagedInstances: managedCount,
		FilePath:            path,
	}, nil
}

// ExportAll runs a hardware export, then a software export. A failure in
// either stage fails the combined operation; a hardware file already
// written is not rolled back.
func (s *Service) ExportAll(ctx context.Context) (*CombinedExport, error) {
	hardware, err := s.ExportHardware(ctx)
	if err != nil {
		return nil, err
	}
	software, err := s.ExportSoftware(ctx)
	if err != nil {
		return nil, err
	}
	return &CombinedExport{
		Message:         "All inventory data exported successfully",
		HardwareFile:    hardware.FilePath,
		HardwareRecords: hardware.Records,
		SoftwareFile:    software.FilePath,
		SoftwareRecords: software.Records,
	}, nil
}

func (s *Service) notify(kind string, records int, filePath string) {
	if s.notifier == nil {
		return
	}
	s.notifier.ExportCompleted(kind, records, filePath)
}

// managedSet indexes the managed-instance listing for membership checks.
func managedSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
