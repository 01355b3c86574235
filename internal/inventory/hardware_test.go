package inventory

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.uber.org/zap"

	"github.com/saylee206/AWS-API/internal/awsx"
)

// fakeProvider scripts the whole AWS surface the aggregators consume.
// Command invocation results are consumed in order across all probes;
// unscripted polls report Failed so probes resolve to their sentinels.
type fakeProvider struct {
	instances     []awsx.InstanceSummary
	listErr       error
	details       map[string]ec2types.Instance
	detailErrs    map[string]error
	volumes       map[string]int32
	volumeErrs    map[string]error
	managed       []string
	inventory     map[string][]map[string]string
	inventoryErrs map[string]error

	results []awsx.CommandResult
	sendErr error
	sends   int
	polls   int
}

func (f *fakeProvider) ListInstances(ctx context.Context) ([]awsx.InstanceSummary, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.instances, nil
}

func (f *fakeProvider) DescribeInstance(ctx context.Context, instanceID string) (ec2types.Instance, error) {
	if err := f.detailErrs[instanceID]; err != nil {
		return ec2types.Instance{}, err
	}
	inst, ok := f.details[instanceID]
	if !ok {
		return ec2types.Instance{}, awsx.ErrInstanceNotFound
	}
	return inst, nil
}

func (f *fakeProvider) VolumeSizeGB(ctx context.Context, volumeID string) (int32, error) {
	if err := f.volumeErrs[volumeID]; err != nil {
		return 0, err
	}
	size, ok := f.volumes[volumeID]
	if !ok {
		return 0, fmt.Errorf("no volume %s", volumeID)
	}
	return size, nil
}

func (f *fakeProvider) ManagedInstanceIDs(ctx context.Context) []string {
	return f.managed
}

func (f *fakeProvider) ApplicationInventory(ctx context.Context, instanceID string) ([]map[string]string, error) {
	if err := f.inventoryErrs[instanceID]; err != nil {
		return nil, err
	}
	return f.inventory[instanceID], nil
}

func (f *fakeProvider) SendCommand(ctx context.Context, instanceID, document string, commands []string) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sends++
	return fmt.Sprintf("cmd-%d", f.sends), nil
}

func (f *fakeProvider) CommandInvocation(ctx context.Context, commandID, instanceID string) (awsx.CommandResult, error) {
	i := f.polls
	f.polls++
	if i >= len(f.results) {
		return awsx.CommandResult{Status: "Failed"}, nil
	}
	return f.results[i], nil
}

// fleetInstance builds a running instance description with two cores, two
// threads per core, one network interface, and one EBS mapping per given
// volume id.
func fleetInstance(id, name, instanceType string, volumeIDs ...string) ec2types.Instance {
	inst := ec2types.Instance{
		InstanceId:        aws.String(id),
		InstanceType:      ec2types.InstanceType(instanceType),
		State:             &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning},
		PublicIpAddress:   aws.String("54.10.20.30"),
		PrivateIpAddress:  aws.String("10.0.1.15"),
		VpcId:             aws.String("vpc-11aa"),
		CpuOptions:        &ec2types.CpuOptions{CoreCount: aws.Int32(2), ThreadsPerCore: aws.Int32(2)},
		SecurityGroups:    []ec2types.GroupIdentifier{{GroupName: aws.String("web")}},
		NetworkInterfaces: []ec2types.InstanceNetworkInterface{{}},
	}
	if name != "" {
		inst.Tags = []ec2types.Tag{{Key: aws.String("Name"), Value: aws.String(name)}}
	}
	for i, volumeID := range volumeIDs {
		inst.BlockDeviceMappings = append(inst.BlockDeviceMappings, ec2types.InstanceBlockDeviceMapping{
			DeviceName: aws.String(fmt.Sprintf("/dev/sd%c", 'a'+i)),
			Ebs:        &ec2types.EbsInstanceBlockDevice{VolumeId: aws.String(volumeID)},
		})
	}
	return inst
}

func newTestHardware(provider *fakeProvider) *Hardware {
	logger := zap.NewNop()
	prober := NewProber(provider, fastPolicy(1), logger)
	return NewHardware(provider, prober, DefaultSpecs(), logger)
}

// TestHardwareReportStorage tests volume aggregation and the assembled
// report shape
func TestHardwareReportStorage(t *testing.T) {
	provider := &fakeProvider{
		details: map[string]ec2types.Instance{
			"i-0aaa": fleetInstance("i-0aaa", "web-1", "t2.large", "vol-1", "vol-2"),
		},
		volumes: map[string]int32{"vol-1": 20, "vol-2": 100},
	}
	hardware := newTestHardware(provider)

	report, err := hardware.BuildReport(context.Background(), "i-0aaa")
	if err != nil {
		t.Fatalf("BuildReport() error = %v", err)
	}

	if report.Storage.TotalSizeGB != 120 {
		t.Errorf("TotalSizeGB = %d, want 120", report.Storage.TotalSizeGB)
	}
	if len(report.Storage.Devices) != 2 {
		t.Fatalf("Devices = %d entries, want 2", len(report.Storage.Devices))
	}
	if report.Storage.Devices[0].VolumeID != "vol-1" || report.Storage.Devices[0].SizeGB != 20 {
		t.Errorf("Devices[0] = %+v", report.Storage.Devices[0])
	}
	if report.CPU != (CPUSpec{Cores: 2, ThreadsPerCore: 2, TotalVCPUs: 4}) {
		t.Errorf("CPU = %+v", report.CPU)
	}
	if report.Memory != "8 GiB" {
		t.Errorf("Memory = %q, want %q", report.Memory, "8 GiB")
	}
	if report.HostType != "t2.large" {
		t.Errorf("HostType = %q", report.HostType)
	}
	if report.NetworkInterfaces != 1 {
		t.Errorf("NetworkInterfaces = %d, want 1", report.NetworkInterfaces)
	}
	if len(report.SecurityGroups) != 1 || report.SecurityGroups[0] != "web" {
		t.Errorf("SecurityGroups = %v", report.SecurityGroups)
	}
}

// TestHardwareReportVolumeFailure tests that one failing volume lookup
// degrades the total instead of failing the report
func TestHardwareReportVolumeFailure(t *testing.T) {
	provider := &fakeProvider{
		details: map[string]ec2types.Instance{
			"i-0aaa": fleetInstance("i-0aaa", "web-1", "t2.large", "vol-1", "vol-2"),
		},
		volumes:    map[string]int32{"vol-2": 100},
		volumeErrs: map[string]error{"vol-1": errors.New("throttled")},
	}
	hardware := newTestHardware(provider)

	report, err := hardware.BuildReport(context.Background(), "i-0aaa")
	if err != nil {
		t.Fatalf("BuildReport() error = %v", err)
	}
	if report.Storage.TotalSizeGB != 100 {
		t.Errorf("TotalSizeGB = %d, want 100 from the surviving volume", report.Storage.TotalSizeGB)
	}
	if len(report.Storage.Devices) != 1 {
		t.Errorf("Devices = %d entries, want 1", len(report.Storage.Devices))
	}
}

// TestHardwareReportNotFound tests the unknown-instance error
func TestHardwareReportNotFound(t *testing.T) {
	hardware := newTestHardware(&fakeProvider{})

	_, err := hardware.BuildReport(context.Background(), "i-0aaa")
	if !errors.Is(err, awsx.ErrInstanceNotFound) {
		t.Errorf("BuildReport() error = %v, want ErrInstanceNotFound", err)
	}
}

// TestHardwareReportUnmanagedDefaults tests that unmanaged instances keep
// their tag-derived hostname and id-derived serial without any probing
func TestHardwareReportUnmanagedDefaults(t *testing.T) {
	provider := &fakeProvider{
		details: map[string]ec2types.Instance{
			"i-0123456789abcdef0": fleetInstance("i-0123456789abcdef0", "web-1", "t2.micro"),
		},
	}
	hardware := newTestHardware(provider)

	report, err := hardware.BuildReport(context.Background(), "i-0123456789abcdef0")
	if err != nil {
		t.Fatalf("BuildReport() error = %v", err)
	}
	if report.HostName != "web-1" {
		t.Errorf("HostName = %q, want tag name", report.HostName)
	}
	if report.SerialNumber != "i-9abcdef0" {
		t.Errorf("SerialNumber = %q, want %q", report.SerialNumber, "i-9abcdef0")
	}
	if provider.sends != 0 {
		t.Errorf("sends = %d, want 0 for an unmanaged instance", provider.sends)
	}
}

// TestHardwareReportManagedOverrides tests that resolved probe values
// replace the defaults
func TestHardwareReportManagedOverrides(t *testing.T) {
	provider := &fakeProvider{
		details: map[string]ec2types.Instance{
			"i-0aaa": fleetInstance("i-0aaa", "web-1", "t2.micro"),
		},
		managed: []string{"i-0aaa"},
		results: []awsx.CommandResult{
			{Status: "Success", Output: "WIN-HOST01\r\n"},
			{Status: "Success", Output: "4C4C4544-0042\n"},
		},
	}
	hardware := newTestHardware(provider)

	report, err := hardware.BuildReport(context.Background(), "i-0aaa")
	if err != nil {
		t.Fatalf("BuildReport() error = %v", err)
	}
	if report.HostName != "WIN-HOST01" {
		t.Errorf("HostName = %q, want probed value", report.HostName)
	}
	if report.SerialNumber != "4C4C4544-0042" {
		t.Errorf("SerialNumber = %q, want probed value", report.SerialNumber)
	}
	if provider.sends != 2 {
		t.Errorf("sends = %d, want 2", provider.sends)
	}
}

// TestHardwareReportProbeSentinelsKeepDefaults tests that unresolved
// probes leave the defaults in place
func TestHardwareReportProbeSentinelsKeepDefaults(t *testing.T) {
	provider := &fakeProvider{
		details: map[string]ec2types.Instance{
			"i-0123456789abcdef0": fleetInstance("i-0123456789abcdef0", "web-1", "t2.micro"),
		},
		managed: []string{"i-0123456789abcdef0"},
	}
	hardware := newTestHardware(provider)

	report, err := hardware.BuildReport(context.Background(), "i-0123456789abcdef0")
	if err != nil {
		t.Fatalf("BuildReport() error = %v", err)
	}
	if report.HostName != "web-1" {
		t.Errorf("HostName = %q, want tag name kept", report.HostName)
	}
	if report.SerialNumber != "i-9abcdef0" {
		t.Errorf("SerialNumber = %q, want fallback kept", report.SerialNumber)
	}
	if provider.sends != 4 {
		t.Errorf("sends = %d, want 4 (two attempts per probe)", provider.sends)
	}
}

// TestHardwareReportIdempotent tests that back-to-back reports are
// field-for-field identical with unchanged upstream state
func TestHardwareReportIdempotent(t *testing.T) {
	provider := &fakeProvider{
		details: map[string]ec2types.Instance{
			"i-0aaa": fleetInstance("i-0aaa", "web-1", "t2.large", "vol-1"),
		},
		volumes: map[string]int32{"vol-1": 50},
		managed: []string{"i-0aaa"},
	}
	hardware := newTestHardware(provider)

	first, err := hardware.BuildReport(context.Background(), "i-0aaa")
	if err != nil {
		t.Fatalf("first BuildReport() error = %v", err)
	}
	second, err := hardware.BuildReport(context.Background(), "i-0aaa")
	if err != nil {
		t.Fatalf("second BuildReport() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("reports differ:\nfirst  %+v\nsecond %+v", first, second)
	}
}

// TestHardwareExportRows tests row shaping for the whole fleet
func TestHardwareExportRows(t *testing.T) {
	provider := &fakeProvider{
		instances: []awsx.InstanceSummary{
			{InstanceID: "i-0aaa"},
			{InstanceID: "i-0bbb"},
		},
		details: map[string]ec2types.Instance{
			"i-0aaa": fleetInstance("i-0aaa", "web-1", "t2.large", "vol-1", "vol-2"),
			"i-0bbb": fleetInstance("i-0bbb", "", "c5.large"),
		},
		volumes: map[string]int32{"vol-1": 20, "vol-2": 100},
	}
	hardware := newTestHardware(provider)

	rows, err := hardware.BuildExportRows(context.Background())
	if err != nil {
		t.Fatalf("BuildExportRows() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}

	first := rows[0]
	if first.InstanceID != "i-0aaa" || first.Name != "web-1" {
		t.Errorf("rows[0] identity = %q/%q", first.InstanceID, first.Name)
	}
	if first.HardDiskSize != "120 GB" {
		t.Errorf("HardDiskSize = %q, want %q", first.HardDiskSize, "120 GB")
	}
	if first.RAM != "8 GiB" || first.State != "running" || first.Platform != "Linux/UNIX" {
		t.Errorf("rows[0] = %+v", first)
	}
	if first.PublicIP != "54.10.20.30" || first.PrivateIP != "10.0.1.15" || first.VPC != "vpc-11aa" {
		t.Errorf("rows[0] addresses = %q/%q/%q", first.PublicIP, first.PrivateIP, first.VPC)
	}

	second := rows[1]
	if second.Name != NotAvailable {
		t.Errorf("rows[1].Name = %q, want %q", second.Name, NotAvailable)
	}
	if second.HardDiskSize != NotAvailable {
		t.Errorf("rows[1].HardDiskSize = %q, want %q for zero storage", second.HardDiskSize, NotAvailable)
	}
	if second.RAM != "4 GiB" {
		t.Errorf("rows[1].RAM = %q, want %q", second.RAM, "4 GiB")
	}
}

// TestHardwareExportSkipsFailingInstance tests that one bad instance does
// not abort the export
func TestHardwareExportSkipsFailingInstance(t *testing.T) {
	provider := &fakeProvider{
		instances: []awsx.InstanceSummary{
			{InstanceID: "i-0aaa"},
			{InstanceID: "i-0bbb"},
		},
		details: map[string]ec2types.Instance{
			"i-0aaa": fleetInstance("i-0aaa", "web-1", "t2.micro"),
		},
		detailErrs: map[string]error{"i-0bbb": errors.New("throttled")},
	}
	hardware := newTestHardware(provider)

	rows, err := hardware.BuildExportRows(context.Background())
	if err != nil {
		t.Fatalf("BuildExportRows() error = %v", err)
	}
	if len(rows) != 1 || rows[0].InstanceID != "i-0aaa" {
		t.Errorf("rows = %+v, want only i-0aaa", rows)
	}
}

// TestHardwareExportListFailure tests that the export fails hard when the
// fleet cannot be listed
func TestHardwareExportListFailure(t *testing.T) {
	hardware := newTestHardware(&fakeProvider{listErr: errors.New("unauthorized")})

	if _, err := hardware.BuildExportRows(context.Background()); err == nil {
		t.Error("expected error when listing fails")
	}
}
