package inventory

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/saylee206/AWS-API/internal/awsx"
)

// ManagementStatus is the outcome of a software inventory lookup. The
// values are served verbatim in API responses.
type ManagementStatus string

const (
	// StatusSuccess means the inventory agent returned an application list.
	StatusSuccess ManagementStatus = "Success"
	// StatusNotManaged means the instance has no registered inventory agent.
	StatusNotManaged ManagementStatus = "Not managed by SSM"
	// StatusNotFound means the inventory service rejected the instance id.
	StatusNotFound ManagementStatus = "Instance not found or not configured with SSM"
	// StatusError covers every other inventory failure.
	StatusError ManagementStatus = "Error"
)

const notManagedNote = "This instance does not have SSM Agent installed"

// Application is one normalized entry from the inventory agent.
type Application struct {
	Name          string `json:"Name"`
	Version       string `json:"Version"`
	Publisher     string `json:"Publisher"`
	InstalledTime string `json:"InstalledTime"`
}

// SoftwareReport is the per-instance software view served over HTTP.
// SoftwareCount is only present on successful lookups, including ones
// that found zero applications.
type SoftwareReport struct {
	InstanceID    string           `json:"instance_id"`
	Status        ManagementStatus `json:"status"`
	Note          string           `json:"note,omitempty"`
	Error         string           `json:"error,omitempty"`
	SoftwareCount *int             `json:"software_count,omitempty"`
	Software      []Application    `json:"software"`
}

// SoftwareRow is one line of a software export. Field order matches the
// CSV column order.
type SoftwareRow struct {
	InstanceID      string
	InstanceName    string
	HostName        string
	HostType        string
	ApplicationName string
	Version         string
	Publisher       string
	InstalledTime   string
}

// instanceBrief is the per-instance summary joined onto software export
// rows. State is collected alongside the exported fields for parity with
// the hardware view.
type instanceBrief struct {
	name         string
	hostname     string
	instanceType string
	state        string
}

func unknownBrief() instanceBrief {
	return instanceBrief{
		name:         Unknown,
		hostname:     Unknown,
		instanceType: Unknown,
		state:        Unknown,
	}
}

// Software aggregates the inventory agent's application lists into
// software reports and export rows.
type Software struct {
	provider Provider
	prober   *Prober
	specs    *Specs
	logger   *zap.Logger
}

// NewSoftware creates a software aggregator.
func NewSoftware(provider Provider, prober *Prober, specs *Specs, logger *zap.Logger) *Software {
	return &Software{
		provider: provider,
		prober:   prober,
		specs:    specs,
		logger:   logger,
	}
}

// BuildReport assembles the software report for one instance. It always
// returns a report: lookup failures are folded into the report status
// rather than surfaced as errors.
func (s *Software) BuildReport(ctx context.Context, instanceID string) *SoftwareReport {
	s.logger.Info("Fetching software information",
		zap.String("instance_id", instanceID))

	managed := managedSet(s.provider.ManagedInstanceIDs(ctx))
	if !managed[instanceID] {
		s.logger.Warn("Instance is not managed by SSM",
			zap.String("instance_id", instanceID))
		return &SoftwareReport{
			InstanceID: instanceID,
			Status:     StatusNotManaged,
			Note:       notManagedNote,
			Software:   []Application{},
		}
	}

	entries, err := s.provider.ApplicationInventory(ctx, instanceID)
	if err != nil {
		if errors.Is(err, awsx.ErrNotRegistered) {
			return &SoftwareReport{
				InstanceID: instanceID,
				Status:     StatusNotFound,
				Software:   []Application{},
			}
		}
		s.logger.Error("Could not get software inventory",
			zap.String("instance_id", instanceID),
			zap.Error(err))
		return &SoftwareReport{
			InstanceID: instanceID,
			Status:     StatusError,
			Error:      err.Error(),
			Software:   []Application{},
		}
	}

	apps := normalizeApplications(entries)
	count := len(apps)
	return &SoftwareReport{
		InstanceID:    instanceID,
		Status:        StatusSuccess,
		SoftwareCount: &count,
		Software:      apps,
	}
}

// BuildExportRows assembles export rows for every managed instance, in
// the order the management service lists them. It also reports the
// managed instance count. A managed instance with no resolvable
// applications still contributes one placeholder row, so every managed
// instance appears in the export.
func (s *Software) BuildExportRows(ctx context.Context) ([]SoftwareRow, int, error) {
	summaries, err := s.provider.ListInstances(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list instances: %w", err)
	}
	briefs := s.collectBriefs(ctx, summaries)

	managedIDs := s.provider.ManagedInstanceIDs(ctx)
	rows := make([]SoftwareRow, 0, len(managedIDs))
	for _, instanceID := range managedIDs {
		brief, ok := briefs[instanceID]
		if !ok {
			brief = unknownBrief()
		}

		entries, err := s.provider.ApplicationInventory(ctx, instanceID)
		if err != nil {
			s.logger.Warn("Could not get software inventory for export",
				zap.String("instance_id", instanceID),
				zap.Error(err))
			entries = nil
		}

		apps := normalizeApplications(entries)
		if len(apps) == 0 {
			rows = append(rows, SoftwareRow{
				InstanceID:      instanceID,
				InstanceName:    brief.name,
				HostName:        brief.hostname,
				HostType:        brief.instanceType,
				ApplicationName: NoApplicationsFound,
				Version:         NotAvailable,
				Publisher:       NotAvailable,
				InstalledTime:   NotAvailable,
			})
			continue
		}
		for _, app := range apps {
			rows = append(rows, SoftwareRow{
				InstanceID:      instanceID,
				InstanceName:    brief.name,
				HostName:        brief.hostname,
				HostType:        brief.instanceType,
				ApplicationName: app.Name,
				Version:         app.Version,
				Publisher:       app.Publisher,
				InstalledTime:   app.InstalledTime,
			})
		}
	}
	return rows, len(managedIDs), nil
}

// collectBriefs builds the id-to-summary lookup joined onto export rows.
// An instance whose detail lookup fails gets an all-unknown brief, and
// the export carries on. Hostname probing here is attempted for every
// instance; unmanaged ones resolve to the sentinel and keep the tag name.
func (s *Software) collectBriefs(ctx context.Context, summaries []awsx.InstanceSummary) map[string]instanceBrief {
	briefs := make(map[string]instanceBrief, len(summaries))
	for _, summary := range summaries {
		inst, err := s.provider.DescribeInstance(ctx, summary.InstanceID)
		if err != nil {
			s.logger.Warn("Could not get instance details for software export",
				zap.String("instance_id", summary.InstanceID),
				zap.Error(err))
			briefs[summary.InstanceID] = unknownBrief()
			continue
		}
		record := NewInstanceRecord(inst, s.specs)

		hostname := record.Name
		if v := s.prober.Hostname(ctx, summary.InstanceID); v != NotAvailable {
			hostname = v
		}

		briefs[summary.InstanceID] = instanceBrief{
			name:         record.Name,
			hostname:     hostname,
			instanceType: record.InstanceType,
			state:        record.State,
		}
	}
	return briefs
}

// normalizeApplications maps raw inventory entries onto the export shape,
// defaulting absent fields to the unknown sentinel.
func normalizeApplications(entries []map[string]string) []Application {
	apps := make([]Application, 0, len(entries))
	for _, entry := range entries {
		apps = append(apps, Application{
			Name:          entryField(entry, "Name"),
			Version:       entryField(entry, "Version"),
			Publisher:     entryField(entry, "Publisher"),
			InstalledTime: entryField(entry, "InstalledTime"),
		})
	}
	return apps
}

// entryField reads one field of a raw inventory entry. Only an absent key
// falls back to the sentinel; a present empty value is kept.
func entryField(entry map[string]string, key string) string {
	if v, ok := entry[key]; ok {
		return v
	}
	return Unknown
}
