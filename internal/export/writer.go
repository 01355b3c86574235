// Package export persists inventory snapshots as timestamped CSV files.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"go.uber.org/zap"

	"github.com/saylee206/AWS-API/internal/config"
	"github.com/saylee206/AWS-API/internal/inventory"
)

const timestampLayout = "20060102_150405"

var hardwareHeader = []string{
	"InstanceId", "Name", "HostName", "HostType", "SerialNumber", "State",
	"CPUCores", "ThreadsPerCore", "TotalVCPUs", "RAM", "HardDiskSize",
	"PublicIP", "PrivateIP", "VPC", "Platform",
}

var softwareHeader = []string{
	"InstanceId", "InstanceName", "HostName", "HostType",
	"ApplicationName", "Version", "Publisher", "InstalledTime",
}

// File describes one export file on disk.
type File struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	SizeBytes int64  `json:"size_bytes"`
	Modified  string `json:"modified"`
}

// Writer writes export files into a single directory, named
// <prefix>_<YYYYMMDD_HHMMSS>.csv. Writes within the same second reuse the
// same name and overwrite.
type Writer struct {
	dir            string
	hardwarePrefix string
	softwarePrefix string
	minFreeMB      uint64
	now            func() time.Time
	logger         *zap.Logger
}

// NewWriter resolves and creates the export directory.
func NewWriter(cfg *config.ExportsConfig, logger *zap.Logger) (*Writer, error) {
	dir, err := filepath.Abs(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("resolving export directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}
	return &Writer{
		dir:            dir,
		hardwarePrefix: cfg.HardwarePrefix,
		softwarePrefix: cfg.SoftwarePrefix,
		minFreeMB:      cfg.MinFreeMB,
		now:            time.Now,
		logger:         logger,
	}, nil
}

// Directory returns the absolute export directory.
func (w *Writer) Directory() string {
	return w.dir
}

// WriteHardware writes one hardware export file and returns its absolute
// path. The header is written even when there are no rows.
func (w *Writer) WriteHardware(rows []inventory.HardwareRow) (string, error) {
	records := make([][]string, 0, len(rows)+1)
	records = append(records, hardwareHeader)
	for _, row := range rows {
		records = append(records, []string{
			row.InstanceID,
			row.Name,
			row.HostName,
			row.HostType,
			row.SerialNumber,
			row.State,
			strconv.Itoa(int(row.CPUCores)),
			strconv.Itoa(int(row.ThreadsPerCore)),
			strconv.Itoa(int(row.TotalVCPUs)),
			row.RAM,
			row.HardDiskSize,
			row.PublicIP,
			row.PrivateIP,
			row.VPC,
			row.Platform,
		})
	}
	return w.write(w.hardwarePrefix, records)
}

// WriteSoftware writes one software export file and returns its absolute
// path.
func (w *Writer) WriteSoftware(rows []inventory.SoftwareRow) (string, error) {
	records := make([][]string, 0, len(rows)+1)
	records = append(records, softwareHeader)
	for _, row := range rows {
		records = append(records, []string{
			row.InstanceID,
			row.InstanceName,
			row.HostName,
			row.HostType,
			row.ApplicationName,
			row.Version,
			row.Publisher,
			row.InstalledTime,
		})
	}
	return w.write(w.softwarePrefix, records)
}

// List returns the export files currently on disk, newest first.
func (w *Writer) List() ([]File, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("reading export directory: %w", err)
	}

	files := make([]File, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		kind := w.kindOf(entry.Name())
		if kind == "" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			w.logger.Warn("Could not stat export file",
				zap.String("file", entry.Name()),
				zap.Error(err))
			continue
		}
		files = append(files, File{
			Name:      entry.Name(),
			Kind:      kind,
			SizeBytes: info.Size(),
			Modified:  info.ModTime().UTC().Format(time.RFC3339),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].Modified != files[j].Modified {
			return files[i].Modified > files[j].Modified
		}
		return files[i].Name > files[j].Name
	})
	return files, nil
}

// kindOf classifies a file name by export prefix, or returns "" for
// files this writer does not own.
func (w *Writer) kindOf(name string) string {
	if !strings.HasSuffix(name, ".csv") {
		return ""
	}
	switch {
	case strings.HasPrefix(name, w.hardwarePrefix+"_"):
		return "hardware"
	case strings.HasPrefix(name, w.softwarePrefix+"_"):
		return "software"
	}
	return ""
}

func (w *Writer) write(prefix string, records [][]string) (string, error) {
	if err := w.checkFreeSpace(); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s_%s.csv", prefix, w.now().Format(timestampLayout))
	path := filepath.Join(w.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating export file: %w", err)
	}
	if err := csv.NewWriter(f).WriteAll(records); err != nil {
		f.Close()
		return "", fmt.Errorf("writing export file %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing export file %s: %w", name, err)
	}

	w.logger.Info("Export file written",
		zap.String("file", path),
		zap.Int("records", len(records)-1))
	return path, nil
}

// checkFreeSpace enforces the configured free-space floor. A floor of
// zero disables the check; a failed filesystem stat logs a warning and
// allows the write.
func (w *Writer) checkFreeSpace() error {
	if w.minFreeMB == 0 {
		return nil
	}
	usage, err := disk.Usage(w.dir)
	if err != nil {
		w.logger.Warn("Could not check export directory free space",
			zap.String("dir", w.dir),
			zap.Error(err))
		return nil
	}
	required := w.minFreeMB * 1024 * 1024
	if usage.Free < required {
		return fmt.Errorf("insufficient free space in %s: %d MB free, %d MB required",
			w.dir, usage.Free/(1024*1024), w.minFreeMB)
	}
	return nil
}
