package hubspec

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/evhub/core/charging"
	"github.com/kilianp07/evhub/core/fleet"
	"github.com/kilianp07/evhub/core/logger"
)

// Record is one structured hub entry.
type Record struct {
	HubID     string   `json:"hub_id" yaml:"hub_id"`
	LinkID    string   `json:"link_id" yaml:"link_id"`
	Chargers  int      `json:"chargers" yaml:"chargers"`
	PlugTypes []string `json:"plug_types" yaml:"plug_types"`
	PowerKW   float64  `json:"power_kw" yaml:"power_kw"`
}

// FromRecords expands structured records into chargers with the same
// numbering and defaults as the CSV form.
func FromRecords(records []Record) charging.Infrastructure {
	var infra charging.Infrastructure
	b := newBuilder()
	for _, r := range records {
		if r.Chargers <= 0 {
			r.Chargers = DefaultChargersPerRow
		}
		if r.PowerKW <= 0 {
			r.PowerKW = DefaultPowerKW
		}
		b.add(&infra, r)
	}
	return infra
}

// LoadHubs reads a hub file. The format follows the extension: .csv, .tsv
// and .txt use the legacy table, .yaml, .yml and .json a list of Records.
func LoadHubs(path string, log logger.Logger) (charging.Infrastructure, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return charging.Infrastructure{}, err
	}
	infra, err := parseHubs(strings.ToLower(filepath.Ext(path)), data, log)
	if err != nil {
		return charging.Infrastructure{}, fmt.Errorf("%s: %w", path, err)
	}
	return infra, nil
}

func parseHubs(ext string, data []byte, log logger.Logger) (charging.Infrastructure, error) {
	switch ext {
	case ".csv", ".tsv", ".txt":
		return ParseCSV(bytes.NewReader(data), log)
	case ".yaml", ".yml", ".json":
		var records []Record
		if err := unmarshal(ext, data, &records); err != nil {
			return charging.Infrastructure{}, err
		}
		return FromRecords(records), nil
	default:
		return charging.Infrastructure{}, fmt.Errorf("unsupported hub file format: %q", ext)
	}
}

// LoadVehicles reads a YAML or JSON list of vehicle specs.
func LoadVehicles(path string) ([]fleet.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" && ext != ".json" {
		return nil, fmt.Errorf("unsupported vehicle file format: %s", ext)
	}
	var specs []fleet.Spec
	if err := unmarshal(ext, data, &specs); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return specs, nil
}

func unmarshal(ext string, data []byte, out any) error {
	if ext == ".json" {
		return json.Unmarshal(data, out)
	}
	return yaml.Unmarshal(data, out)
}
