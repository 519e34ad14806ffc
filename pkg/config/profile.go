// Package config loads drive profiles from INI or YAML files.
//
// A profile holds the [drive.Parameters] of one drive :
//
//	[drive]
//	slave_id = 1
//	gear_ratio = 10
//	rated_torque = 1.27
//	speed_unit = 0
//	rotation_direction = 0
//
//	[mapping]
//	outbound = ControlWord, TargetTorque
//	inbound = StatusWord, PositionActual, TorqueActual
//
// The YAML form uses the same keys, with lists for the mapping.
// Missing mapping keys keep the default layout.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/samsamfire/gocia402/pkg/drive"
	"github.com/samsamfire/gocia402/pkg/od"
	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

var ErrUnsupportedFormat = errors.New("unsupported profile format")

const (
	sectionDrive   = "drive"
	sectionMapping = "mapping"
)

// Load a profile, the format is selected from the file extension
func Load(path string) (drive.Parameters, error) {
	var params drive.Parameters
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ini":
		params, err = ParseIni(path)
	case ".yaml", ".yml":
		var data []byte
		data, err = os.ReadFile(path)
		if err != nil {
			return params, err
		}
		params, err = ParseYaml(data)
	default:
		return params, fmt.Errorf("%w : %v", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return params, fmt.Errorf("profile %v : %w", path, err)
	}
	log.Infof("[CONFIG] loaded profile %v for slave %d", path, params.SlaveId)
	return params, nil
}

// Parse an INI profile, source can be a path, an []byte or an io.Reader
func ParseIni(source any) (drive.Parameters, error) {
	params := drive.DefaultParameters(0)
	file, err := ini.Load(source)
	if err != nil {
		return params, err
	}
	section := file.Section(sectionDrive)
	if section.HasKey("slave_id") {
		id, err := strconv.ParseUint(section.Key("slave_id").String(), 10, 16)
		if err != nil {
			return params, fmt.Errorf("slave_id : %w", err)
		}
		params.SlaveId = uint16(id)
	}
	if section.HasKey("gear_ratio") {
		params.GearRatio, err = section.Key("gear_ratio").Float64()
		if err != nil {
			return params, fmt.Errorf("gear_ratio : %w", err)
		}
	}
	if section.HasKey("rated_torque") {
		params.RatedTorque, err = section.Key("rated_torque").Float64()
		if err != nil {
			return params, fmt.Errorf("rated_torque : %w", err)
		}
	}
	if section.HasKey("speed_unit") {
		params.SpeedUnit, err = section.Key("speed_unit").Int()
		if err != nil {
			return params, fmt.Errorf("speed_unit : %w", err)
		}
	}
	if section.HasKey("rotation_direction") {
		params.RotationDirection, err = section.Key("rotation_direction").Int()
		if err != nil {
			return params, fmt.Errorf("rotation_direction : %w", err)
		}
	}

	mapping := file.Section(sectionMapping)
	if mapping.HasKey("outbound") {
		params.Outbound, err = parseFields(mapping.Key("outbound").Strings(","))
		if err != nil {
			return params, fmt.Errorf("outbound : %w", err)
		}
	}
	if mapping.HasKey("inbound") {
		params.Inbound, err = parseFields(mapping.Key("inbound").Strings(","))
		if err != nil {
			return params, fmt.Errorf("inbound : %w", err)
		}
	}
	return params, params.Validate()
}

type yamlProfile struct {
	Drive struct {
		SlaveId           *uint16  `yaml:"slave_id"`
		GearRatio         *float64 `yaml:"gear_ratio"`
		RatedTorque       *float64 `yaml:"rated_torque"`
		SpeedUnit         *int     `yaml:"speed_unit"`
		RotationDirection *int     `yaml:"rotation_direction"`
	} `yaml:"drive"`
	Mapping struct {
		Outbound []string `yaml:"outbound"`
		Inbound  []string `yaml:"inbound"`
	} `yaml:"mapping"`
}

// Parse a YAML profile
func ParseYaml(data []byte) (drive.Parameters, error) {
	params := drive.DefaultParameters(0)
	profile := yamlProfile{}
	err := yaml.Unmarshal(data, &profile)
	if err != nil {
		return params, err
	}
	if profile.Drive.SlaveId != nil {
		params.SlaveId = *profile.Drive.SlaveId
	}
	if profile.Drive.GearRatio != nil {
		params.GearRatio = *profile.Drive.GearRatio
	}
	if profile.Drive.RatedTorque != nil {
		params.RatedTorque = *profile.Drive.RatedTorque
	}
	if profile.Drive.SpeedUnit != nil {
		params.SpeedUnit = *profile.Drive.SpeedUnit
	}
	if profile.Drive.RotationDirection != nil {
		params.RotationDirection = *profile.Drive.RotationDirection
	}
	if profile.Mapping.Outbound != nil {
		params.Outbound, err = parseFields(profile.Mapping.Outbound)
		if err != nil {
			return params, fmt.Errorf("outbound : %w", err)
		}
	}
	if profile.Mapping.Inbound != nil {
		params.Inbound, err = parseFields(profile.Mapping.Inbound)
		if err != nil {
			return params, fmt.Errorf("inbound : %w", err)
		}
	}
	return params, params.Validate()
}

func parseFields(names []string) ([]od.Field, error) {
	fields := make([]od.Field, 0, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		field, err := od.ParseField(name)
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}
	return fields, nil
}
