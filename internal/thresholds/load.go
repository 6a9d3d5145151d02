package thresholds

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// maxFileSize caps threshold files read from disk.
const maxFileSize = 1 << 20

// Decode applies options on top of base and validates the result.
// Keys are the camelCase option names; unknown keys are rejected and
// inactivityTimeout accepts duration strings such as "15s".
func Decode(base Thresholds, options map[string]any) (Thresholds, error) {
	out := base

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused: true,
		Result:      &out,
	})
	if err != nil {
		return Thresholds{}, fmt.Errorf("create decoder: %w", err)
	}

	if err := decoder.Decode(options); err != nil {
		return Thresholds{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if err := out.Validate(); err != nil {
		return Thresholds{}, err
	}
	return out, nil
}

// Load reads a YAML (or JSON) threshold file and decodes it on top of base.
func Load(path string, base Thresholds) (Thresholds, error) {
	cleanPath := filepath.Clean(path)

	info, err := os.Stat(cleanPath)
	if err != nil {
		return Thresholds{}, fmt.Errorf("stat thresholds file: %w", err)
	}
	if info.Size() > maxFileSize {
		return Thresholds{}, fmt.Errorf("thresholds file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Thresholds{}, fmt.Errorf("read thresholds file: %w", err)
	}

	// YAML is a superset of JSON, so one parser serves both.
	options := map[string]any{}
	if err := yaml.Unmarshal(data, &options); err != nil {
		return Thresholds{}, fmt.Errorf("parse thresholds file: %w", err)
	}

	return Decode(base, options)
}

// Options returns t as an option map suitable for Decode.
func (t Thresholds) Options() map[string]any {
	options := map[string]any{}
	// Struct to map cannot fail for this flat type.
	_ = mapstructure.Decode(t, &options)
	options["inactivityTimeout"] = t.InactivityTimeout.String()
	options["depthMetric"] = string(t.DepthMetric)
	options["bottomSignal"] = string(t.BottomSignal)
	return options
}

// MarshalJSON encodes t with the same keys Decode accepts.
func (t Thresholds) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Options())
}
