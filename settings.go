package server

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/sugawarayuuta/sonnet"
	"gopkg.in/yaml.v3"
)

// Settings is the decoded, validated settings document consumed once at
// startup (spec §6, §4.11: "Settings retrieval failure at startup: fatal;
// process exits before entering the loop").
type Settings struct {
	AvatarMixer AvatarMixerSettings `yaml:"avatar_mixer" json:"avatar_mixer"`
	Avatars     AvatarsSettings     `yaml:"avatars" json:"avatars"`
}

// AvatarMixerSettings mirrors the avatar_mixer.* settings keys.
type AvatarMixerSettings struct {
	MaxNodeSendBandwidth float64 `yaml:"max_node_send_bandwidth" json:"max_node_send_bandwidth"`
	AutoThreads          bool    `yaml:"auto_threads" json:"auto_threads"`
	NumThreads           string  `yaml:"num_threads" json:"num_threads"`
}

// AvatarsSettings mirrors the avatars.* settings keys.
type AvatarsSettings struct {
	MinAvatarHeight  float64 `yaml:"min_avatar_height" json:"min_avatar_height"`
	MaxAvatarHeight  float64 `yaml:"max_avatar_height" json:"max_avatar_height"`
	AvatarWhitelist  string  `yaml:"avatar_whitelist" json:"avatar_whitelist"`
	ReplacementAvatar string `yaml:"replacement_avatar" json:"replacement_avatar"`
}

// DefaultSettings mirrors the historical AvatarMixer's fallback values.
func DefaultSettings() Settings {
	return Settings{
		AvatarMixer: AvatarMixerSettings{
			MaxNodeSendBandwidth: DefaultMaxNodeSendBandwidthMBps,
			AutoThreads:          true,
		},
		Avatars: AvatarsSettings{
			MinAvatarHeight: DefaultMinAvatarHeight,
			MaxAvatarHeight: DefaultMaxAvatarHeight,
		},
	}
}

// settingsSchema is the embedded JSON Schema settings documents are
// validated against before acceptance.
const settingsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "avatar_mixer": {
      "type": "object",
      "properties": {
        "max_node_send_bandwidth": {"type": "number", "minimum": 0},
        "auto_threads": {"type": "boolean"},
        "num_threads": {"type": "string"}
      }
    },
    "avatars": {
      "type": "object",
      "properties": {
        "min_avatar_height": {"type": "number"},
        "max_avatar_height": {"type": "number"},
        "avatar_whitelist": {"type": "string"},
        "replacement_avatar": {"type": "string"}
      }
    }
  }
}`

// LoadSettings decodes a YAML settings document, validates it against
// settingsSchema, applies the historical mixer's clamping/fallback rules,
// and returns the result. Any failure here is startup-fatal per spec
// §4.11.
func LoadSettings(raw []byte) (Settings, error) {
	settings := DefaultSettings()
	if len(raw) == 0 {
		return settings, nil
	}

	if err := validateSettingsSchema(raw); err != nil {
		return Settings{}, fmt.Errorf("settings failed schema validation: %w", err)
	}

	if err := yaml.Unmarshal(raw, &settings); err != nil {
		return Settings{}, fmt.Errorf("settings decode failed: %w", err)
	}

	if settings.AvatarMixer.MaxNodeSendBandwidth <= 0 {
		settings.AvatarMixer.MaxNodeSendBandwidth = DefaultMaxNodeSendBandwidthMBps
	}

	clampAvatarHeights(&settings.Avatars)

	return settings, nil
}

// validateSettingsSchema re-encodes the YAML document as JSON (via
// sonnet, this repo's JSON codec of choice, see DESIGN.md) and validates
// it against the embedded schema.
func validateSettingsSchema(raw []byte) error {
	var generic map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return err
	}
	jsonBytes, err := sonnet.Marshal(generic)
	if err != nil {
		return err
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("settings.json", strings.NewReader(settingsSchema)); err != nil {
		return err
	}
	schema, err := compiler.Compile("settings.json")
	if err != nil {
		return err
	}

	var doc any
	if err := sonnet.Unmarshal(jsonBytes, &doc); err != nil {
		return err
	}
	return schema.Validate(doc)
}

// clampAvatarHeights mirrors parseDomainServerSettings's height handling:
// clamp to [absoluteMinHeight, absoluteMaxHeight] and swap if inverted.
func clampAvatarHeights(a *AvatarsSettings) {
	if a.MinAvatarHeight == 0 {
		a.MinAvatarHeight = DefaultMinAvatarHeight
	}
	if a.MaxAvatarHeight == 0 {
		a.MaxAvatarHeight = DefaultMaxAvatarHeight
	}
	a.MinAvatarHeight = clampFloat(a.MinAvatarHeight, absoluteMinHeight, absoluteMaxHeight)
	a.MaxAvatarHeight = clampFloat(a.MaxAvatarHeight, absoluteMinHeight, absoluteMaxHeight)
	if a.MinAvatarHeight > a.MaxAvatarHeight {
		a.MinAvatarHeight, a.MaxAvatarHeight = a.MaxAvatarHeight, a.MinAvatarHeight
	}
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// ResolveThreadCount implements avatar_mixer.auto_threads/num_threads:
// N = CPU count if auto, else the parsed explicit count, falling back to
// 1 on parse failure (matching the historical mixer's fallback).
func ResolveThreadCount(s AvatarMixerSettings, cpuCount int) int {
	if s.AutoThreads {
		if cpuCount <= 0 {
			return 1
		}
		return cpuCount
	}
	n := 0
	if _, err := fmt.Sscanf(s.NumThreads, "%d", &n); err != nil || n <= 0 {
		return 1
	}
	return n
}
