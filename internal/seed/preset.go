package seed

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Preset is a named marketplace shape loaded from YAML.
//
//	donors: 20
//	recipients: 40
//	ngos: 5
//	items_per_donor: 6
//	requests: 80
//	admins:
//	  - name: Ops
//	    email: ops@kindkart.test
type Preset struct {
	Donors        int       `yaml:"donors"`
	Recipients    int       `yaml:"recipients"`
	NGOs          int       `yaml:"ngos"`
	ItemsPerDonor int       `yaml:"items_per_donor"`
	Requests      int       `yaml:"requests"`
	Admins        []Account `yaml:"admins"`
}

// LoadPreset reads a preset file.
func LoadPreset(path string) (*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preset: %w", err)
	}
	return ParsePreset(data)
}

// ParsePreset decodes a preset, rejecting unknown keys and negative counts.
func ParsePreset(data []byte) (*Preset, error) {
	var p Preset
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parse preset: %w", err)
	}
	for name, n := range map[string]int{
		"donors":          p.Donors,
		"recipients":      p.Recipients,
		"ngos":            p.NGOs,
		"items_per_donor": p.ItemsPerDonor,
		"requests":        p.Requests,
	} {
		if n < 0 {
			return nil, fmt.Errorf("preset %s must not be negative", name)
		}
	}
	for _, a := range p.Admins {
		if a.Email == "" {
			return nil, fmt.Errorf("preset admin %q needs an email", a.Name)
		}
	}
	return &p, nil
}

// Options converts the preset, keeping base's bcrypt cost.
func (p *Preset) Options(base Options) Options {
	base.Donors = p.Donors
	base.Recipients = p.Recipients
	base.NGOs = p.NGOs
	base.ItemsPerDonor = p.ItemsPerDonor
	base.Requests = p.Requests
	base.Admins = append([]Account(nil), p.Admins...)
	return base
}
