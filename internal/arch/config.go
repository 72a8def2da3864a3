package arch

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the YAML-loadable architecture description. Opcode entries
// overlay the default table; a convention section replaces the default
// calling convention.
type Config struct {
	Opcodes    []OpcodeConfig    `yaml:"opcodes"`
	Convention *ConventionConfig `yaml:"convention"`
}

// OpcodeConfig is one opcode row: the fold field names a built-in fold
// function (see FoldNames), since semantics cannot be expressed in data.
type OpcodeConfig struct {
	Name        string `yaml:"name"`
	Arity       int    `yaml:"arity"`
	Fold        string `yaml:"fold"`
	Commutative bool   `yaml:"commutative"`
	SideEffect  bool   `yaml:"side_effect"`
}

// ConventionConfig mirrors Convention for YAML loading.
type ConventionConfig struct {
	Name        string   `yaml:"name"`
	Args        []string `yaml:"args"`
	Ret         string   `yaml:"ret"`
	CalleeSaved []string `yaml:"callee_saved"`
}

// Load parses a YAML architecture description and returns the resulting
// table and convention. Missing sections fall back to the defaults.
func Load(data []byte) (*Table, *Convention, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("parsing arch config: %w", err)
	}

	table := DefaultTable()
	for _, oc := range cfg.Opcodes {
		if oc.Name == "" {
			return nil, nil, fmt.Errorf("opcode entry with empty name")
		}
		fold, err := foldByName(oc.Fold)
		if err != nil {
			return nil, nil, fmt.Errorf("opcode %q: %w", oc.Name, err)
		}
		arity := oc.Arity
		if arity == 0 && fold != nil {
			arity = 2
		}
		table.Register(OpSpec{
			Name:        oc.Name,
			Arity:       arity,
			Commutative: oc.Commutative,
			SideEffect:  oc.SideEffect,
			Fold:        fold,
		})
	}

	conv := SysV()
	if cfg.Convention != nil {
		cc := cfg.Convention
		if cc.Ret == "" {
			return nil, nil, fmt.Errorf("convention %q: missing ret slot", cc.Name)
		}
		conv = &Convention{
			Name:        cc.Name,
			Args:        cc.Args,
			Ret:         cc.Ret,
			CalleeSaved: cc.CalleeSaved,
		}
	}
	return table, conv, nil
}

// LoadFile reads and parses a YAML architecture description from disk.
func LoadFile(path string) (*Table, *Convention, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading arch config: %w", err)
	}
	return Load(data)
}
