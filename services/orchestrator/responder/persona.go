// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package responder

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxPersonaFileSize is the largest persona override file accepted (256KB).
	MaxPersonaFileSize = 256 * 1024

	// DefaultPersona is used when configuration names none.
	DefaultPersona = "drill"

	// phaseGeneral keys guidance and fallbacks for an unset phase.
	phaseGeneral = "general"
)

// =============================================================================
// Embedded Default Personas
// =============================================================================

//go:embed personas.yaml
var defaultPersonasYAML []byte

// =============================================================================
// Types
// =============================================================================

// personaFile is the root structure for YAML deserialization.
type personaFile struct {
	PhaseGuidance map[string]string  `yaml:"phase_guidance"`
	Personas      map[string]Persona `yaml:"personas"`
}

// Persona is a coaching style. It is chosen once per deployment.
type Persona struct {
	Name        string `yaml:"-"`
	Description string `yaml:"description"`

	// Voice is the TTS voice name passed to the telephony provider.
	Voice string `yaml:"voice"`

	Temperature   float32 `yaml:"temperature"`
	MaxTokens     int     `yaml:"max_tokens"`
	MaxReplyChars int     `yaml:"max_reply_chars"`
	WordRange     string  `yaml:"word_range"`

	// SystemPrompt is a Go template with the variables phase, context,
	// phase_guidance and word_range.
	SystemPrompt string `yaml:"system_prompt"`

	// ErrorLine is spoken when an internal error interrupts a turn.
	ErrorLine string `yaml:"error_line"`

	// Fallbacks are keyed by phase name plus "general".
	Fallbacks map[string]string `yaml:"fallbacks"`

	// PriorityClosing is a Go template with the variable priority.
	PriorityClosing string   `yaml:"priority_closing"`
	Closings        []string `yaml:"closings"`

	phaseGuidance map[string]string
}

// PersonaSet holds every loaded persona.
type PersonaSet struct {
	personas map[string]Persona
}

// =============================================================================
// Loading
// =============================================================================

// LoadPersonas returns the embedded personas, overlaid with overridePath.
//
// Description:
//
//	Parses the embedded personas.yaml, then, when overridePath is not empty,
//	parses that file and replaces or adds personas by name. Phase guidance
//	entries in the override replace the embedded ones key by key. Every
//	persona is validated before it is returned.
//
// Inputs:
//
//	overridePath - Optional YAML file path. Empty uses the embedded set only.
//
// Outputs:
//
//	*PersonaSet - Loaded personas.
//	error - Non-nil when a file cannot be read or a persona is invalid.
func LoadPersonas(overridePath string) (*PersonaSet, error) {
	base, err := parsePersonaFile(defaultPersonasYAML)
	if err != nil {
		return nil, fmt.Errorf("parsing embedded personas: %w", err)
	}

	if overridePath != "" {
		info, err := os.Stat(overridePath)
		if err != nil {
			return nil, fmt.Errorf("stat persona file: %w", err)
		}
		if info.Size() > MaxPersonaFileSize {
			return nil, fmt.Errorf("persona file %s is %d bytes, limit is %d", overridePath, info.Size(), MaxPersonaFileSize)
		}
		data, err := os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("reading persona file: %w", err)
		}
		override, err := parsePersonaFile(data)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", overridePath, err)
		}
		for k, v := range override.PhaseGuidance {
			base.PhaseGuidance[k] = v
		}
		for name, p := range override.Personas {
			base.Personas[name] = p
		}
	}

	set := &PersonaSet{personas: make(map[string]Persona, len(base.Personas))}
	for name, p := range base.Personas {
		p.Name = name
		p.phaseGuidance = base.PhaseGuidance
		if err := p.validate(); err != nil {
			return nil, err
		}
		set.personas[name] = p
	}
	return set, nil
}

func parsePersonaFile(data []byte) (personaFile, error) {
	var f personaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, err
	}
	if f.PhaseGuidance == nil {
		f.PhaseGuidance = map[string]string{}
	}
	if f.Personas == nil {
		f.Personas = map[string]Persona{}
	}
	return f, nil
}

func (p Persona) validate() error {
	if p.SystemPrompt == "" {
		return &session.ConfigurationError{Field: "persona." + p.Name + ".system_prompt", Value: ""}
	}
	if p.Fallbacks[phaseGeneral] == "" {
		return &session.ConfigurationError{Field: "persona." + p.Name + ".fallbacks.general", Value: ""}
	}
	if p.MaxTokens <= 0 {
		return &session.ConfigurationError{Field: "persona." + p.Name + ".max_tokens", Value: fmt.Sprint(p.MaxTokens)}
	}
	return nil
}

// Get returns the named persona. An empty name selects DefaultPersona.
func (s *PersonaSet) Get(name string) (Persona, error) {
	if name == "" {
		name = DefaultPersona
	}
	p, ok := s.personas[name]
	if !ok {
		return Persona{}, &session.ConfigurationError{Field: "persona", Value: name}
	}
	return p, nil
}

// Names lists loaded personas in sorted order.
func (s *PersonaSet) Names() []string {
	names := make([]string, 0, len(s.personas))
	for n := range s.personas {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Fallback returns the scripted line for phase.
func (p Persona) Fallback(phase session.Phase) string {
	if line := p.Fallbacks[string(phase)]; line != "" {
		return line
	}
	return p.Fallbacks[phaseGeneral]
}

// Guidance returns the phase instructions appended to the system prompt.
func (p Persona) Guidance(phase session.Phase) string {
	if g := p.phaseGuidance[string(phase)]; g != "" {
		return g
	}
	return p.phaseGuidance[phaseGeneral]
}
