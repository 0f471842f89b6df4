package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/remote-cue-control/backend/internal/qlab"
)

type showFile struct {
	Workspaces []struct {
		ID       string `yaml:"id"`
		Name     string `yaml:"name"`
		Passcode string `yaml:"passcode"`
		Cues     []struct {
			ID       string  `yaml:"id"`
			Number   string  `yaml:"number"`
			Name     string  `yaml:"name"`
			Type     string  `yaml:"type"`
			Duration float64 `yaml:"duration"`
		} `yaml:"cues"`
	} `yaml:"workspaces"`
}

// loadShow reads workspaces from a YAML file. Cues without an ID get one
// derived from their position.
func loadShow(path string) ([]*qlab.SimWorkspace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read show file: %w", err)
	}

	var sf showFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse show file: %w", err)
	}
	if len(sf.Workspaces) == 0 {
		return nil, fmt.Errorf("show file %s has no workspaces", path)
	}

	out := make([]*qlab.SimWorkspace, 0, len(sf.Workspaces))
	for i, w := range sf.Workspaces {
		ws := &qlab.SimWorkspace{ID: w.ID, Name: w.Name, Passcode: w.Passcode}
		if ws.ID == "" {
			ws.ID = fmt.Sprintf("ws-%d", i+1)
		}
		if ws.Name == "" {
			ws.Name = ws.ID
		}
		for j, c := range w.Cues {
			cue := qlab.SimCue{ID: c.ID, Number: c.Number, Name: c.Name, Type: c.Type, Duration: c.Duration}
			if cue.ID == "" {
				cue.ID = fmt.Sprintf("%s-cue-%d", ws.ID, j+1)
			}
			if cue.Number == "" {
				cue.Number = fmt.Sprint(j + 1)
			}
			if cue.Type == "" {
				cue.Type = "Audio"
			}
			ws.Cues = append(ws.Cues, cue)
		}
		out = append(out, ws)
	}
	return out, nil
}

// sampleShow is served when no show file is given.
func sampleShow() []*qlab.SimWorkspace {
	return []*qlab.SimWorkspace{{
		ID:   "sample-show",
		Name: "Sample Show",
		Cues: []qlab.SimCue{
			{ID: "house-out", Number: "1", Name: "House to half", Type: "Light", Duration: 5},
			{ID: "preshow", Number: "2", Name: "Preshow music", Type: "Audio", Duration: 30},
			{ID: "welcome", Number: "3", Name: "Welcome announcement", Type: "Audio", Duration: 12.5},
			{ID: "blackout", Number: "4", Name: "Blackout", Type: "Light"},
		},
	}}
}
