package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/houseofmisfits/willow/internal/platform"
	"github.com/houseofmisfits/willow/internal/testutil"
)

// Scenario defines an end-to-end harness scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Modules lists the modules to load, by registry name.
	Modules []string `yaml:"modules"`

	// AdminRoles are the bootstrap admin roles.
	AdminRoles []string `yaml:"admin_roles,omitempty"`

	// Config seeds dynamic settings before the modules start.
	Config map[string]string `yaml:"config,omitempty"`

	// Schedule seeds the day-channel table, keyed by short day name
	// (mon..sun).
	Schedule map[string]string `yaml:"schedule,omitempty"`

	// Roles seeds platform role membership (role id -> member ids).
	Roles map[string][]string `yaml:"roles,omitempty"`

	// Steps are the inbound messages, dispatched in order.
	Steps []Step `yaml:"steps"`
}

// Step is one inbound message.
type Step struct {
	// Channel the message arrives in. Ignored when DM is set.
	Channel string `yaml:"channel,omitempty"`

	// Author of the message.
	Author string `yaml:"author"`

	// Content of the message.
	Content string `yaml:"content"`

	// DM marks the message as a direct message to the bot.
	DM bool `yaml:"dm,omitempty"`

	// At is an optional time of day ("15:04") on the scenario date.
	// Defaults to noon.
	At string `yaml:"at,omitempty"`
}

// message materializes the step as an inbound platform message. Ids are
// assigned sequentially so transcripts are stable.
func (s *Step) message(index int) (*platform.Message, error) {
	ts := baseTime
	if s.At != "" {
		parsed, err := time.Parse("15:04", s.At)
		if err != nil {
			return nil, fmt.Errorf("invalid at %q: %w", s.At, err)
		}
		ts = time.Date(baseTime.Year(), baseTime.Month(), baseTime.Day(),
			parsed.Hour(), parsed.Minute(), 0, 0, time.UTC)
	}

	id := platform.MessageID(fmt.Sprintf("msg-%d", index+1))
	if s.DM {
		return testutil.DMMsg(id, platform.MemberID(s.Author), s.Content, ts), nil
	}
	return testutil.Msg(id, platform.ChannelID(s.Channel), platform.MemberID(s.Author), s.Content, ts), nil
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly instead of silently skipping a section.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Modules) == 0 {
		return fmt.Errorf("modules list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if step.Author == "" {
			return fmt.Errorf("steps[%d]: author is required", i)
		}
		if step.Content == "" {
			return fmt.Errorf("steps[%d]: content is required", i)
		}
		if !step.DM && step.Channel == "" {
			return fmt.Errorf("steps[%d]: channel is required for non-DM steps", i)
		}
	}
	for day := range s.Schedule {
		if _, err := dayIndexOf(day); err != nil {
			return fmt.Errorf("schedule: %w", err)
		}
	}
	return nil
}
