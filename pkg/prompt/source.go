package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmvolsky/persona-telegram-bot/pkg/config"
	"github.com/dmvolsky/persona-telegram-bot/pkg/domain"
)

// Character is the persona description loaded from the character YAML file.
// The "chracter_info" key spelling is the persisted format.
type Character struct {
	Name  string   `yaml:"name"`
	Alias []string `yaml:"alias"`
	Info  string   `yaml:"chracter_info"`
}

type systemPromptFile struct {
	System string `yaml:"system"`
}

// Source reads prompt text from a directory laid out as
// <dir>/system/<file> and <dir>/character/<file>; the file names come from
// the config snapshot, so a reload can switch personas without a restart.
type Source struct {
	dir string
}

func NewSource(dir string) *Source {
	return &Source{dir: dir}
}

// SystemPrompt loads the system prompt selected by chat type and substitutes
// the {name}, {alias}, {chracter_info} and {time} masks.
func (s *Source) SystemPrompt(qb config.QueryBuild, chatType domain.ChatType, now time.Time) (string, error) {
	name := qb.System.GroupChat
	if chatType == domain.ChatTypePrivate {
		name = qb.System.PrivateChat
	}

	path := filepath.Join(s.dir, "system", name)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading system prompt file: %w", err)
	}

	var file systemPromptFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return "", fmt.Errorf("parsing system prompt file %s: %w", path, err)
	}
	if file.System == "" {
		return "", fmt.Errorf("system prompt file %s has no system key", path)
	}

	ch, err := s.Character(qb)
	if err != nil {
		return "", err
	}

	alias := "none"
	if len(ch.Alias) > 0 {
		alias = strings.Join(ch.Alias, ", ")
	}

	replacer := strings.NewReplacer(
		"{name}", ch.Name,
		"{alias}", alias,
		"{chracter_info}", ch.Info,
		"{time}", now.Format(time.DateTime),
	)
	return replacer.Replace(file.System), nil
}

// CharacterPrompt returns the persona text prepended to every request.
func (s *Source) CharacterPrompt(qb config.QueryBuild) (string, error) {
	ch, err := s.Character(qb)
	if err != nil {
		return "", err
	}
	return ch.Info, nil
}

func (s *Source) Character(qb config.QueryBuild) (Character, error) {
	path := filepath.Join(s.dir, "character", qb.Character)
	data, err := os.ReadFile(path)
	if err != nil {
		return Character{}, fmt.Errorf("reading character file: %w", err)
	}

	var ch Character
	if err := yaml.Unmarshal(data, &ch); err != nil {
		return Character{}, fmt.Errorf("parsing character file %s: %w", path, err)
	}
	if ch.Name == "" {
		return Character{}, fmt.Errorf("character file %s has no name", path)
	}
	return ch, nil
}
