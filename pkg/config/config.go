package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmvolsky/persona-telegram-bot/pkg/domain"
)

const (
	DefaultMaxHistory     = 10
	DefaultTimeoutSeconds = 30
	DefaultMaxRetries     = 3
)

// ListConfig is one chat type's whitelist/blacklist pair.
type ListConfig struct {
	EnableWhitelist bool    `yaml:"enable_whitelist"`
	Whitelist       []int64 `yaml:"whitelist"`
	Blacklist       []int64 `yaml:"blacklist"`
}

type AccessControl struct {
	AdminIDs []int64    `yaml:"admin_id"`
	Group    ListConfig `yaml:"group"`
	User     ListConfig `yaml:"user"`
}

type Session struct {
	ValidMessageTypes []string `yaml:"valid_message_types"`
	MaxHistory        int      `yaml:"max_history"`

	// MergeWindowSeconds folds consecutive user messages from the same
	// sender into one turn; 0 disables merging.
	MergeWindowSeconds int `yaml:"merge_window_seconds"`
}

// SystemPrompts names the system prompt file per chat type, relative to the
// prompt directory.
type SystemPrompts struct {
	GroupChat   string `yaml:"group_chat"`
	PrivateChat string `yaml:"private_chat"`
}

type QueryBuild struct {
	System    SystemPrompts `yaml:"system"`
	Character string        `yaml:"character"`
}

type LLMAPI struct {
	URL            string `yaml:"api_url"`
	Key            string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout"`
	MaxRetries     int    `yaml:"max_retries"`
}

func (l LLMAPI) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// Snapshot is one immutable view of the whole configuration. Components take
// it (or a section of it) as an explicit parameter and never reach into
// shared mutable state; hot reload swaps whole snapshots via Provider.
type Snapshot struct {
	AccessControl   AccessControl  `yaml:"access_control"`
	Session         Session        `yaml:"session"`
	QueryBuild      QueryBuild     `yaml:"query_build"`
	LLMAPI          LLMAPI         `yaml:"llm_api"`
	Hyperparameters map[string]any `yaml:"model_hyperparameters"`
}

// ValidKinds is the typed allow-list built from valid_message_types; it
// gates both inbound storage and history inclusion at query build.
func (s *Snapshot) ValidKinds() domain.KindSet {
	return domain.KindSetOf(s.Session.ValidMessageTypes...)
}

func (s *Snapshot) MergeWindow() time.Duration {
	return time.Duration(s.Session.MergeWindowSeconds) * time.Second
}

func Default() *Snapshot {
	return &Snapshot{
		AccessControl: AccessControl{
			Group: ListConfig{EnableWhitelist: true},
		},
		Session: Session{
			ValidMessageTypes: []string{string(domain.MessageKindText)},
			MaxHistory:        DefaultMaxHistory,
		},
		QueryBuild: QueryBuild{
			System: SystemPrompts{
				GroupChat:   "group_chat.yaml",
				PrivateChat: "private_chat.yaml",
			},
			Character: "character.yaml",
		},
		LLMAPI: LLMAPI{
			URL:            "https://openrouter.ai/api/v1/chat/completions",
			TimeoutSeconds: DefaultTimeoutSeconds,
			MaxRetries:     DefaultMaxRetries,
		},
		Hyperparameters: map[string]any{
			"temperature": 0.7,
			"max_tokens":  2048,
		},
	}
}

// Load reads, defaults and validates the YAML config file.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	snap := Default()
	if err := yaml.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file %s: %w", path, err)
	}
	return snap, nil
}

func (s *Snapshot) Validate() error {
	if s.Session.MaxHistory <= 0 {
		return fmt.Errorf("session.max_history must be a positive integer, got %d", s.Session.MaxHistory)
	}
	if s.Session.MergeWindowSeconds < 0 {
		return fmt.Errorf("session.merge_window_seconds must not be negative, got %d", s.Session.MergeWindowSeconds)
	}
	if len(s.Session.ValidMessageTypes) == 0 {
		return fmt.Errorf("session.valid_message_types must not be empty")
	}
	if s.QueryBuild.System.GroupChat == "" || s.QueryBuild.System.PrivateChat == "" {
		return fmt.Errorf("query_build.system must name both group_chat and private_chat prompt files")
	}
	if s.QueryBuild.Character == "" {
		return fmt.Errorf("query_build.character must name the character prompt file")
	}
	if s.LLMAPI.URL == "" {
		return fmt.Errorf("llm_api.api_url is required")
	}
	if s.LLMAPI.Key == "" {
		return fmt.Errorf("llm_api.api_key is required")
	}
	if s.LLMAPI.Model == "" {
		return fmt.Errorf("llm_api.model is required")
	}
	if s.LLMAPI.TimeoutSeconds <= 0 {
		return fmt.Errorf("llm_api.timeout must be a positive number of seconds, got %d", s.LLMAPI.TimeoutSeconds)
	}
	if s.LLMAPI.MaxRetries < 0 {
		return fmt.Errorf("llm_api.max_retries must not be negative, got %d", s.LLMAPI.MaxRetries)
	}
	return nil
}
