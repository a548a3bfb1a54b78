package bot

import (
	"encoding/json"
	"fmt"
	"os"
)

// ImageSpec is one image in a bot's rotation.
type ImageSpec struct {
	Path string `json:"path"`
	Alt  string `json:"alt"`
}

// Material is the per-bot creative inventory referenced by strategies.
type Material struct {
	Images       []ImageSpec `json:"images,omitempty"`
	Quotes       []string    `json:"quotes,omitempty"`
	Persona      string      `json:"persona,omitempty"`
	Instructions string      `json:"instructions,omitempty"`
}

// BotSpec declares one bot account in the service file. The password is
// looked up from the named environment variable, never stored inline.
type BotSpec struct {
	Handle        string       `json:"handle"`
	PasswordEnv   string       `json:"passwordEnv"`
	Strategy      StrategyKind `json:"strategy"`
	ReplyTriggers *bool        `json:"replyTriggers,omitempty"`
	Material      Material     `json:"material"`
}

// ServiceFile is the on-disk bot fleet declaration. Order matters: it is
// the registration order used to break dispatch ties.
type ServiceFile struct {
	Bots []BotSpec `json:"bots"`
}

// LoadServiceFile reads and validates the fleet declaration at path.
func LoadServiceFile(path string) (ServiceFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ServiceFile{}, fmt.Errorf("read service file: %w", err)
	}
	var svc ServiceFile
	if err := json.Unmarshal(data, &svc); err != nil {
		return ServiceFile{}, fmt.Errorf("parse service file: %w", err)
	}
	if len(svc.Bots) == 0 {
		return ServiceFile{}, fmt.Errorf("service file %s declares no bots", path)
	}
	for i, b := range svc.Bots {
		if b.Handle == "" {
			return ServiceFile{}, fmt.Errorf("bot %d: handle is required", i)
		}
		switch b.Strategy {
		case KindImage, KindQuote, KindAnswer, KindMovieTest:
		default:
			return ServiceFile{}, fmt.Errorf("bot %s: unknown strategy %q", b.Handle, b.Strategy)
		}
	}
	return svc, nil
}

// RepliesToReplies reports whether the bot dispatches on replies to its own
// posts; the default is yes unless the bot opts out.
func (b BotSpec) RepliesToReplies() bool {
	return b.ReplyTriggers == nil || *b.ReplyTriggers
}
