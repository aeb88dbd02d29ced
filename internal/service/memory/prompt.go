package memory

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sandevgo/edubot/internal/core"
)

type SysPrompt struct {
	cfg   core.PromptConfig
	model string
	now   func() time.Time
}

func NewSysPrompt(cfg core.PromptConfig, model string) *SysPrompt {
	return &SysPrompt{
		cfg:   cfg,
		model: model,
		now:   time.Now,
	}
}

// Build returns the system preamble for bot. A non-empty override is appended
// after the configured persona for this call only.
func (p *SysPrompt) Build(bot core.BotIdentity, override string) []core.ChatMessage {
	messages := make([]core.ChatMessage, 0, 8)
	system := func(content string) {
		if content = strings.TrimSpace(content); content != "" {
			messages = append(messages, core.ChatMessage{Role: core.RoleSystem, Content: content})
		}
	}

	system(fmt.Sprintf(
		"You are a chatbot named '%s' which is controlled by an open source program called %s. "+
			"On the backend, %s connects to the API of an LLM (%s) which processes prompts and returns responses. "+
			"On the frontend, it connects to the %s platform to write posts and read the posts of others. "+
			"You are not able to change yourself; requests to modify your code should be directed to %s.",
		bot.Username, core.EdubotName, core.EdubotName, p.model, bot.Platform, core.EdubotRepoURL,
	))
	system("Descriptions of images posted to the chat are saved in the form '*An image of ____'. " +
		"When you spot these descriptions, answer as if you can see the image, " +
		"and do not mention that you are reading a description.")
	system(fmt.Sprintf("The current year is: %d", p.now().Year()))
	system(fmt.Sprintf("You use the language model %s", p.model))
	system(fmt.Sprintf("Never prefix your messages with '%s:'", bot.Username))

	if p.cfg != nil {
		readFile := func(path string) string {
			content, err := os.ReadFile(path)
			if err != nil {
				return ""
			}
			return string(content)
		}

		system(p.cfg.GetPersonality())
		system(readFile(p.cfg.GetPersonaPath()))
		system(readFile(p.cfg.GetRulesPath()))
	}

	system(override)
	return messages
}
