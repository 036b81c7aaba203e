// Command greeting is a subprocess plugin that answers greet and farewell
// intents. It reads one protocol request on stdin and writes one response on
// stdout.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattjoyce/aurras/internal/nlu"
	"github.com/mattjoyce/aurras/internal/protocol"
)

const nameLabel = "name"

type pluginConfig struct {
	DefaultName string
	Formal      bool
}

func main() {
	resp := handle(os.Stdin, time.Now)
	_ = json.NewEncoder(os.Stdout).Encode(resp)
}

func handle(in io.Reader, now func() time.Time) protocol.Response {
	req, err := protocol.DecodeRequest(in)
	if err != nil {
		return errResp(err.Error())
	}
	cfg := parseConfig(req.Config)

	name := entityText(req.Entities, nameLabel)
	if name == "" {
		name = cfg.DefaultName
	}

	switch strings.TrimSpace(req.Intent) {
	case "greet":
		return protocol.Response{
			Response: addressed(salutation(now(), cfg.Formal), name) + "!",
			Logs:     []protocol.LogEntry{info(fmt.Sprintf("greeted %q", name))},
		}
	case "farewell":
		word := "Bye"
		if cfg.Formal {
			word = "Goodbye"
		}
		return protocol.Response{Response: addressed(word, name) + "."}
	default:
		return errResp(fmt.Sprintf("unsupported intent: %s", req.Intent))
	}
}

func salutation(t time.Time, formal bool) string {
	if !formal {
		return "Hi"
	}
	switch h := t.Hour(); {
	case h < 12:
		return "Good morning"
	case h < 18:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}

func addressed(word, name string) string {
	if name == "" {
		return word
	}
	return word + ", " + name
}

// entityText joins every entity span carrying label.
func entityText(entities []nlu.Entity, label string) string {
	var parts []string
	for _, e := range entities {
		if e.Label == label && strings.TrimSpace(e.Text) != "" {
			parts = append(parts, strings.TrimSpace(e.Text))
		}
	}
	return strings.Join(parts, " ")
}

func parseConfig(raw map[string]any) pluginConfig {
	var cfg pluginConfig
	if v, ok := raw["default_name"].(string); ok {
		cfg.DefaultName = strings.TrimSpace(v)
	}
	if v, ok := raw["formal"].(bool); ok {
		cfg.Formal = v
	}
	return cfg
}

func info(msg string) protocol.LogEntry {
	return protocol.LogEntry{Level: "info", Message: msg}
}

func errResp(msg string) protocol.Response {
	return protocol.Response{
		Error: msg,
		Logs:  []protocol.LogEntry{{Level: "error", Message: msg}},
	}
}
