package protocol

import (
	"fmt"
	"maps"
	"strings"
)

// Command is one parsed request line.
type Command struct {
	Name   string
	Raw    string
	Params map[string]string
}

// ParseCommand splits name:key=value&... into a Command. A line without ':'
// is a command with no parameters; Params is always non-nil.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	name, raw, _ := strings.Cut(line, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return Command{}, fmt.Errorf("%w: missing command name", ErrMalformedCommand)
	}
	params, err := DecodeParams(raw)
	if err != nil {
		return Command{}, err
	}
	return Command{Name: name, Raw: raw, Params: params}, nil
}

// Param returns the first non-empty trimmed value among keys.
func (c Command) Param(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(c.Params[k]); v != "" {
			return v
		}
	}
	return ""
}

// CloneParams returns a copy callers may mutate.
func (c Command) CloneParams() map[string]string {
	out := make(map[string]string, len(c.Params))
	maps.Copy(out, c.Params)
	return out
}

// String renders the command back to wire form without a trailing newline.
func (c Command) String() string {
	if len(c.Params) == 0 {
		return c.Name
	}
	return c.Name + ":" + EncodeParams(c.Params)
}
