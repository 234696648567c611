package domain

import "fmt"

// Tool is the closed set of drawing tools.
type Tool int

const (
	ToolBrush Tool = iota
	ToolEraser
	ToolGlow
	ToolStamp
)

var toolNames = [...]string{
	ToolBrush:  "brush",
	ToolEraser: "eraser",
	ToolGlow:   "glow",
	ToolStamp:  "stamp",
}

func (t Tool) String() string {
	if t.Valid() {
		return toolNames[t]
	}
	return fmt.Sprintf("tool(%d)", int(t))
}

func (t Tool) Valid() bool {
	return t >= ToolBrush && t <= ToolStamp
}

// SupportsPressure reports whether stylus pressure modulates the tool width.
func (t Tool) SupportsPressure() bool {
	return t == ToolBrush || t == ToolGlow || t == ToolStamp
}

// ParseTool maps a wire name to a Tool.
func ParseTool(s string) (Tool, error) {
	for i, n := range toolNames {
		if n == s {
			return Tool(i), nil
		}
	}
	return 0, fmt.Errorf("unknown tool %q", s)
}

func (t Tool) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid tool %d", int(t))
	}
	return []byte(toolNames[t]), nil
}

func (t *Tool) UnmarshalText(b []byte) error {
	v, err := ParseTool(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
