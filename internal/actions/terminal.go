package actions

import "fmt"

// BuildFinishAction encodes a completion message as a finish action string.
func BuildFinishAction(message string) string {
	return New("finish", String(message)).String()
}

// ParseFinishMessage recovers the message from a finish action string.
func ParseFinishMessage(s string) (string, error) {
	return terminalText(s, "finish")
}

// BuildFailAction encodes a failure reason as a fail action string.
func BuildFailAction(reason string) string {
	return New("fail", String(reason)).String()
}

// ParseFailReason recovers the reason from a fail action string.
func ParseFailReason(s string) (string, error) {
	return terminalText(s, "fail")
}

func terminalText(s, name string) (string, error) {
	a, err := Parse(s)
	if err != nil {
		return "", err
	}
	if a.Name != name {
		return "", fmt.Errorf("expected %s action, got %s", name, a.Name)
	}
	if len(a.Args) == 0 {
		return "", nil
	}
	if text, ok := a.TextArg(0); ok {
		return text, nil
	}
	return a.Args[0].Value, nil
}
