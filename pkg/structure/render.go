package structure

import "strings"

// Letter returns the option label for index i: A..Z, then AA, AB and so on.
func Letter(i int) string {
	if i < 0 {
		return ""
	}
	var b []byte
	for {
		b = append([]byte{byte('A' + i%26)}, b...)
		i = i/26 - 1
		if i < 0 {
			return string(b)
		}
	}
}

// Render prints a stem followed by lettered options, one per line.
func Render(stem string, options []string) string {
	var sb strings.Builder
	sb.WriteString(stem)
	for i, o := range options {
		sb.WriteString("\n")
		sb.WriteString(Letter(i))
		sb.WriteString(") ")
		sb.WriteString(o)
	}
	return sb.String()
}
