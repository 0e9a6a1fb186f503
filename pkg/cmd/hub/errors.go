package hub

import "fmt"

func errRequired(flag string) error {
	return fmt.Errorf("--%s is required", flag)
}
