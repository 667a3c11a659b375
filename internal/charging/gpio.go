package charging

import "fmt"

// gpioLevel maps a token to a line level. GPIO nodes only speak "1" and "0".
func gpioLevel(token string) (int, error) {
	switch token {
	case "1":
		return 1, nil
	case "0":
		return 0, nil
	}
	return 0, fmt.Errorf("write: token %q is not a gpio level", token)
}
