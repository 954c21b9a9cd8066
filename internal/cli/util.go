package cli

import "strconv"

func parseModelID(arg string) (int64, error) {
	return strconv.ParseInt(arg, 10, 64)
}
