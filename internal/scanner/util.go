package scanner

import (
	"errors"
	"os"
)

var errInvalidPattern = errors.New("invalid glob pattern")

func fsStat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}
