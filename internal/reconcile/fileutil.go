package reconcile

import (
	"os"
	"path/filepath"
)

func dirOf(path string) string {
	return filepath.Dir(path)
}

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
