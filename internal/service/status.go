package service

import "os"

// Status returns the definition path and whether it exists.
func Status(label string) (string, bool) {
	path := Path(label)
	if _, err := os.Stat(path); err == nil {
		return path, true
	}
	return path, false
}

// Remove deletes the definition for label; a missing file is not an error.
func Remove(label string) (string, error) {
	path := Path(label)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return path, err
	}
	return path, nil
}
