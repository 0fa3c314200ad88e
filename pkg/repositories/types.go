package repositories

import "errors"

type ErrNotFound struct {
	SceneID string
}

func (e *ErrNotFound) Error() string {
	if e.SceneID == "" {
		return "not found"
	}
	return "scene " + e.SceneID + " not found"
}

func IsNotFound(err error) bool {
	var notFound *ErrNotFound
	return errors.As(err, &notFound)
}
