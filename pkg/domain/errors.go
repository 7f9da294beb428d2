package domain

import "fmt"

// ErrNotFound is returned when an entity lookup fails within a transaction.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ErrAlreadyExists is returned when creating an entity with a taken id.
type ErrAlreadyExists struct {
	Entity EntityType
	ID     string
}

func (e ErrAlreadyExists) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Entity, e.ID)
}
