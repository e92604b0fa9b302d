package entity

import "errors"

var (
	ErrNotFound = errors.New("entity not found")
	ErrExists   = errors.New("entity already exists")
	ErrRetired  = errors.New("entity id has been retired")
)
