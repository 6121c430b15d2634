package types

// JSONMap is free-form string metadata persisted as a JSON column.
type JSONMap map[string]string

// StringList is an ordered list of strings persisted as a JSON column.
type StringList []string
