package models

import "github.com/google/uuid"

// assignID fills a zero primary key before insert. Postgres also defaults the
// column with gen_random_uuid(), but sqlite test databases have no such function.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
