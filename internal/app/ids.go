package app

import "github.com/google/uuid"

// newGameID generates the key for a new game. Tests swap it for
// predictable IDs.
var newGameID = uuid.NewString
