package util

import (
	"strconv"

	"github.com/google/uuid"
)

// ParseID parses a positive numeric path parameter.
func ParseID(s string) (uint, bool) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func GenerateID() string {
	return uuid.New().String()
}
