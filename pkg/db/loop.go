package db

import (
	"errors"
	"fmt"
)

type LoopType string

const (
	Autostop LoopType = "autostop"
)

func (lt LoopType) String() string {
	return string(lt)
}

func (lt LoopType) IsKnown() bool {
	switch lt {
	case Autostop:
		return true
	default:
		return false
	}
}

func AsLoopType(s string) (LoopType, error) {
	l := LoopType(s)
	if l.IsKnown() {
		return l, nil
	}
	return l, fmt.Errorf(`%w: "%s"`, ErrUnknownLoopType, s)
}

var ErrUnknownLoopType = errors.New("unknown loop type")
