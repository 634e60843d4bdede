package service

import (
	"fmt"
	"math/rand/v2"
	"time"
)

const referenceAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

type ReferenceGenerator interface {
	Generate() string
}

// TimestampReferences builds "CMP" + the last six digits of the epoch
// milliseconds + three uppercase base36 characters. Uniqueness is only
// probabilistic, so Submit checks the store and regenerates on collision.
type TimestampReferences struct {
	Now  func() time.Time
	Rand func(n int) int
}

func (g TimestampReferences) Generate() string {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	pick := rand.IntN
	if g.Rand != nil {
		pick = g.Rand
	}
	suffix := make([]byte, 3)
	for i := range suffix {
		suffix[i] = referenceAlphabet[pick(len(referenceAlphabet))]
	}
	return fmt.Sprintf("CMP%06d%s", now().UnixMilli()%1_000_000, suffix)
}
