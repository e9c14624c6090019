// internal/app/engine/tokens.go
package engine

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Token generation is probabilistic by design: neither join codes nor
// aliases are checked for collisions. The entropy here makes join-code
// collisions negligible at the scale of a group roster; alias
// collisions inside one group are simply accepted. The constants are
// exported so tests can assert length and alphabet rather than exact
// values.
const (
	// JoinCodeLength is the number of characters in a join code.
	JoinCodeLength = 8

	// JoinCodeAlphabet is the set of characters a join code draws
	// from. Uppercase-only, because codes compare case-insensitively
	// and are meant to be read aloud and typed.
	JoinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// AliasSpace is the exclusive upper bound of the numeric part of
	// a generated alias ("User 0" through "User 999").
	AliasSpace = 1000

	// SharedLinkPrefix starts every shared link token.
	SharedLinkPrefix = "GROUP-"

	adminAliasSuffix = " (Admin)"
)

func newJoinCode() string {
	var b strings.Builder
	for i := 0; i < JoinCodeLength; i++ {
		b.WriteByte(JoinCodeAlphabet[randomBelow(len(JoinCodeAlphabet))])
	}
	return b.String()
}

// newSharedLink derives the secondary shareable token from the current
// time. It is weaker than the join code on purpose: a human-friendly
// handle, unique enough in practice, exact-match on resolution.
func newSharedLink() string {
	millis := fmt.Sprintf("%d", time.Now().UnixMilli())
	return SharedLinkPrefix + millis[len(millis)-6:]
}

func newAlias() string {
	return fmt.Sprintf("User %d", randomBelow(AliasSpace))
}

func randomBelow(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand only fails when the platform source is broken;
		// there is no useful degraded mode for token generation.
		panic(fmt.Sprintf("engine: random source unavailable: %v", err))
	}
	return int(v.Int64())
}
